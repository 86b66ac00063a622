package cached_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chirino/clinical-history/internal/model"
	"github.com/chirino/clinical-history/internal/plugin/store/cached"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/chirino/clinical-history/internal/testutil/testsqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memHistoryCache struct {
	mu   sync.Mutex
	data map[string]model.History
	hits int
}

func newMemHistoryCache() *memHistoryCache {
	return &memHistoryCache{data: map[string]model.History{}}
}

func key(tenantID string, conversationID int64) string {
	return fmt.Sprintf("%s/%d", tenantID, conversationID)
}

func (c *memHistoryCache) Available() bool { return true }

func (c *memHistoryCache) Get(_ context.Context, tenantID string, conversationID int64) (*model.History, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.data[key(tenantID, conversationID)]
	if !ok {
		return nil, nil
	}
	c.hits++
	return &h, nil
}

func (c *memHistoryCache) Set(_ context.Context, tenantID string, conversationID int64, history model.History, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key(tenantID, conversationID)] = history
	return nil
}

func (c *memHistoryCache) Remove(_ context.Context, tenantID string, conversationID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key(tenantID, conversationID))
	return nil
}

func (c *memHistoryCache) has(tenantID string, conversationID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key(tenantID, conversationID)]
	return ok
}

var (
	alice = registrystore.Scope{TenantID: "tenant-a", UserID: "alice"}
	bob   = registrystore.Scope{TenantID: "tenant-a", UserID: "bob"}
)

func setup(t *testing.T) (registrystore.HistoryStore, *memHistoryCache, context.Context) {
	t.Helper()
	inner, ctx := testsqlite.NewStore(t)
	cache := newMemHistoryCache()
	return cached.Wrap(inner, cache, time.Minute), cache, ctx
}

func TestGetFullHistory_ReadThrough(t *testing.T) {
	store, cache, ctx := setup(t)
	conv, err := store.CreateConversation(ctx, alice, "cached", model.PortalDoctor)
	require.NoError(t, err)

	_, err = store.GetFullHistory(ctx, alice, conv.ID)
	require.NoError(t, err)
	assert.True(t, cache.has("tenant-a", conv.ID))
	assert.Zero(t, cache.hits)

	_, err = store.GetFullHistory(ctx, alice, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	// The owner filter still applies to cached entries.
	_, err = store.GetFullHistory(ctx, bob, conv.ID)
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestWritesInvalidate(t *testing.T) {
	store, cache, ctx := setup(t)
	conv, err := store.CreateConversation(ctx, alice, "cached", model.PortalDoctor)
	require.NoError(t, err)

	warm := func() {
		t.Helper()
		_, err := store.GetFullHistory(ctx, alice, conv.ID)
		require.NoError(t, err)
		require.True(t, cache.has("tenant-a", conv.ID))
	}

	warm()
	msgID, err := store.AppendMessage(ctx, alice, registrystore.CreateMessageRequest{ConversationID: conv.ID, Role: model.RoleAssistant})
	require.NoError(t, err)
	assert.False(t, cache.has("tenant-a", conv.ID))

	warm()
	_, err = store.AppendUnits(ctx, alice, msgID, 0, []registrystore.CreateUnitRequest{{UnitType: "text"}})
	require.NoError(t, err)
	assert.False(t, cache.has("tenant-a", conv.ID))

	warm()
	liked := model.OpinionLiked
	_, err = store.SetOpinion(ctx, alice, msgID, &liked)
	require.NoError(t, err)
	assert.False(t, cache.has("tenant-a", conv.ID))

	warm()
	_, err = store.AddSearchCitation(ctx, alice, registrystore.SearchCitationRequest{MessageID: msgID, Title: "s"})
	require.NoError(t, err)
	assert.False(t, cache.has("tenant-a", conv.ID))

	warm()
	_, err = store.AddImageCitation(ctx, alice, registrystore.ImageCitationRequest{MessageID: msgID, ImageURL: "i"})
	require.NoError(t, err)
	assert.False(t, cache.has("tenant-a", conv.ID))

	history, err := store.GetFullHistory(ctx, alice, conv.ID)
	require.NoError(t, err)
	require.Len(t, history.Messages, 1)
	require.NotNil(t, history.Messages[0].Opinion)
	assert.Len(t, history.Messages[0].Units, 1)
	assert.Len(t, history.SearchCitations, 1)
	assert.Len(t, history.ImageCitations, 1)

	ok, err := store.DeleteConversation(ctx, alice, conv.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, cache.has("tenant-a", conv.ID))
	_, err = store.GetFullHistory(ctx, alice, conv.ID)
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDeleteAllForUser_Invalidates(t *testing.T) {
	store, cache, ctx := setup(t)
	var convIDs []int64
	for _, title := range []string{"one", "two"} {
		conv, err := store.CreateConversation(ctx, alice, title, model.PortalDoctor)
		require.NoError(t, err)
		_, err = store.GetFullHistory(ctx, alice, conv.ID)
		require.NoError(t, err)
		convIDs = append(convIDs, conv.ID)
	}

	count, err := store.DeleteAllForUser(ctx, registrystore.Scope{TenantID: "tenant-a"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	for _, id := range convIDs {
		assert.False(t, cache.has("tenant-a", id))
	}
}

func TestWrap_UnavailableCacheIsPassThrough(t *testing.T) {
	inner, _ := testsqlite.NewStore(t)
	assert.Same(t, inner, cached.Wrap(inner, nil, time.Minute))
}

// racingStore runs afterRead once, between the inner history read and the
// cache write that follows it.
type racingStore struct {
	registrystore.HistoryStore
	afterRead func()
}

func (s *racingStore) GetFullHistory(ctx context.Context, scope registrystore.Scope, conversationID int64) (*model.History, error) {
	history, err := s.HistoryStore.GetFullHistory(ctx, scope, conversationID)
	if hook := s.afterRead; hook != nil {
		s.afterRead = nil
		hook()
	}
	return history, err
}

func TestGetFullHistory_DeleteDuringReadThrough(t *testing.T) {
	inner, ctx := testsqlite.NewStore(t)
	racing := &racingStore{HistoryStore: inner}
	cache := newMemHistoryCache()
	store := cached.Wrap(racing, cache, time.Minute)

	conv, err := store.CreateConversation(ctx, alice, "racy", model.PortalDoctor)
	require.NoError(t, err)

	racing.afterRead = func() {
		ok, err := store.DeleteConversation(ctx, alice, conv.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}
	_, err = store.GetFullHistory(ctx, alice, conv.ID)
	require.NoError(t, err)
	require.True(t, cache.has("tenant-a", conv.ID), "stale entry written back after the delete")

	_, err = store.GetFullHistory(ctx, alice, conv.ID)
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 1, cache.hits)
}
