// Package cached layers a HistoryCache over a HistoryStore. Only the history
// aggregate is cached; every write that can change it drops the entry.
package cached

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/clinical-history/internal/model"
	registrycache "github.com/chirino/clinical-history/internal/registry/cache"
	"github.com/chirino/clinical-history/internal/registry/store"
	"github.com/chirino/clinical-history/internal/security"
)

// Wrap returns inner unchanged when the cache is unavailable.
func Wrap(inner store.HistoryStore, cache registrycache.HistoryCache, ttl time.Duration) store.HistoryStore {
	if cache == nil || !cache.Available() {
		return inner
	}
	return &cachedStore{HistoryStore: inner, cache: cache, ttl: ttl}
}

type cachedStore struct {
	store.HistoryStore
	cache registrycache.HistoryCache
	ttl   time.Duration
}

func (s *cachedStore) GetFullHistory(ctx context.Context, scope store.Scope, conversationID int64) (*model.History, error) {
	cached, err := s.cache.Get(ctx, scope.TenantID, conversationID)
	if err != nil {
		log.Warn("History cache read failed", "tenant", scope.TenantID, "conversation", conversationID, "err", err)
	}
	if cached != nil {
		// A write racing the read-through can leave an entry behind, so a hit
		// is only served while the conversation is still visible.
		if _, err := s.HistoryStore.GetConversation(ctx, scope, conversationID); err != nil {
			return nil, err
		}
		if security.CacheHitsTotal != nil {
			security.CacheHitsTotal.Inc()
		}
		return cached, nil
	}
	if security.CacheMissesTotal != nil {
		security.CacheMissesTotal.Inc()
	}

	history, err := s.HistoryStore.GetFullHistory(ctx, scope, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, scope.TenantID, conversationID, *history, s.ttl); err != nil {
		log.Warn("History cache write failed", "tenant", scope.TenantID, "conversation", conversationID, "err", err)
	}
	return history, nil
}

func (s *cachedStore) AppendMessage(ctx context.Context, scope store.Scope, req store.CreateMessageRequest) (int64, error) {
	id, err := s.HistoryStore.AppendMessage(ctx, scope, req)
	if err == nil {
		s.invalidate(ctx, scope, req.ConversationID)
	}
	return id, err
}

func (s *cachedStore) AppendUnits(ctx context.Context, scope store.Scope, messageID int64, conversationID int64, units []store.CreateUnitRequest) ([]int64, error) {
	ids, err := s.HistoryStore.AppendUnits(ctx, scope, messageID, conversationID, units)
	if err == nil && len(ids) > 0 {
		s.invalidateMessage(ctx, scope, messageID, conversationID)
	}
	return ids, err
}

func (s *cachedStore) SetOpinion(ctx context.Context, scope store.Scope, messageID int64, opinion *model.Opinion) (bool, error) {
	ok, err := s.HistoryStore.SetOpinion(ctx, scope, messageID, opinion)
	if err == nil && ok {
		s.invalidateMessage(ctx, scope, messageID, 0)
	}
	return ok, err
}

func (s *cachedStore) AddSearchCitation(ctx context.Context, scope store.Scope, req store.SearchCitationRequest) (int64, error) {
	id, err := s.HistoryStore.AddSearchCitation(ctx, scope, req)
	if err == nil {
		s.invalidateMessage(ctx, scope, req.MessageID, req.ConversationID)
	}
	return id, err
}

func (s *cachedStore) AddImageCitation(ctx context.Context, scope store.Scope, req store.ImageCitationRequest) (int64, error) {
	id, err := s.HistoryStore.AddImageCitation(ctx, scope, req)
	if err == nil {
		s.invalidateMessage(ctx, scope, req.MessageID, req.ConversationID)
	}
	return id, err
}

func (s *cachedStore) DeleteConversation(ctx context.Context, scope store.Scope, conversationID int64) (bool, error) {
	ok, err := s.HistoryStore.DeleteConversation(ctx, scope, conversationID)
	if err == nil && ok {
		s.invalidate(ctx, scope, conversationID)
	}
	return ok, err
}

func (s *cachedStore) DeleteAllForUser(ctx context.Context, scope store.Scope, userID string) (int64, error) {
	owner := store.Scope{TenantID: scope.TenantID, UserID: userID}
	convs, listErr := s.HistoryStore.ListConversations(ctx, owner, store.ConversationFilter{IncludeArchived: true})

	count, err := s.HistoryStore.DeleteAllForUser(ctx, scope, userID)
	if listErr != nil {
		log.Warn("History cache: could not list conversations to invalidate", "tenant", scope.TenantID, "user", userID, "err", listErr)
	}
	for _, c := range convs {
		s.invalidate(ctx, scope, c.ID)
	}
	return count, err
}

// invalidateMessage drops the entry of the conversation owning messageID.
// conversationID short-cuts the lookup when the caller already knows it.
func (s *cachedStore) invalidateMessage(ctx context.Context, scope store.Scope, messageID, conversationID int64) {
	if conversationID == 0 {
		msg, err := s.HistoryStore.GetMessage(ctx, store.Scope{TenantID: scope.TenantID}, messageID)
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			return
		}
		if err != nil {
			log.Warn("History cache: could not resolve message", "tenant", scope.TenantID, "message", messageID, "err", err)
			return
		}
		conversationID = msg.ConversationID
	}
	s.invalidate(ctx, scope, conversationID)
}

func (s *cachedStore) invalidate(ctx context.Context, scope store.Scope, conversationID int64) {
	if err := s.cache.Remove(ctx, scope.TenantID, conversationID); err != nil {
		log.Warn("History cache invalidation failed", "tenant", scope.TenantID, "conversation", conversationID, "err", err)
	}
}
