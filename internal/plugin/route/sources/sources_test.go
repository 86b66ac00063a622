package sources_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/chirino/clinical-history/internal/model"
	"github.com/chirino/clinical-history/internal/plugin/route/httpapi"
	"github.com/chirino/clinical-history/internal/plugin/route/sources"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/chirino/clinical-history/internal/testutil/testapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourcesResponse struct {
	Searches []httpapi.SearchCitationView `json:"searches"`
	Images   []httpapi.ImageCitationView  `json:"images"`
}

func TestSourceRoutes(t *testing.T) {
	router, store, ctx := testapi.Router(t, sources.MountRoutes)
	alice := testapi.Scope("alice")

	conv, err := store.CreateConversation(ctx, alice, "imaging", model.PortalDoctor)
	require.NoError(t, err)
	msgID, err := store.AppendMessage(ctx, alice, registrystore.CreateMessageRequest{ConversationID: conv.ID, Index: 0, Role: model.RoleAssistant, Content: "see [1]"})
	require.NoError(t, err)
	unitIDs, err := store.AppendUnits(ctx, alice, msgID, conv.ID, []registrystore.CreateUnitRequest{{UnitType: "text", Content: "see [1]"}})
	require.NoError(t, err)

	rec := testapi.Do(t, router, http.MethodPost, fmt.Sprintf("/v1/messages/%d/sources/search", msgID), "alice", map[string]any{
		"unitId":        unitIDs[0],
		"sourceType":    "url",
		"title":         "Guideline",
		"location":      "https://example.org/guideline",
		"scoreOverall":  0.9123456,
		"scoreAccuracy": 1.5,
		"publishedDate": 1700000000000,
		"citeIndex":     1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = testapi.Do(t, router, http.MethodPost, fmt.Sprintf("/v1/messages/%d/sources/images", msgID), "alice", map[string]any{
		"imageUrl":  "https://example.org/xray.png",
		"citeIndex": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	t.Run("by message", func(t *testing.T) {
		rec := testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/sources?messageId=%d", msgID), "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got sourcesResponse
		testapi.Decode(t, rec, &got)
		require.Len(t, got.Searches, 1)
		require.Len(t, got.Images, 1)

		search := got.Searches[0]
		assert.Equal(t, conv.ID, search.ConversationID)
		require.NotNil(t, search.ScoreOverall)
		assert.Equal(t, "0.912346", search.ScoreOverall.String())
		require.NotNil(t, search.ScoreAccuracy)
		assert.Equal(t, "1.500000", search.ScoreAccuracy.String())
		assert.Nil(t, search.ScoreSemantic)
		require.NotNil(t, search.PublishedDate)
		assert.Equal(t, int64(1700000000000), *search.PublishedDate)
		assert.Equal(t, "https://example.org/xray.png", got.Images[0].ImageURL)
	})

	t.Run("by conversation and type", func(t *testing.T) {
		rec := testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/sources?conversationId=%d&type=image", conv.ID), "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got sourcesResponse
		testapi.Decode(t, rec, &got)
		assert.Empty(t, got.Searches)
		assert.Len(t, got.Images, 1)
		assert.Contains(t, rec.Body.String(), `"searches":[]`)

		rec = testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/sources?conversationId=%d&type=video", conv.ID), "alice", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid requests", func(t *testing.T) {
		rec := testapi.Do(t, router, http.MethodGet, "/v1/sources", "alice", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = testapi.Do(t, router, http.MethodPost, fmt.Sprintf("/v1/messages/%d/sources/images", msgID), "alice", map[string]any{"citeIndex": 3})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = testapi.Do(t, router, http.MethodPost, fmt.Sprintf("/v1/messages/%d/sources/search", msgID), "alice", map[string]any{"sourceType": "pdf"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = testapi.Do(t, router, http.MethodPost, fmt.Sprintf("/v1/messages/%d/sources/search", msgID), "alice", map[string]any{"unitId": 9999})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("other users cannot read", func(t *testing.T) {
		rec := testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/sources?messageId=%d", msgID), "bob", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/sources?conversationId=%d", conv.ID), "bob", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
