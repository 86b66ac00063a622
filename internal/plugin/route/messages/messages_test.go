package messages_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/chirino/clinical-history/internal/model"
	"github.com/chirino/clinical-history/internal/plugin/route/httpapi"
	"github.com/chirino/clinical-history/internal/plugin/route/messages"
	"github.com/chirino/clinical-history/internal/testutil/testapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idResponse struct {
	ID int64 `json:"id"`
}

type messageList struct {
	Data []httpapi.MessageView `json:"data"`
}

type unitList struct {
	Data []httpapi.UnitView `json:"data"`
}

func TestMessageRoutes(t *testing.T) {
	router, store, ctx := testapi.Router(t, messages.MountRoutes)
	conv, err := store.CreateConversation(ctx, testapi.Scope("alice"), "visit", model.PortalDoctor)
	require.NoError(t, err)
	convPath := fmt.Sprintf("/v1/conversations/%d/messages", conv.ID)

	rec := testapi.Do(t, router, http.MethodPost, convPath, "alice", map[string]any{"index": 0, "role": "user", "content": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first idResponse
	testapi.Decode(t, rec, &first)

	rec = testapi.Do(t, router, http.MethodPost, convPath, "alice", map[string]any{"index": 1, "role": "assistant", "content": "hello", "attachments": []string{"scan.png"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var second idResponse
	testapi.Decode(t, rec, &second)

	t.Run("duplicate index conflicts", func(t *testing.T) {
		rec := testapi.Do(t, router, http.MethodPost, convPath, "alice", map[string]any{"index": 0, "role": "user", "content": "again"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "conflict")
	})

	t.Run("invalid bodies", func(t *testing.T) {
		rec := testapi.Do(t, router, http.MethodPost, convPath, "alice", map[string]any{"index": 5, "role": "robot"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = testapi.Do(t, router, http.MethodPost, convPath, "alice", map[string]any{"role": "user"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = testapi.Do(t, router, http.MethodPost, convPath, "alice", map[string]any{"index": -1, "role": "user"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list in index order", func(t *testing.T) {
		rec := testapi.Do(t, router, http.MethodGet, convPath, "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var list messageList
		testapi.Decode(t, rec, &list)
		require.Len(t, list.Data, 2)
		assert.Equal(t, 0, list.Data[0].Index)
		assert.Equal(t, []string{}, list.Data[0].Attachments)
		assert.Equal(t, []string{"scan.png"}, list.Data[1].Attachments)
	})

	t.Run("lookup by index", func(t *testing.T) {
		rec := testapi.Do(t, router, http.MethodGet, convPath+"/index/1", "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"messageId":%d}`, second.ID), rec.Body.String())

		rec = testapi.Do(t, router, http.MethodGet, convPath+"/index/7", "alice", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = testapi.Do(t, router, http.MethodGet, convPath+"/index/x", "alice", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("units", func(t *testing.T) {
		unitsPath := fmt.Sprintf("/v1/messages/%d/units", second.ID)
		rec := testapi.Do(t, router, http.MethodPost, unitsPath, "alice", map[string]any{
			"conversationId": conv.ID,
			"units":          []map[string]string{{"type": "text", "content": "a"}, {"type": "table", "content": "b"}},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var created struct {
			IDs []int64 `json:"ids"`
		}
		testapi.Decode(t, rec, &created)
		assert.Len(t, created.IDs, 2)

		rec = testapi.Do(t, router, http.MethodPost, unitsPath, "alice", map[string]any{"units": []map[string]string{}})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"ids":[]}`, rec.Body.String())

		rec = testapi.Do(t, router, http.MethodPost, unitsPath, "alice", map[string]any{"units": []map[string]string{{"content": "no type"}}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = testapi.Do(t, router, http.MethodGet, unitsPath, "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var list unitList
		testapi.Decode(t, rec, &list)
		require.Len(t, list.Data, 2)
		assert.Equal(t, "a", list.Data[0].Content)
		assert.Equal(t, 1, list.Data[1].Index)
	})

	t.Run("opinion", func(t *testing.T) {
		opinionPath := fmt.Sprintf("/v1/messages/%d/opinion", second.ID)
		rec := testapi.Do(t, router, http.MethodPut, opinionPath, "alice", map[string]any{"opinion": "liked"})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/messages/%d", second.ID), "alice", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var msg httpapi.MessageView
		testapi.Decode(t, rec, &msg)
		require.NotNil(t, msg.Opinion)
		assert.Equal(t, model.OpinionLiked, *msg.Opinion)

		rec = testapi.Do(t, router, http.MethodPut, opinionPath, "alice", map[string]any{"opinion": "none"})
		require.Equal(t, http.StatusNoContent, rec.Code)
		rec = testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/messages/%d", second.ID), "alice", nil)
		testapi.Decode(t, rec, &msg)
		assert.Nil(t, msg.Opinion)

		rec = testapi.Do(t, router, http.MethodPut, "/v1/messages/9999/opinion", "alice", map[string]any{"opinion": "liked"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("other users cannot see the conversation", func(t *testing.T) {
		rec := testapi.Do(t, router, http.MethodGet, convPath, "bob", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/messages/%d", first.ID), "bob", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/messages/%d/units", second.ID), "bob", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = testapi.Do(t, router, http.MethodPost, convPath, "bob", map[string]any{"index": 2, "role": "user"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
