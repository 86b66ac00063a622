package conversations_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/chirino/clinical-history/internal/plugin/route/conversations"
	"github.com/chirino/clinical-history/internal/plugin/route/httpapi"
	"github.com/chirino/clinical-history/internal/plugin/route/messages"
	"github.com/chirino/clinical-history/internal/testutil/testapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listResponse struct {
	Data []httpapi.ConversationView `json:"data"`
}

func createConversation(t *testing.T, router http.Handler, user, title string) httpapi.ConversationView {
	t.Helper()
	rec := testapi.Do(t, router, http.MethodPost, "/v1/conversations", user, map[string]any{"title": title, "portalType": "doctor"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var conv httpapi.ConversationView
	testapi.Decode(t, rec, &conv)
	return conv
}

func TestCreateAndGetConversation(t *testing.T) {
	router, _, _ := testapi.Router(t, conversations.MountRoutes)

	conv := createConversation(t, router, "alice", "Chest pain")
	assert.Equal(t, "active", string(conv.Status))
	assert.Equal(t, "doctor", string(conv.PortalType))
	assert.Equal(t, []string{}, conv.Tags)
	assert.Nil(t, conv.ArchivedAt)
	assert.NotZero(t, conv.CreatedAt)

	rec := testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/conversations/%d", conv.ID), "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tags":[]`)

	rec = testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/conversations/%d", conv.ID), "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = testapi.Do(t, router, http.MethodGet, "/v1/conversations/abc", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = testapi.Do(t, router, http.MethodGet, "/v1/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateConversation_RejectsUnknownPortal(t *testing.T) {
	router, _, _ := testapi.Router(t, conversations.MountRoutes)

	rec := testapi.Do(t, router, http.MethodPost, "/v1/conversations", "alice", map[string]any{"portalType": "kiosk"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateEndpoints(t *testing.T) {
	router, _, _ := testapi.Router(t, conversations.MountRoutes)
	conv := createConversation(t, router, "alice", "old")
	base := fmt.Sprintf("/v1/conversations/%d", conv.ID)

	var got httpapi.ConversationView
	rec := testapi.Do(t, router, http.MethodPut, base+"/title", "alice", map[string]any{"title": "X"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	testapi.Decode(t, rec, &got)
	assert.Equal(t, "X", got.Title)

	rec = testapi.Do(t, router, http.MethodPut, base+"/tags", "alice", map[string]any{"tags": []string{"cardio", "cardio", "urgent"}})
	require.Equal(t, http.StatusOK, rec.Code)
	testapi.Decode(t, rec, &got)
	assert.Equal(t, []string{"cardio", "urgent"}, got.Tags)

	rec = testapi.Do(t, router, http.MethodPut, base+"/tags", "alice", map[string]any{"tags": []string{}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tags":[]`)

	rec = testapi.Do(t, router, http.MethodPut, base+"/summary", "alice", map[string]any{"summary": "stable"})
	require.Equal(t, http.StatusOK, rec.Code)
	testapi.Decode(t, rec, &got)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "stable", *got.Summary)

	rec = testapi.Do(t, router, http.MethodPut, base+"/patient", "alice", map[string]any{"patientId": 42, "patientName": "Jane Roe"})
	require.Equal(t, http.StatusOK, rec.Code)
	testapi.Decode(t, rec, &got)
	require.NotNil(t, got.PatientID)
	assert.Equal(t, int64(42), *got.PatientID)

	rec = testapi.Do(t, router, http.MethodPut, base+"/patient", "alice", map[string]any{"patientId": 42})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testapi.Do(t, router, http.MethodPut, base+"/status", "alice", map[string]any{"status": "closed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testapi.Do(t, router, http.MethodPut, base+"/status", "alice", map[string]any{"status": "difficult_case"})
	require.Equal(t, http.StatusOK, rec.Code)
	testapi.Decode(t, rec, &got)
	assert.Equal(t, "difficult_case", string(got.Status))

	rec = testapi.Do(t, router, http.MethodPost, base+"/archive", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	testapi.Decode(t, rec, &got)
	assert.Equal(t, "archived", string(got.Status))
	assert.NotNil(t, got.ArchivedAt)
	assert.False(t, got.ArchivedToTimeline)

	rec = testapi.Do(t, router, http.MethodPut, base+"/title", "bob", map[string]any{"title": "stolen"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListConversations(t *testing.T) {
	router, _, _ := testapi.Router(t, conversations.MountRoutes)
	cardio := createConversation(t, router, "alice", "cardio")
	neuro := createConversation(t, router, "alice", "neuro")
	createConversation(t, router, "bob", "bob's")

	rec := testapi.Do(t, router, http.MethodPut, fmt.Sprintf("/v1/conversations/%d/tags", cardio.ID), "alice", map[string]any{"tags": []string{"cardio"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var list listResponse
	rec = testapi.Do(t, router, http.MethodGet, "/v1/conversations", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	testapi.Decode(t, rec, &list)
	require.Len(t, list.Data, 2)
	assert.Equal(t, cardio.ID, list.Data[0].ID, "most recently updated first")

	rec = testapi.Do(t, router, http.MethodGet, "/v1/conversations?tags=cardio,derm", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	testapi.Decode(t, rec, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, cardio.ID, list.Data[0].ID)

	rec = testapi.Do(t, router, http.MethodPost, "/v1/conversations/archive", "alice", map[string]any{
		"conversationIds":   []int64{cardio.ID, neuro.ID, 9999},
		"archiveToTimeline": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"archived":2}`, rec.Body.String())

	rec = testapi.Do(t, router, http.MethodGet, "/v1/conversations", "alice", nil)
	testapi.Decode(t, rec, &list)
	assert.Empty(t, list.Data)

	rec = testapi.Do(t, router, http.MethodGet, "/v1/conversations?dateRange=archived", "alice", nil)
	testapi.Decode(t, rec, &list)
	assert.Len(t, list.Data, 2)

	rec = testapi.Do(t, router, http.MethodGet, "/v1/conversations?dateRange=last_year", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = testapi.Do(t, router, http.MethodGet, "/v1/conversations?includeArchived=maybe", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPatientConversations(t *testing.T) {
	router, _, _ := testapi.Router(t, conversations.MountRoutes)
	conv := createConversation(t, router, "alice", "linked")
	createConversation(t, router, "alice", "unlinked")

	rec := testapi.Do(t, router, http.MethodPut, fmt.Sprintf("/v1/conversations/%d/patient", conv.ID), "alice", map[string]any{"patientId": 7, "patientName": "P7"})
	require.Equal(t, http.StatusOK, rec.Code)

	var list listResponse
	rec = testapi.Do(t, router, http.MethodGet, "/v1/patients/7/conversations", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	testapi.Decode(t, rec, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, conv.ID, list.Data[0].ID)
}

func TestHistoryAndDelete(t *testing.T) {
	router, _, _ := testapi.Router(t, conversations.MountRoutes, messages.MountRoutes)
	conv := createConversation(t, router, "alice", "history")
	base := fmt.Sprintf("/v1/conversations/%d", conv.ID)

	rec := testapi.Do(t, router, http.MethodPost, base+"/messages", "alice", map[string]any{"index": 0, "role": "assistant", "content": "answer"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID int64 `json:"id"`
	}
	testapi.Decode(t, rec, &created)

	rec = testapi.Do(t, router, http.MethodPost, fmt.Sprintf("/v1/messages/%d/units", created.ID), "alice", map[string]any{
		"units": []map[string]string{{"type": "text", "content": "a"}, {"type": "text", "content": "b"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = testapi.Do(t, router, http.MethodGet, base+"/history", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history httpapi.HistoryView
	testapi.Decode(t, rec, &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "answer", history.Messages[0].Content)
	assert.Len(t, history.Messages[0].Units, 2)
	assert.Contains(t, rec.Body.String(), `"searchCitations":[]`)
	assert.Contains(t, rec.Body.String(), `"imageCitations":[]`)

	rec = testapi.Do(t, router, http.MethodDelete, base, "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = testapi.Do(t, router, http.MethodDelete, base, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = testapi.Do(t, router, http.MethodGet, base+"/history", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAllConversations(t *testing.T) {
	router, _, _ := testapi.Router(t, conversations.MountRoutes)
	createConversation(t, router, "alice", "one")
	createConversation(t, router, "alice", "two")
	kept := createConversation(t, router, "bob", "bob's")

	rec := testapi.Do(t, router, http.MethodDelete, "/v1/conversations", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2}`, rec.Body.String())

	rec = testapi.Do(t, router, http.MethodGet, fmt.Sprintf("/v1/conversations/%d", kept.ID), "bob", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
