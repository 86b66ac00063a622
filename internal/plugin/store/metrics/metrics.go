package metrics

import (
	"context"
	"time"

	"github.com/chirino/clinical-history/internal/model"
	"github.com/chirino/clinical-history/internal/registry/store"
	"github.com/chirino/clinical-history/internal/security"
)

// Wrap returns a HistoryStore that records StoreLatency for every operation.
func Wrap(inner store.HistoryStore) store.HistoryStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.HistoryStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) CreateConversation(ctx context.Context, scope store.Scope, title string, portal model.Portal) (*model.Conversation, error) {
	defer observe("create_conversation", time.Now())
	return m.inner.CreateConversation(ctx, scope, title, portal)
}

func (m *metricsStore) GetConversation(ctx context.Context, scope store.Scope, conversationID int64) (*model.Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, scope, conversationID)
}

func (m *metricsStore) ListConversations(ctx context.Context, scope store.Scope, filter store.ConversationFilter) ([]model.Conversation, error) {
	defer observe("list_conversations", time.Now())
	return m.inner.ListConversations(ctx, scope, filter)
}

func (m *metricsStore) ListPatientConversations(ctx context.Context, scope store.Scope, patientID int64, filter store.PatientConversationFilter) ([]model.Conversation, error) {
	defer observe("list_patient_conversations", time.Now())
	return m.inner.ListPatientConversations(ctx, scope, patientID, filter)
}

func (m *metricsStore) RenameConversation(ctx context.Context, scope store.Scope, conversationID int64, title string) (bool, error) {
	defer observe("rename_conversation", time.Now())
	return m.inner.RenameConversation(ctx, scope, conversationID, title)
}

func (m *metricsStore) UpdateStatus(ctx context.Context, scope store.Scope, conversationID int64, status model.Status) (bool, error) {
	defer observe("update_status", time.Now())
	return m.inner.UpdateStatus(ctx, scope, conversationID, status)
}

func (m *metricsStore) UpdateTags(ctx context.Context, scope store.Scope, conversationID int64, tags []string) (bool, error) {
	defer observe("update_tags", time.Now())
	return m.inner.UpdateTags(ctx, scope, conversationID, tags)
}

func (m *metricsStore) UpdateSummary(ctx context.Context, scope store.Scope, conversationID int64, summary string) (bool, error) {
	defer observe("update_summary", time.Now())
	return m.inner.UpdateSummary(ctx, scope, conversationID, summary)
}

func (m *metricsStore) LinkPatient(ctx context.Context, scope store.Scope, conversationID int64, link *store.PatientLink) (bool, error) {
	defer observe("link_patient", time.Now())
	return m.inner.LinkPatient(ctx, scope, conversationID, link)
}

func (m *metricsStore) ArchiveConversation(ctx context.Context, scope store.Scope, conversationID int64, toTimeline bool) (bool, error) {
	defer observe("archive_conversation", time.Now())
	return m.inner.ArchiveConversation(ctx, scope, conversationID, toTimeline)
}

func (m *metricsStore) BatchArchive(ctx context.Context, scope store.Scope, conversationIDs []int64, toTimeline bool) (int64, error) {
	defer observe("batch_archive", time.Now())
	return m.inner.BatchArchive(ctx, scope, conversationIDs, toTimeline)
}

func (m *metricsStore) AppendMessage(ctx context.Context, scope store.Scope, req store.CreateMessageRequest) (int64, error) {
	defer observe("append_message", time.Now())
	return m.inner.AppendMessage(ctx, scope, req)
}

func (m *metricsStore) AppendUnits(ctx context.Context, scope store.Scope, messageID int64, conversationID int64, units []store.CreateUnitRequest) ([]int64, error) {
	defer observe("append_units", time.Now())
	return m.inner.AppendUnits(ctx, scope, messageID, conversationID, units)
}

func (m *metricsStore) SetOpinion(ctx context.Context, scope store.Scope, messageID int64, opinion *model.Opinion) (bool, error) {
	defer observe("set_opinion", time.Now())
	return m.inner.SetOpinion(ctx, scope, messageID, opinion)
}

func (m *metricsStore) GetMessage(ctx context.Context, scope store.Scope, messageID int64) (*model.Message, error) {
	defer observe("get_message", time.Now())
	return m.inner.GetMessage(ctx, scope, messageID)
}

func (m *metricsStore) ListMessages(ctx context.Context, scope store.Scope, conversationID int64) ([]model.Message, error) {
	defer observe("list_messages", time.Now())
	return m.inner.ListMessages(ctx, scope, conversationID)
}

func (m *metricsStore) ListUnits(ctx context.Context, scope store.Scope, messageID int64) ([]model.MessageUnit, error) {
	defer observe("list_units", time.Now())
	return m.inner.ListUnits(ctx, scope, messageID)
}

func (m *metricsStore) GetMessageIDByIndex(ctx context.Context, scope store.Scope, conversationID int64, index int) (int64, error) {
	defer observe("get_message_id_by_index", time.Now())
	return m.inner.GetMessageIDByIndex(ctx, scope, conversationID, index)
}

func (m *metricsStore) AddSearchCitation(ctx context.Context, scope store.Scope, req store.SearchCitationRequest) (int64, error) {
	defer observe("add_search_citation", time.Now())
	return m.inner.AddSearchCitation(ctx, scope, req)
}

func (m *metricsStore) AddImageCitation(ctx context.Context, scope store.Scope, req store.ImageCitationRequest) (int64, error) {
	defer observe("add_image_citation", time.Now())
	return m.inner.AddImageCitation(ctx, scope, req)
}

func (m *metricsStore) ListSearchCitations(ctx context.Context, scope store.Scope, query store.CitationQuery) ([]model.SearchCitation, error) {
	defer observe("list_search_citations", time.Now())
	return m.inner.ListSearchCitations(ctx, scope, query)
}

func (m *metricsStore) ListImageCitations(ctx context.Context, scope store.Scope, query store.CitationQuery) ([]model.ImageCitation, error) {
	defer observe("list_image_citations", time.Now())
	return m.inner.ListImageCitations(ctx, scope, query)
}

func (m *metricsStore) GetSources(ctx context.Context, scope store.Scope, query store.CitationQuery, kind model.CitationKind) (*store.Sources, error) {
	defer observe("get_sources", time.Now())
	return m.inner.GetSources(ctx, scope, query, kind)
}

func (m *metricsStore) GetFullHistory(ctx context.Context, scope store.Scope, conversationID int64) (*model.History, error) {
	defer observe("get_full_history", time.Now())
	return m.inner.GetFullHistory(ctx, scope, conversationID)
}

func (m *metricsStore) DeleteConversation(ctx context.Context, scope store.Scope, conversationID int64) (bool, error) {
	defer observe("delete_conversation", time.Now())
	return m.inner.DeleteConversation(ctx, scope, conversationID)
}

func (m *metricsStore) DeleteAllForUser(ctx context.Context, scope store.Scope, userID string) (int64, error) {
	defer observe("delete_all_for_user", time.Now())
	return m.inner.DeleteAllForUser(ctx, scope, userID)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	return m.inner.Ping(ctx)
}
