package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/clinical-history/internal/model"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// --- Conversations ---

func (s *Store) CreateConversation(ctx context.Context, scope registrystore.Scope, title string, portal model.Portal) (*model.Conversation, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	if portal == "" {
		portal = model.PortalGeneral
	}
	if !portal.Valid() {
		return nil, &registrystore.ValidationError{Field: "portalType", Message: fmt.Sprintf("unknown portal %q", portal)}
	}

	now := NowUTC()
	conv := model.Conversation{
		TenantID:   scope.TenantID,
		Title:      title,
		PortalType: portal,
		Status:     model.StatusActive,
		Tags:       datatypes.JSONSlice[string]{},
		CreatedBy:  scope.UserID,
		UpdatedBy:  scope.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conv, nil
}

func (s *Store) GetConversation(ctx context.Context, scope registrystore.Scope, conversationID int64) (*model.Conversation, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	var conv model.Conversation
	err := live(s.db.WithContext(ctx), scope).Where("id = ?", conversationID).First(&conv).Error
	if isNotFound(err) {
		return nil, registrystore.NotFound("conversation", conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	normalizeConversation(&conv)
	return &conv, nil
}

func (s *Store) ListConversations(ctx context.Context, scope registrystore.Scope, filter registrystore.ConversationFilter) ([]model.Conversation, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	if !filter.DateRange.Valid() {
		return nil, &registrystore.ValidationError{Field: "dateRange", Message: fmt.Sprintf("unknown date range %q", filter.DateRange)}
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, &registrystore.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *filter.Status)}
	}

	tx := live(s.db.WithContext(ctx).Model(&model.Conversation{}), scope)
	if filter.PortalType != nil {
		tx = tx.Where("portal_type = ?", *filter.PortalType)
	}
	if filter.PatientID != nil {
		tx = tx.Where("patient_id = ?", *filter.PatientID)
	}

	// An explicit status wins over the default archived exclusion; the
	// archived bucket pins the status regardless of the inclusion toggle.
	switch {
	case filter.DateRange == model.DateRangeArchived:
		tx = tx.Where("status = ?", model.StatusArchived)
		if filter.Status != nil {
			tx = tx.Where("status = ?", *filter.Status)
		}
	case filter.Status != nil:
		tx = tx.Where("status = ?", *filter.Status)
	case !filter.IncludeArchived:
		tx = tx.Where("status <> ?", model.StatusArchived)
	}

	if start, ok := dateRangeStart(filter.DateRange, time.Now()); ok {
		tx = tx.Where("created_at >= ?", start.UTC())
	}
	if tags := dedupe(filter.Tags); len(tags) > 0 {
		tx = tx.Where(s.dialect.TagsOverlap("conversations.tags"), tags)
	}

	convs := []model.Conversation{}
	if err := tx.Order("updated_at DESC, id DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	for i := range convs {
		normalizeConversation(&convs[i])
	}
	return convs, nil
}

func (s *Store) ListPatientConversations(ctx context.Context, scope registrystore.Scope, patientID int64, filter registrystore.PatientConversationFilter) ([]model.Conversation, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, &registrystore.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *filter.Status)}
	}

	tx := live(s.db.WithContext(ctx).Model(&model.Conversation{}), scope).Where("patient_id = ?", patientID)
	switch {
	case filter.Status != nil:
		tx = tx.Where("status = ?", *filter.Status)
	case !filter.IncludeArchived:
		tx = tx.Where("status <> ?", model.StatusArchived)
	}

	convs := []model.Conversation{}
	if err := tx.Order("created_at DESC, id DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list patient conversations: %w", err)
	}
	for i := range convs {
		normalizeConversation(&convs[i])
	}
	return convs, nil
}

func (s *Store) RenameConversation(ctx context.Context, scope registrystore.Scope, conversationID int64, title string) (bool, error) {
	return s.updateConversation(ctx, scope, conversationID, "rename conversation", map[string]interface{}{
		"title": title,
	})
}

func (s *Store) UpdateStatus(ctx context.Context, scope registrystore.Scope, conversationID int64, status model.Status) (bool, error) {
	if !status.Valid() {
		return false, &registrystore.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	fields := map[string]interface{}{"status": status}
	if status == model.StatusArchived {
		fields["archived_at"] = archivedAtOnce()
	}
	return s.updateConversation(ctx, scope, conversationID, "update conversation status", fields)
}

func (s *Store) UpdateTags(ctx context.Context, scope registrystore.Scope, conversationID int64, tags []string) (bool, error) {
	return s.updateConversation(ctx, scope, conversationID, "update conversation tags", map[string]interface{}{
		"tags": datatypes.JSONSlice[string](dedupe(tags)),
	})
}

func (s *Store) UpdateSummary(ctx context.Context, scope registrystore.Scope, conversationID int64, summary string) (bool, error) {
	return s.updateConversation(ctx, scope, conversationID, "update conversation summary", map[string]interface{}{
		"summary": summary,
	})
}

func (s *Store) LinkPatient(ctx context.Context, scope registrystore.Scope, conversationID int64, link *registrystore.PatientLink) (bool, error) {
	fields := map[string]interface{}{"patient_id": nil, "patient_name": nil}
	if link != nil {
		fields["patient_id"] = link.PatientID
		fields["patient_name"] = link.PatientName
	}
	return s.updateConversation(ctx, scope, conversationID, "link patient", fields)
}

func (s *Store) ArchiveConversation(ctx context.Context, scope registrystore.Scope, conversationID int64, toTimeline bool) (bool, error) {
	return s.updateConversation(ctx, scope, conversationID, "archive conversation", archiveFields(toTimeline))
}

func (s *Store) BatchArchive(ctx context.Context, scope registrystore.Scope, conversationIDs []int64, toTimeline bool) (int64, error) {
	if err := requireTenant(scope); err != nil {
		return 0, err
	}
	if len(conversationIDs) == 0 {
		return 0, nil
	}
	fields := archiveFields(toTimeline)
	for k, v := range touched(scope, NowUTC()) {
		fields[k] = v
	}
	res := live(s.db.WithContext(ctx).Model(&model.Conversation{}), scope).
		Where("id IN ?", conversationIDs).
		Updates(fields)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to archive conversations: %w", res.Error)
	}
	log.Info("Archived conversations", "tenant", scope.TenantID, "requested", len(conversationIDs), "archived", res.RowsAffected)
	return res.RowsAffected, nil
}

// updateConversation applies fields to one live conversation and reports
// whether it matched.
func (s *Store) updateConversation(ctx context.Context, scope registrystore.Scope, conversationID int64, what string, fields map[string]interface{}) (bool, error) {
	if err := requireTenant(scope); err != nil {
		return false, err
	}
	for k, v := range touched(scope, NowUTC()) {
		fields[k] = v
	}
	res := live(s.db.WithContext(ctx).Model(&model.Conversation{}), scope).
		Where("id = ?", conversationID).
		Updates(fields)
	if res.Error != nil {
		return false, fmt.Errorf("failed to %s: %w", what, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func archiveFields(toTimeline bool) map[string]interface{} {
	return map[string]interface{}{
		"status":               model.StatusArchived,
		"archived_at":          archivedAtOnce(),
		"archived_to_timeline": toTimeline,
	}
}

// archivedAtOnce keeps the first archive time.
func archivedAtOnce() interface{} {
	return gorm.Expr("COALESCE(archived_at, ?)", NowUTC())
}

func normalizeConversation(c *model.Conversation) {
	if c.Tags == nil {
		c.Tags = datatypes.JSONSlice[string]{}
	}
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
