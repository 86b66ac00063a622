package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/clinical-history/internal/model"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"gorm.io/gorm"
)

// children are the tables tombstoned together with their conversation. GORM
// writes updated values back into the model, so each use gets a fresh one.
var children = []struct {
	name  string
	model func() interface{}
}{
	{"messages", func() interface{} { return &model.Message{} }},
	{"message units", func() interface{} { return &model.MessageUnit{} }},
	{"search citations", func() interface{} { return &model.SearchCitation{} }},
	{"image citations", func() interface{} { return &model.ImageCitation{} }},
}

// --- Cascades ---

func (s *Store) DeleteConversation(ctx context.Context, scope registrystore.Scope, conversationID int64) (bool, error) {
	if err := requireTenant(scope); err != nil {
		return false, err
	}
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = cascadeDelete(tx, scope, conversationID, NowUTC())
		return err
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *Store) DeleteAllForUser(ctx context.Context, scope registrystore.Scope, userID string) (int64, error) {
	if err := requireTenant(scope); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, &registrystore.ValidationError{Field: "userId", Message: "user is required"}
	}
	owner := registrystore.Scope{TenantID: scope.TenantID, UserID: userID}

	var ids []int64
	err := live(s.db.WithContext(ctx).Model(&model.Conversation{}), owner).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list conversations for user: %w", err)
	}

	var count int64
	var errs []error
	for _, id := range ids {
		deleted, err := s.DeleteConversation(ctx, owner, id)
		if err != nil {
			log.Error("Failed to delete conversation", "tenant", scope.TenantID, "conversation", id, "err", err)
			errs = append(errs, fmt.Errorf("conversation %d: %w", id, err))
			continue
		}
		if deleted {
			count++
		}
	}
	log.Info("Deleted conversations for user", "tenant", scope.TenantID, "user", userID, "count", count)
	return count, errors.Join(errs...)
}

// cascadeDelete tombstones one conversation and, only if that matched, every
// child row carrying its id.
func cascadeDelete(tx *gorm.DB, scope registrystore.Scope, conversationID int64, now time.Time) (bool, error) {
	tombstone := func() map[string]interface{} {
		fields := touched(scope, now)
		fields["deleted_at"] = now
		return fields
	}

	res := live(tx.Model(&model.Conversation{}), scope).
		Where("id = ?", conversationID).
		Updates(tombstone())
	if res.Error != nil {
		return false, fmt.Errorf("failed to soft-delete conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	for _, c := range children {
		err := live(tx.Model(c.model()), tenantOnly(scope)).
			Where("conversation_id = ?", conversationID).
			Updates(tombstone()).Error
		if err != nil {
			return false, fmt.Errorf("failed to soft-delete %s: %w", c.name, err)
		}
	}
	return true, nil
}
