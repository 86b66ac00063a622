package gormstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/chirino/clinical-history/internal/model"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// --- Messages ---

func (s *Store) AppendMessage(ctx context.Context, scope registrystore.Scope, req registrystore.CreateMessageRequest) (int64, error) {
	if err := requireTenant(scope); err != nil {
		return 0, err
	}
	if !req.Role.Valid() {
		return 0, &registrystore.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", req.Role)}
	}
	if req.Index < 0 {
		return 0, &registrystore.ValidationError{Field: "index", Message: "must not be negative"}
	}
	attachments := req.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	var id int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := NowUTC()
		// Touching the parent both proves it exists and orders concurrent appends.
		res := live(tx.Model(&model.Conversation{}), scope).
			Where("id = ?", req.ConversationID).
			Updates(touched(scope, now))
		if res.Error != nil {
			return fmt.Errorf("failed to touch conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &registrystore.ValidationError{Field: "conversationId", Message: "conversation does not exist"}
		}

		msg := model.Message{
			TenantID:       scope.TenantID,
			ConversationID: req.ConversationID,
			MessageIndex:   req.Index,
			Role:           req.Role,
			Content:        req.Content,
			Attachments:    datatypes.JSONSlice[string](attachments),
			CreatedBy:      scope.UserID,
			UpdatedBy:      scope.UserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return s.writeErr(err, "append message", fmt.Sprintf("message index %d is already used in conversation %d", req.Index, req.ConversationID))
		}
		id = msg.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) AppendUnits(ctx context.Context, scope registrystore.Scope, messageID int64, conversationID int64, units []registrystore.CreateUnitRequest) ([]int64, error) {
	if len(units) == 0 {
		return []int64{}, nil
	}
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	for i, u := range units {
		if strings.TrimSpace(u.UnitType) == "" {
			return nil, &registrystore.ValidationError{Field: fmt.Sprintf("units[%d].type", i), Message: "unit type is required"}
		}
	}

	ids := make([]int64, 0, len(units))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg model.Message
		err := live(tx, scope).Where("id = ?", messageID).First(&msg).Error
		if isNotFound(err) {
			return &registrystore.ValidationError{Field: "messageId", Message: "message does not exist"}
		}
		if err != nil {
			return fmt.Errorf("failed to load message: %w", err)
		}
		if conversationID != 0 && msg.ConversationID != conversationID {
			return &registrystore.ValidationError{Field: "conversationId", Message: "message belongs to another conversation"}
		}

		now := NowUTC()
		for i, u := range units {
			unit := model.MessageUnit{
				TenantID:       scope.TenantID,
				MessageID:      msg.ID,
				ConversationID: msg.ConversationID,
				UnitIndex:      i,
				UnitType:       u.UnitType,
				Content:        u.Content,
				CreatedBy:      scope.UserID,
				UpdatedBy:      scope.UserID,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.Create(&unit).Error; err != nil {
				return s.writeErr(err, "append message unit", fmt.Sprintf("message %d already has units", messageID))
			}
			ids = append(ids, unit.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) SetOpinion(ctx context.Context, scope registrystore.Scope, messageID int64, opinion *model.Opinion) (bool, error) {
	if err := requireTenant(scope); err != nil {
		return false, err
	}
	fields := touched(scope, NowUTC())
	fields["opinion"] = nil
	if opinion != nil {
		if !opinion.Valid() {
			return false, &registrystore.ValidationError{Field: "opinion", Message: fmt.Sprintf("unknown opinion %q", *opinion)}
		}
		fields["opinion"] = string(*opinion)
	}
	res := live(s.db.WithContext(ctx).Model(&model.Message{}), scope).
		Where("id = ?", messageID).
		Updates(fields)
	if res.Error != nil {
		return false, fmt.Errorf("failed to set opinion: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetMessage(ctx context.Context, scope registrystore.Scope, messageID int64) (*model.Message, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	var msg model.Message
	err := live(s.db.WithContext(ctx), scope).Where("id = ?", messageID).First(&msg).Error
	if isNotFound(err) {
		return nil, registrystore.NotFound("message", messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	normalizeMessage(&msg)
	return &msg, nil
}

func (s *Store) ListMessages(ctx context.Context, scope registrystore.Scope, conversationID int64) ([]model.Message, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	msgs := []model.Message{}
	err := live(s.db.WithContext(ctx), scope).
		Where("conversation_id = ?", conversationID).
		Order("message_index ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	for i := range msgs {
		normalizeMessage(&msgs[i])
	}
	return msgs, nil
}

func (s *Store) ListUnits(ctx context.Context, scope registrystore.Scope, messageID int64) ([]model.MessageUnit, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	units := []model.MessageUnit{}
	err := live(s.db.WithContext(ctx), scope).
		Where("message_id = ?", messageID).
		Order("unit_index ASC, id ASC").
		Find(&units).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list message units: %w", err)
	}
	return units, nil
}

func (s *Store) GetMessageIDByIndex(ctx context.Context, scope registrystore.Scope, conversationID int64, index int) (int64, error) {
	if err := requireTenant(scope); err != nil {
		return 0, err
	}
	var ids []int64
	err := live(s.db.WithContext(ctx).Model(&model.Message{}), scope).
		Where("conversation_id = ? AND message_index = ?", conversationID, index).
		Order("id ASC").
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to resolve message index: %w", err)
	}
	if len(ids) == 0 {
		return 0, &registrystore.NotFoundError{Resource: "message", ID: fmt.Sprintf("%d#%d", conversationID, index)}
	}
	return ids[0], nil
}

func normalizeMessage(m *model.Message) {
	if m.Attachments == nil {
		m.Attachments = datatypes.JSONSlice[string]{}
	}
}
