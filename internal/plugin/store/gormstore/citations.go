package gormstore

import (
	"context"
	"fmt"

	"github.com/chirino/clinical-history/internal/model"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// scoreScale matches the fractional digits of the score columns.
const scoreScale = 6

// --- Citations ---

func (s *Store) AddSearchCitation(ctx context.Context, scope registrystore.Scope, req registrystore.SearchCitationRequest) (int64, error) {
	if err := requireTenant(scope); err != nil {
		return 0, err
	}
	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = model.SourceTypeText
	}
	if sourceType != model.SourceTypeURL && sourceType != model.SourceTypeText {
		return 0, &registrystore.ValidationError{Field: "sourceType", Message: fmt.Sprintf("unknown source type %q", sourceType)}
	}

	var id int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := citedMessage(tx, scope, req.MessageID, req.ConversationID, req.UnitID)
		if err != nil {
			return err
		}
		now := NowUTC()
		row := model.SearchCitation{
			TenantID:       scope.TenantID,
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			UnitID:         req.UnitID,
			SourceType:     sourceType,
			Title:          req.Title,
			Location:       req.Location,
			Content:        req.Content,
			ScoreOverall:   score(req.ScoreOverall),
			ScoreAccuracy:  score(req.ScoreAccuracy),
			ScoreSemantic:  score(req.ScoreSemantic),
			PublishedDate:  req.PublishedDate,
			CiteIndex:      req.CiteIndex,
			SearchType:     req.SearchType,
			ToolSign:       req.ToolSign,
			CreatedBy:      scope.UserID,
			UpdatedBy:      scope.UserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to add search citation: %w", err)
		}
		id = row.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) AddImageCitation(ctx context.Context, scope registrystore.Scope, req registrystore.ImageCitationRequest) (int64, error) {
	if err := requireTenant(scope); err != nil {
		return 0, err
	}

	var id int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := citedMessage(tx, scope, req.MessageID, req.ConversationID, req.UnitID)
		if err != nil {
			return err
		}
		now := NowUTC()
		row := model.ImageCitation{
			TenantID:       scope.TenantID,
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			UnitID:         req.UnitID,
			ImageURL:       req.ImageURL,
			CiteIndex:      req.CiteIndex,
			SearchType:     req.SearchType,
			CreatedBy:      scope.UserID,
			UpdatedBy:      scope.UserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to add image citation: %w", err)
		}
		id = row.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) ListSearchCitations(ctx context.Context, scope registrystore.Scope, query registrystore.CitationQuery) ([]model.SearchCitation, error) {
	tx, err := citationQuery(s.db.WithContext(ctx), scope, query)
	if err != nil {
		return nil, err
	}
	rows := []model.SearchCitation{}
	if err := tx.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list search citations: %w", err)
	}
	return rows, nil
}

func (s *Store) ListImageCitations(ctx context.Context, scope registrystore.Scope, query registrystore.CitationQuery) ([]model.ImageCitation, error) {
	tx, err := citationQuery(s.db.WithContext(ctx), scope, query)
	if err != nil {
		return nil, err
	}
	rows := []model.ImageCitation{}
	if err := tx.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list image citations: %w", err)
	}
	return rows, nil
}

func (s *Store) GetSources(ctx context.Context, scope registrystore.Scope, query registrystore.CitationQuery, kind model.CitationKind) (*registrystore.Sources, error) {
	if kind == "" {
		kind = model.CitationKindAll
	}
	if !kind.Valid() {
		return nil, &registrystore.ValidationError{Field: "type", Message: fmt.Sprintf("unknown citation type %q", kind)}
	}
	sources := &registrystore.Sources{
		Searches: []model.SearchCitation{},
		Images:   []model.ImageCitation{},
	}
	var err error
	if kind != model.CitationKindImage {
		if sources.Searches, err = s.ListSearchCitations(ctx, scope, query); err != nil {
			return nil, err
		}
	}
	if kind != model.CitationKindSearch {
		if sources.Images, err = s.ListImageCitations(ctx, scope, query); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

// citedMessage loads the message a citation attaches to and checks the
// optional conversation and unit references against it.
func citedMessage(tx *gorm.DB, scope registrystore.Scope, messageID, conversationID int64, unitID *int64) (*model.Message, error) {
	if messageID == 0 {
		return nil, &registrystore.ValidationError{Field: "messageId", Message: "message is required"}
	}
	var msg model.Message
	err := live(tx, scope).Where("id = ?", messageID).First(&msg).Error
	if isNotFound(err) {
		return nil, &registrystore.ValidationError{Field: "messageId", Message: "message does not exist"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	if conversationID != 0 && conversationID != msg.ConversationID {
		return nil, &registrystore.ValidationError{Field: "conversationId", Message: "message belongs to another conversation"}
	}
	if unitID != nil {
		var count int64
		err := live(tx.Model(&model.MessageUnit{}), tenantOnly(scope)).
			Where("id = ? AND message_id = ?", *unitID, msg.ID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load message unit: %w", err)
		}
		if count == 0 {
			return nil, &registrystore.ValidationError{Field: "unitId", Message: "unit does not belong to the message"}
		}
	}
	return &msg, nil
}

func citationQuery(tx *gorm.DB, scope registrystore.Scope, query registrystore.CitationQuery) (*gorm.DB, error) {
	if err := requireTenant(scope); err != nil {
		return nil, err
	}
	tx = live(tx, scope)
	switch {
	case query.MessageID != 0:
		return tx.Where("message_id = ?", query.MessageID), nil
	case query.ConversationID != 0:
		return tx.Where("conversation_id = ?", query.ConversationID), nil
	}
	return nil, &registrystore.ValidationError{Field: "messageId", Message: "a message or conversation id is required"}
}

// score stores scores as given, rounded to the column scale. Out-of-range
// values are accepted.
func score(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d.Round(scoreScale), Valid: true}
}
