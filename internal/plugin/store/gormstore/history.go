package gormstore

import (
	"context"
	"fmt"

	"github.com/chirino/clinical-history/internal/model"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"golang.org/x/sync/errgroup"
)

// GetFullHistory assembles a conversation's messages, their units and the
// conversation's citations. The owner filter applies to the conversation;
// child rows are read tenant-wide once the conversation is visible. The four
// child reads are independent queries, so a concurrent append may show up in
// one and not yet in another.
func (s *Store) GetFullHistory(ctx context.Context, scope registrystore.Scope, conversationID int64) (*model.History, error) {
	conv, err := s.GetConversation(ctx, scope, conversationID)
	if err != nil {
		return nil, err
	}
	child := tenantOnly(scope)

	var (
		messages []model.Message
		units    []model.MessageUnit
		searches []model.SearchCitation
		images   []model.ImageCitation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		messages, err = s.ListMessages(gctx, child, conversationID)
		return err
	})
	g.Go(func() error {
		units = []model.MessageUnit{}
		err := live(s.db.WithContext(gctx), child).
			Where("conversation_id = ?", conversationID).
			Order("message_id ASC, unit_index ASC, id ASC").
			Find(&units).Error
		if err != nil {
			return fmt.Errorf("failed to list conversation units: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		searches, err = s.ListSearchCitations(gctx, child, registrystore.CitationQuery{ConversationID: conversationID})
		return err
	})
	g.Go(func() (err error) {
		images, err = s.ListImageCitations(gctx, child, registrystore.CitationQuery{ConversationID: conversationID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byMessage := make(map[int64][]model.MessageUnit, len(messages))
	for _, u := range units {
		byMessage[u.MessageID] = append(byMessage[u.MessageID], u)
	}
	history := &model.History{
		ConversationID:  conv.ID,
		CreatedBy:       conv.CreatedBy,
		CreatedAt:       conv.CreatedAt,
		Messages:        make([]model.HistoryMessage, 0, len(messages)),
		SearchCitations: searches,
		ImageCitations:  images,
	}
	for _, m := range messages {
		mu := byMessage[m.ID]
		if mu == nil {
			mu = []model.MessageUnit{}
		}
		history.Messages = append(history.Messages, model.HistoryMessage{Message: m, Units: mu})
	}
	return history, nil
}
