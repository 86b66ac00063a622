package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/clinical-history/internal/model"
	"github.com/shopspring/decimal"
)

// Scope carries the caller identity every operation runs under. TenantID is
// mandatory. A non-empty UserID restricts reads and updates to rows the user
// created, and is recorded as creator/updater on writes.
type Scope struct {
	TenantID string
	UserID   string
}

// PatientLink references an external patient record by id plus a display name.
type PatientLink struct {
	PatientID   int64
	PatientName string
}

// ConversationFilter narrows ListConversations. Every field is optional and
// they combine conjunctively.
type ConversationFilter struct {
	PortalType      *model.Portal
	PatientID       *int64
	Status          *model.Status
	Tags            []string
	DateRange       model.DateRange
	IncludeArchived bool
}

// PatientConversationFilter narrows ListPatientConversations.
type PatientConversationFilter struct {
	Status          *model.Status
	IncludeArchived bool
}

// CreateMessageRequest appends one message at a caller-assigned index.
type CreateMessageRequest struct {
	ConversationID int64
	Index          int
	Role           model.Role
	Content        string
	Attachments    []string
}

// CreateUnitRequest is one unit of an AppendUnits batch.
type CreateUnitRequest struct {
	UnitType string
	Content  string
}

// SearchCitationRequest records a search result cited by a message.
// ConversationID is optional; when set it must match the message.
type SearchCitationRequest struct {
	MessageID      int64
	ConversationID int64
	UnitID         *int64
	SourceType     model.SourceType
	Title          string
	Location       string
	Content        string
	ScoreOverall   *decimal.Decimal
	ScoreAccuracy  *decimal.Decimal
	ScoreSemantic  *decimal.Decimal
	PublishedDate  *time.Time
	CiteIndex      *int
	SearchType     *string
	ToolSign       *string
}

// ImageCitationRequest records an image cited by a message.
type ImageCitationRequest struct {
	MessageID      int64
	ConversationID int64
	UnitID         *int64
	ImageURL       string
	CiteIndex      *int
	SearchType     *string
}

// CitationQuery selects citations by message or, when MessageID is zero, by conversation.
type CitationQuery struct {
	MessageID      int64
	ConversationID int64
}

// Sources is the combined citation view for a conversation or message.
type Sources struct {
	Searches []model.SearchCitation
	Images   []model.ImageCitation
}

// HistoryStore is the persistence surface for conversations, messages,
// message units and citations, plus the history aggregate and cascades.
type HistoryStore interface {
	// Conversations
	CreateConversation(ctx context.Context, scope Scope, title string, portal model.Portal) (*model.Conversation, error)
	GetConversation(ctx context.Context, scope Scope, conversationID int64) (*model.Conversation, error)
	ListConversations(ctx context.Context, scope Scope, filter ConversationFilter) ([]model.Conversation, error)
	ListPatientConversations(ctx context.Context, scope Scope, patientID int64, filter PatientConversationFilter) ([]model.Conversation, error)
	RenameConversation(ctx context.Context, scope Scope, conversationID int64, title string) (bool, error)
	UpdateStatus(ctx context.Context, scope Scope, conversationID int64, status model.Status) (bool, error)
	UpdateTags(ctx context.Context, scope Scope, conversationID int64, tags []string) (bool, error)
	UpdateSummary(ctx context.Context, scope Scope, conversationID int64, summary string) (bool, error)
	LinkPatient(ctx context.Context, scope Scope, conversationID int64, link *PatientLink) (bool, error)
	ArchiveConversation(ctx context.Context, scope Scope, conversationID int64, toTimeline bool) (bool, error)
	BatchArchive(ctx context.Context, scope Scope, conversationIDs []int64, toTimeline bool) (int64, error)

	// Messages and units
	AppendMessage(ctx context.Context, scope Scope, req CreateMessageRequest) (int64, error)
	AppendUnits(ctx context.Context, scope Scope, messageID int64, conversationID int64, units []CreateUnitRequest) ([]int64, error)
	SetOpinion(ctx context.Context, scope Scope, messageID int64, opinion *model.Opinion) (bool, error)
	GetMessage(ctx context.Context, scope Scope, messageID int64) (*model.Message, error)
	ListMessages(ctx context.Context, scope Scope, conversationID int64) ([]model.Message, error)
	ListUnits(ctx context.Context, scope Scope, messageID int64) ([]model.MessageUnit, error)
	GetMessageIDByIndex(ctx context.Context, scope Scope, conversationID int64, index int) (int64, error)

	// Citations
	AddSearchCitation(ctx context.Context, scope Scope, req SearchCitationRequest) (int64, error)
	AddImageCitation(ctx context.Context, scope Scope, req ImageCitationRequest) (int64, error)
	ListSearchCitations(ctx context.Context, scope Scope, query CitationQuery) ([]model.SearchCitation, error)
	ListImageCitations(ctx context.Context, scope Scope, query CitationQuery) ([]model.ImageCitation, error)
	GetSources(ctx context.Context, scope Scope, query CitationQuery, kind model.CitationKind) (*Sources, error)

	// History
	GetFullHistory(ctx context.Context, scope Scope, conversationID int64) (*model.History, error)

	// Cascades
	DeleteConversation(ctx context.Context, scope Scope, conversationID int64) (bool, error)
	DeleteAllForUser(ctx context.Context, scope Scope, userID string) (int64, error)

	// Ping verifies the datastore is reachable.
	Ping(ctx context.Context) error
}

// Loader creates a HistoryStore from config.
type Loader func(ctx context.Context) (HistoryStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
