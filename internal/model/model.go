package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Portal is the front-end surface a conversation originated from.
type Portal string

const (
	PortalDoctor  Portal = "doctor"
	PortalStudent Portal = "student"
	PortalPatient Portal = "patient"
	PortalAdmin   Portal = "admin"
	PortalGeneral Portal = "general"
)

// Portals lists every accepted portal value.
func Portals() []Portal {
	return []Portal{PortalDoctor, PortalStudent, PortalPatient, PortalAdmin, PortalGeneral}
}

// Valid returns true for one of the known portals.
func (p Portal) Valid() bool {
	for _, v := range Portals() {
		if p == v {
			return true
		}
	}
	return false
}

// Status is the workflow tag of a conversation. Any status may move to any other.
type Status string

const (
	StatusActive          Status = "active"
	StatusPendingFollowup Status = "pending_followup"
	StatusDifficultCase   Status = "difficult_case"
	StatusCompleted       Status = "completed"
	StatusArchived        Status = "archived"
)

// Statuses lists every accepted status value.
func Statuses() []Status {
	return []Status{StatusActive, StatusPendingFollowup, StatusDifficultCase, StatusCompleted, StatusArchived}
}

// Valid returns true for one of the known statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses() {
		if s == v {
			return true
		}
	}
	return false
}

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Valid returns true for system, assistant or user.
func (r Role) Valid() bool {
	return r == RoleSystem || r == RoleAssistant || r == RoleUser
}

// Opinion is the reader's feedback on a message. A nil *Opinion means none.
type Opinion string

const (
	OpinionLiked    Opinion = "liked"
	OpinionDisliked Opinion = "disliked"
)

// Valid returns true for liked or disliked.
func (o Opinion) Valid() bool {
	return o == OpinionLiked || o == OpinionDisliked
}

// DateRange buckets conversations by creation time.
type DateRange string

const (
	DateRangeToday     DateRange = "today"
	DateRangeThisWeek  DateRange = "this_week"
	DateRangeThisMonth DateRange = "this_month"
	// DateRangeArchived is not a time bucket: it selects archived conversations.
	DateRangeArchived DateRange = "archived"
)

// Valid returns true for an empty range or one of the known buckets.
func (d DateRange) Valid() bool {
	switch d {
	case "", DateRangeToday, DateRangeThisWeek, DateRangeThisMonth, DateRangeArchived:
		return true
	}
	return false
}

// CitationKind selects which citation lists a sources query returns.
type CitationKind string

const (
	CitationKindAll    CitationKind = "all"
	CitationKindSearch CitationKind = "search"
	CitationKindImage  CitationKind = "image"
)

// Valid returns true for all, search or image.
func (k CitationKind) Valid() bool {
	return k == CitationKindAll || k == CitationKindSearch || k == CitationKindImage
}

// SourceType describes where a search citation's location points.
type SourceType string

const (
	SourceTypeURL  SourceType = "url"
	SourceTypeText SourceType = "text"
)

// Conversation is a top-level chat thread owned by one user within a tenant.
type Conversation struct {
	ID                 int64                       `json:"id"                   gorm:"primaryKey"`
	TenantID           string                      `json:"tenantId"             gorm:"not null"`
	Title              string                      `json:"title"                gorm:"not null"`
	PortalType         Portal                      `json:"portalType"           gorm:"not null"`
	Status             Status                      `json:"status"               gorm:"not null"`
	Tags               datatypes.JSONSlice[string] `json:"tags"                 gorm:"not null"`
	Summary            *string                     `json:"summary,omitempty"`
	PatientID          *int64                      `json:"patientId,omitempty"`
	PatientName        *string                     `json:"patientName,omitempty"`
	ArchivedAt         *time.Time                  `json:"archivedAt,omitempty"`
	ArchivedToTimeline bool                        `json:"archivedToTimeline"   gorm:"not null"`
	CreatedBy          string                      `json:"createdBy"            gorm:"not null"`
	UpdatedBy          string                      `json:"updatedBy"            gorm:"not null"`
	CreatedAt          time.Time                   `json:"createdAt"            gorm:"not null"`
	UpdatedAt          time.Time                   `json:"updatedAt"            gorm:"not null"`
	DeletedAt          *time.Time                  `json:"deletedAt,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

// Message is one turn within a conversation.
type Message struct {
	ID             int64                       `json:"id"                gorm:"primaryKey"`
	TenantID       string                      `json:"tenantId"          gorm:"not null"`
	ConversationID int64                       `json:"conversationId"    gorm:"not null"`
	MessageIndex   int                         `json:"index"             gorm:"not null"`
	Role           Role                        `json:"role"              gorm:"not null"`
	Content        string                      `json:"content"           gorm:"not null"`
	Attachments    datatypes.JSONSlice[string] `json:"attachments"       gorm:"not null"`
	Opinion        *Opinion                    `json:"opinion,omitempty"`
	CreatedBy      string                      `json:"createdBy"         gorm:"not null"`
	UpdatedBy      string                      `json:"updatedBy"         gorm:"not null"`
	CreatedAt      time.Time                   `json:"createdAt"         gorm:"not null"`
	UpdatedAt      time.Time                   `json:"updatedAt"         gorm:"not null"`
	DeletedAt      *time.Time                  `json:"deletedAt,omitempty"`
}

func (Message) TableName() string { return "messages" }

// MessageUnit is one decomposed part of an assistant message's output.
type MessageUnit struct {
	ID             int64      `json:"id"             gorm:"primaryKey"`
	TenantID       string     `json:"tenantId"       gorm:"not null"`
	MessageID      int64      `json:"messageId"      gorm:"not null"`
	ConversationID int64      `json:"conversationId" gorm:"not null"`
	UnitIndex      int        `json:"index"          gorm:"not null"`
	UnitType       string     `json:"type"           gorm:"not null"`
	Content        string     `json:"content"        gorm:"not null"`
	CreatedBy      string     `json:"createdBy"      gorm:"not null"`
	UpdatedBy      string     `json:"updatedBy"      gorm:"not null"`
	CreatedAt      time.Time  `json:"createdAt"      gorm:"not null"`
	UpdatedAt      time.Time  `json:"updatedAt"      gorm:"not null"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

func (MessageUnit) TableName() string { return "message_units" }

// SearchCitation is a retrieved search result cited by a message.
type SearchCitation struct {
	ID             int64               `json:"id"                      gorm:"primaryKey"`
	TenantID       string              `json:"tenantId"                gorm:"not null"`
	MessageID      int64               `json:"messageId"               gorm:"not null"`
	ConversationID int64               `json:"conversationId"          gorm:"not null"`
	UnitID         *int64              `json:"unitId,omitempty"`
	SourceType     SourceType          `json:"sourceType"              gorm:"not null"`
	Title          string              `json:"title"                   gorm:"not null"`
	Location       string              `json:"location"                gorm:"not null"`
	Content        string              `json:"content"                 gorm:"not null"`
	ScoreOverall   decimal.NullDecimal `json:"scoreOverall"`
	ScoreAccuracy  decimal.NullDecimal `json:"scoreAccuracy"`
	ScoreSemantic  decimal.NullDecimal `json:"scoreSemantic"`
	PublishedDate  *time.Time          `json:"publishedDate,omitempty"`
	CiteIndex      *int                `json:"citeIndex,omitempty"`
	SearchType     *string             `json:"searchType,omitempty"`
	ToolSign       *string             `json:"toolSign,omitempty"`
	CreatedBy      string              `json:"createdBy"               gorm:"not null"`
	UpdatedBy      string              `json:"updatedBy"               gorm:"not null"`
	CreatedAt      time.Time           `json:"createdAt"               gorm:"not null"`
	UpdatedAt      time.Time           `json:"updatedAt"               gorm:"not null"`
	DeletedAt      *time.Time          `json:"deletedAt,omitempty"`
}

func (SearchCitation) TableName() string { return "search_citations" }

// ImageCitation is an image cited by a message.
type ImageCitation struct {
	ID             int64      `json:"id"                   gorm:"primaryKey"`
	TenantID       string     `json:"tenantId"             gorm:"not null"`
	MessageID      int64      `json:"messageId"            gorm:"not null"`
	ConversationID int64      `json:"conversationId"       gorm:"not null"`
	UnitID         *int64     `json:"unitId,omitempty"`
	ImageURL       string     `json:"imageUrl"             gorm:"not null"`
	CiteIndex      *int       `json:"citeIndex,omitempty"`
	SearchType     *string    `json:"searchType,omitempty"`
	CreatedBy      string     `json:"createdBy"            gorm:"not null"`
	UpdatedBy      string     `json:"updatedBy"            gorm:"not null"`
	CreatedAt      time.Time  `json:"createdAt"            gorm:"not null"`
	UpdatedAt      time.Time  `json:"updatedAt"            gorm:"not null"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

func (ImageCitation) TableName() string { return "image_citations" }

// HistoryMessage is a message together with its units in unit-index order.
type HistoryMessage struct {
	Message
	Units []MessageUnit `json:"units"`
}

// History is the reconstructed view of one conversation. Citations are the
// full conversation-scoped sets; callers correlate them by MessageID/UnitID.
type History struct {
	ConversationID  int64            `json:"conversationId"`
	CreatedBy       string           `json:"createdBy"`
	CreatedAt       time.Time        `json:"createdAt"`
	Messages        []HistoryMessage `json:"messages"`
	SearchCitations []SearchCitation `json:"searchCitations"`
	ImageCitations  []ImageCitation  `json:"imageCitations"`
}

// Millis converts a timestamp to milliseconds since the epoch.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// MillisPtr is Millis for optional timestamps.
func MillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
