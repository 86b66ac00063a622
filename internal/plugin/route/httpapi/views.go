package httpapi

import (
	"encoding/json"

	"github.com/chirino/clinical-history/internal/model"
	"github.com/shopspring/decimal"
)

// Response views carry timestamps as epoch milliseconds and scores as
// fixed six-digit JSON numbers.

type ConversationView struct {
	ID                 int64        `json:"id"`
	Title              string       `json:"title"`
	PortalType         model.Portal `json:"portalType"`
	Status             model.Status `json:"status"`
	Tags               []string     `json:"tags"`
	Summary            *string      `json:"summary"`
	PatientID          *int64       `json:"patientId"`
	PatientName        *string      `json:"patientName"`
	ArchivedAt         *int64       `json:"archivedAt"`
	ArchivedToTimeline bool         `json:"archivedToTimeline"`
	CreatedBy          string       `json:"createdBy"`
	UpdatedBy          string       `json:"updatedBy"`
	CreatedAt          int64        `json:"createdAt"`
	UpdatedAt          int64        `json:"updatedAt"`
}

func NewConversationView(c model.Conversation) ConversationView {
	tags := []string(c.Tags)
	if tags == nil {
		tags = []string{}
	}
	return ConversationView{
		ID:                 c.ID,
		Title:              c.Title,
		PortalType:         c.PortalType,
		Status:             c.Status,
		Tags:               tags,
		Summary:            c.Summary,
		PatientID:          c.PatientID,
		PatientName:        c.PatientName,
		ArchivedAt:         model.MillisPtr(c.ArchivedAt),
		ArchivedToTimeline: c.ArchivedToTimeline,
		CreatedBy:          c.CreatedBy,
		UpdatedBy:          c.UpdatedBy,
		CreatedAt:          model.Millis(c.CreatedAt),
		UpdatedAt:          model.Millis(c.UpdatedAt),
	}
}

func NewConversationViews(convs []model.Conversation) []ConversationView {
	out := make([]ConversationView, len(convs))
	for i, c := range convs {
		out[i] = NewConversationView(c)
	}
	return out
}

type MessageView struct {
	ID             int64          `json:"id"`
	ConversationID int64          `json:"conversationId"`
	Index          int            `json:"index"`
	Role           model.Role     `json:"role"`
	Content        string         `json:"content"`
	Attachments    []string       `json:"attachments"`
	Opinion        *model.Opinion `json:"opinion"`
	CreatedBy      string         `json:"createdBy"`
	CreatedAt      int64          `json:"createdAt"`
	UpdatedAt      int64          `json:"updatedAt"`
}

func NewMessageView(m model.Message) MessageView {
	attachments := []string(m.Attachments)
	if attachments == nil {
		attachments = []string{}
	}
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Index:          m.MessageIndex,
		Role:           m.Role,
		Content:        m.Content,
		Attachments:    attachments,
		Opinion:        m.Opinion,
		CreatedBy:      m.CreatedBy,
		CreatedAt:      model.Millis(m.CreatedAt),
		UpdatedAt:      model.Millis(m.UpdatedAt),
	}
}

func NewMessageViews(msgs []model.Message) []MessageView {
	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = NewMessageView(m)
	}
	return out
}

type UnitView struct {
	ID        int64  `json:"id"`
	MessageID int64  `json:"messageId"`
	Index     int    `json:"index"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

func NewUnitViews(units []model.MessageUnit) []UnitView {
	out := make([]UnitView, len(units))
	for i, u := range units {
		out[i] = UnitView{
			ID:        u.ID,
			MessageID: u.MessageID,
			Index:     u.UnitIndex,
			Type:      u.UnitType,
			Content:   u.Content,
			CreatedAt: model.Millis(u.CreatedAt),
		}
	}
	return out
}

type SearchCitationView struct {
	ID             int64            `json:"id"`
	MessageID      int64            `json:"messageId"`
	ConversationID int64            `json:"conversationId"`
	UnitID         *int64           `json:"unitId"`
	SourceType     model.SourceType `json:"sourceType"`
	Title          string           `json:"title"`
	Location       string           `json:"location"`
	Content        string           `json:"content"`
	ScoreOverall   *json.Number     `json:"scoreOverall"`
	ScoreAccuracy  *json.Number     `json:"scoreAccuracy"`
	ScoreSemantic  *json.Number     `json:"scoreSemantic"`
	PublishedDate  *int64           `json:"publishedDate"`
	CiteIndex      *int             `json:"citeIndex"`
	SearchType     *string          `json:"searchType"`
	ToolSign       *string          `json:"toolSign"`
	CreatedAt      int64            `json:"createdAt"`
}

func NewSearchCitationViews(rows []model.SearchCitation) []SearchCitationView {
	out := make([]SearchCitationView, len(rows))
	for i, r := range rows {
		out[i] = SearchCitationView{
			ID:             r.ID,
			MessageID:      r.MessageID,
			ConversationID: r.ConversationID,
			UnitID:         r.UnitID,
			SourceType:     r.SourceType,
			Title:          r.Title,
			Location:       r.Location,
			Content:        r.Content,
			ScoreOverall:   scoreNumber(r.ScoreOverall),
			ScoreAccuracy:  scoreNumber(r.ScoreAccuracy),
			ScoreSemantic:  scoreNumber(r.ScoreSemantic),
			PublishedDate:  model.MillisPtr(r.PublishedDate),
			CiteIndex:      r.CiteIndex,
			SearchType:     r.SearchType,
			ToolSign:       r.ToolSign,
			CreatedAt:      model.Millis(r.CreatedAt),
		}
	}
	return out
}

type ImageCitationView struct {
	ID             int64   `json:"id"`
	MessageID      int64   `json:"messageId"`
	ConversationID int64   `json:"conversationId"`
	UnitID         *int64  `json:"unitId"`
	ImageURL       string  `json:"imageUrl"`
	CiteIndex      *int    `json:"citeIndex"`
	SearchType     *string `json:"searchType"`
	CreatedAt      int64   `json:"createdAt"`
}

func NewImageCitationViews(rows []model.ImageCitation) []ImageCitationView {
	out := make([]ImageCitationView, len(rows))
	for i, r := range rows {
		out[i] = ImageCitationView{
			ID:             r.ID,
			MessageID:      r.MessageID,
			ConversationID: r.ConversationID,
			UnitID:         r.UnitID,
			ImageURL:       r.ImageURL,
			CiteIndex:      r.CiteIndex,
			SearchType:     r.SearchType,
			CreatedAt:      model.Millis(r.CreatedAt),
		}
	}
	return out
}

type HistoryMessageView struct {
	MessageView
	Units []UnitView `json:"units"`
}

type HistoryView struct {
	ConversationID  int64                `json:"conversationId"`
	CreatedBy       string               `json:"createdBy"`
	CreatedAt       int64                `json:"createdAt"`
	Messages        []HistoryMessageView `json:"messages"`
	SearchCitations []SearchCitationView `json:"searchCitations"`
	ImageCitations  []ImageCitationView  `json:"imageCitations"`
}

func NewHistoryView(h model.History) HistoryView {
	messages := make([]HistoryMessageView, len(h.Messages))
	for i, m := range h.Messages {
		messages[i] = HistoryMessageView{
			MessageView: NewMessageView(m.Message),
			Units:       NewUnitViews(m.Units),
		}
	}
	return HistoryView{
		ConversationID:  h.ConversationID,
		CreatedBy:       h.CreatedBy,
		CreatedAt:       model.Millis(h.CreatedAt),
		Messages:        messages,
		SearchCitations: NewSearchCitationViews(h.SearchCitations),
		ImageCitations:  NewImageCitationViews(h.ImageCitations),
	}
}

func scoreNumber(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := json.Number(d.Decimal.StringFixed(6))
	return &n
}
