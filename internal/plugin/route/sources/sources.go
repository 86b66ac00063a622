package sources

import (
	"net/http"
	"time"

	"github.com/chirino/clinical-history/internal/model"
	"github.com/chirino/clinical-history/internal/plugin/route/httpapi"
	registryroute "github.com/chirino/clinical-history/internal/registry/route"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "sources",
		Order: 120,
		Loader: func(r *gin.Engine, deps registryroute.Deps) error {
			MountRoutes(r, deps.Store, deps.Auth)
			return nil
		},
	})
}

// MountRoutes mounts citation routes.
func MountRoutes(r *gin.Engine, store registrystore.HistoryStore, auth gin.HandlerFunc) {
	httpapi.RegisterValidators()
	g := r.Group("/v1", auth)

	g.POST("/messages/:messageId/sources/search", func(c *gin.Context) {
		addSearchCitation(c, store)
	})
	g.POST("/messages/:messageId/sources/images", func(c *gin.Context) {
		addImageCitation(c, store)
	})
	g.GET("/sources", func(c *gin.Context) {
		getSources(c, store)
	})
}

func addSearchCitation(c *gin.Context, store registrystore.HistoryStore) {
	msgID, ok := httpapi.ParamID(c, "messageId", "message")
	if !ok {
		return
	}
	var req struct {
		ConversationID int64            `json:"conversationId"`
		UnitID         *int64           `json:"unitId"`
		SourceType     model.SourceType `json:"sourceType"     binding:"omitempty,sourcetype"`
		Title          string           `json:"title"`
		Location       string           `json:"location"`
		Content        string           `json:"content"`
		ScoreOverall   *decimal.Decimal `json:"scoreOverall"`
		ScoreAccuracy  *decimal.Decimal `json:"scoreAccuracy"`
		ScoreSemantic  *decimal.Decimal `json:"scoreSemantic"`
		// PublishedDate is epoch milliseconds.
		PublishedDate *int64  `json:"publishedDate"`
		CiteIndex     *int    `json:"citeIndex"`
		SearchType    *string `json:"searchType"`
		ToolSign      *string `json:"toolSign"`
	}
	if !httpapi.BindJSON(c, &req) {
		return
	}
	var published *time.Time
	if req.PublishedDate != nil {
		t := time.UnixMilli(*req.PublishedDate).UTC()
		published = &t
	}
	id, err := store.AddSearchCitation(c.Request.Context(), httpapi.Scope(c), registrystore.SearchCitationRequest{
		MessageID:      msgID,
		ConversationID: req.ConversationID,
		UnitID:         req.UnitID,
		SourceType:     req.SourceType,
		Title:          req.Title,
		Location:       req.Location,
		Content:        req.Content,
		ScoreOverall:   req.ScoreOverall,
		ScoreAccuracy:  req.ScoreAccuracy,
		ScoreSemantic:  req.ScoreSemantic,
		PublishedDate:  published,
		CiteIndex:      req.CiteIndex,
		SearchType:     req.SearchType,
		ToolSign:       req.ToolSign,
	})
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func addImageCitation(c *gin.Context, store registrystore.HistoryStore) {
	msgID, ok := httpapi.ParamID(c, "messageId", "message")
	if !ok {
		return
	}
	var req struct {
		ConversationID int64   `json:"conversationId"`
		UnitID         *int64  `json:"unitId"`
		ImageURL       string  `json:"imageUrl" binding:"required"`
		CiteIndex      *int    `json:"citeIndex"`
		SearchType     *string `json:"searchType"`
	}
	if !httpapi.BindJSON(c, &req) {
		return
	}
	id, err := store.AddImageCitation(c.Request.Context(), httpapi.Scope(c), registrystore.ImageCitationRequest{
		MessageID:      msgID,
		ConversationID: req.ConversationID,
		UnitID:         req.UnitID,
		ImageURL:       req.ImageURL,
		CiteIndex:      req.CiteIndex,
		SearchType:     req.SearchType,
	})
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func getSources(c *gin.Context, store registrystore.HistoryStore) {
	convID, err := httpapi.QueryInt64(c, "conversationId")
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	msgID, err := httpapi.QueryInt64(c, "messageId")
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}

	var query registrystore.CitationQuery
	switch {
	case msgID != nil:
		msg, ok := httpapi.VisibleMessage(c, store, *msgID)
		if !ok {
			return
		}
		query.MessageID = msg.ID
	case convID != nil:
		if !httpapi.VisibleConversation(c, store, *convID) {
			return
		}
		query.ConversationID = *convID
	default:
		httpapi.HandleError(c, &registrystore.ValidationError{Field: "conversationId", Message: "conversationId or messageId is required"})
		return
	}

	sources, err := store.GetSources(c.Request.Context(), httpapi.TenantScope(c), query, model.CitationKind(c.DefaultQuery("type", string(model.CitationKindAll))))
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"searches": httpapi.NewSearchCitationViews(sources.Searches),
		"images":   httpapi.NewImageCitationViews(sources.Images),
	})
}
