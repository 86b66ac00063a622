package messages

import (
	"net/http"
	"strconv"

	"github.com/chirino/clinical-history/internal/model"
	"github.com/chirino/clinical-history/internal/plugin/route/httpapi"
	registryroute "github.com/chirino/clinical-history/internal/registry/route"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "messages",
		Order: 110,
		Loader: func(r *gin.Engine, deps registryroute.Deps) error {
			MountRoutes(r, deps.Store, deps.Auth)
			return nil
		},
	})
}

// MountRoutes mounts message, unit and opinion routes.
func MountRoutes(r *gin.Engine, store registrystore.HistoryStore, auth gin.HandlerFunc) {
	httpapi.RegisterValidators()
	g := r.Group("/v1", auth)

	g.POST("/conversations/:conversationId/messages", func(c *gin.Context) {
		appendMessage(c, store)
	})
	g.GET("/conversations/:conversationId/messages", func(c *gin.Context) {
		listMessages(c, store)
	})
	g.GET("/conversations/:conversationId/messages/index/:index", func(c *gin.Context) {
		getMessageIDByIndex(c, store)
	})
	g.GET("/messages/:messageId", func(c *gin.Context) {
		getMessage(c, store)
	})
	g.POST("/messages/:messageId/units", func(c *gin.Context) {
		appendUnits(c, store)
	})
	g.GET("/messages/:messageId/units", func(c *gin.Context) {
		listUnits(c, store)
	})
	g.PUT("/messages/:messageId/opinion", func(c *gin.Context) {
		setOpinion(c, store)
	})
}

func appendMessage(c *gin.Context, store registrystore.HistoryStore) {
	convID, ok := httpapi.ParamID(c, "conversationId", "conversation")
	if !ok {
		return
	}
	var req struct {
		Index       *int       `json:"index"       binding:"required,min=0"`
		Role        model.Role `json:"role"        binding:"required,role"`
		Content     string     `json:"content"`
		Attachments []string   `json:"attachments"`
	}
	if !httpapi.BindJSON(c, &req) {
		return
	}
	id, err := store.AppendMessage(c.Request.Context(), httpapi.Scope(c), registrystore.CreateMessageRequest{
		ConversationID: convID,
		Index:          *req.Index,
		Role:           req.Role,
		Content:        req.Content,
		Attachments:    req.Attachments,
	})
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func listMessages(c *gin.Context, store registrystore.HistoryStore) {
	convID, ok := httpapi.ParamID(c, "conversationId", "conversation")
	if !ok {
		return
	}
	if !httpapi.VisibleConversation(c, store, convID) {
		return
	}
	msgs, err := store.ListMessages(c.Request.Context(), httpapi.TenantScope(c), convID)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": httpapi.NewMessageViews(msgs)})
}

func getMessageIDByIndex(c *gin.Context, store registrystore.HistoryStore) {
	convID, ok := httpapi.ParamID(c, "conversationId", "conversation")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		httpapi.HandleError(c, &registrystore.ValidationError{Field: "index", Message: "must be a non-negative integer"})
		return
	}
	if !httpapi.VisibleConversation(c, store, convID) {
		return
	}
	id, err := store.GetMessageIDByIndex(c.Request.Context(), httpapi.TenantScope(c), convID, index)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messageId": id})
}

func getMessage(c *gin.Context, store registrystore.HistoryStore) {
	msgID, ok := httpapi.ParamID(c, "messageId", "message")
	if !ok {
		return
	}
	msg, ok := httpapi.VisibleMessage(c, store, msgID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, httpapi.NewMessageView(*msg))
}

func appendUnits(c *gin.Context, store registrystore.HistoryStore) {
	msgID, ok := httpapi.ParamID(c, "messageId", "message")
	if !ok {
		return
	}
	var req struct {
		ConversationID int64 `json:"conversationId"`
		Units          []struct {
			Type    string `json:"type"    binding:"required"`
			Content string `json:"content"`
		} `json:"units" binding:"dive"`
	}
	if !httpapi.BindJSON(c, &req) {
		return
	}
	units := make([]registrystore.CreateUnitRequest, len(req.Units))
	for i, u := range req.Units {
		units[i] = registrystore.CreateUnitRequest{UnitType: u.Type, Content: u.Content}
	}
	ids, err := store.AppendUnits(c.Request.Context(), httpapi.Scope(c), msgID, req.ConversationID, units)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ids": ids})
}

func listUnits(c *gin.Context, store registrystore.HistoryStore) {
	msgID, ok := httpapi.ParamID(c, "messageId", "message")
	if !ok {
		return
	}
	msg, ok := httpapi.VisibleMessage(c, store, msgID)
	if !ok {
		return
	}
	units, err := store.ListUnits(c.Request.Context(), httpapi.TenantScope(c), msg.ID)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": httpapi.NewUnitViews(units)})
}

func setOpinion(c *gin.Context, store registrystore.HistoryStore) {
	msgID, ok := httpapi.ParamID(c, "messageId", "message")
	if !ok {
		return
	}
	var req struct {
		// "none", "" and null all clear the opinion.
		Opinion *string `json:"opinion"`
	}
	if !httpapi.BindJSON(c, &req) {
		return
	}
	var opinion *model.Opinion
	if req.Opinion != nil && *req.Opinion != "" && *req.Opinion != "none" {
		o := model.Opinion(*req.Opinion)
		opinion = &o
	}
	found, err := store.SetOpinion(c.Request.Context(), httpapi.Scope(c), msgID, opinion)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	if !found {
		httpapi.HandleError(c, registrystore.NotFound("message", msgID))
		return
	}
	c.Status(http.StatusNoContent)
}
