package conversations

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/clinical-history/internal/model"
	"github.com/chirino/clinical-history/internal/plugin/route/httpapi"
	registryroute "github.com/chirino/clinical-history/internal/registry/route"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/chirino/clinical-history/internal/security"
	"github.com/gin-gonic/gin"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "conversations",
		Order: 100,
		Loader: func(r *gin.Engine, deps registryroute.Deps) error {
			MountRoutes(r, deps.Store, deps.Auth)
			return nil
		},
	})
}

// MountRoutes mounts conversation and patient routes.
func MountRoutes(r *gin.Engine, store registrystore.HistoryStore, auth gin.HandlerFunc) {
	httpapi.RegisterValidators()
	g := r.Group("/v1", auth)

	g.POST("/conversations", func(c *gin.Context) {
		createConversation(c, store)
	})
	g.GET("/conversations", func(c *gin.Context) {
		listConversations(c, store)
	})
	g.DELETE("/conversations", func(c *gin.Context) {
		deleteAllConversations(c, store)
	})
	g.POST("/conversations/archive", func(c *gin.Context) {
		batchArchive(c, store)
	})
	g.GET("/conversations/:conversationId", func(c *gin.Context) {
		getConversation(c, store)
	})
	g.DELETE("/conversations/:conversationId", func(c *gin.Context) {
		deleteConversation(c, store)
	})
	g.GET("/conversations/:conversationId/history", func(c *gin.Context) {
		getHistory(c, store)
	})
	g.PUT("/conversations/:conversationId/title", func(c *gin.Context) {
		renameConversation(c, store)
	})
	g.PUT("/conversations/:conversationId/status", func(c *gin.Context) {
		updateStatus(c, store)
	})
	g.PUT("/conversations/:conversationId/tags", func(c *gin.Context) {
		updateTags(c, store)
	})
	g.PUT("/conversations/:conversationId/summary", func(c *gin.Context) {
		updateSummary(c, store)
	})
	g.PUT("/conversations/:conversationId/patient", func(c *gin.Context) {
		linkPatient(c, store)
	})
	g.POST("/conversations/:conversationId/archive", func(c *gin.Context) {
		archiveConversation(c, store)
	})
	g.GET("/patients/:patientId/conversations", func(c *gin.Context) {
		listPatientConversations(c, store)
	})
}

func createConversation(c *gin.Context, store registrystore.HistoryStore) {
	var req struct {
		Title      string       `json:"title"      binding:"max=500"`
		PortalType model.Portal `json:"portalType" binding:"omitempty,portal"`
	}
	if !httpapi.BindJSON(c, &req) {
		return
	}
	conv, err := store.CreateConversation(c.Request.Context(), httpapi.Scope(c), req.Title, req.PortalType)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpapi.NewConversationView(*conv))
}

func listConversations(c *gin.Context, store registrystore.HistoryStore) {
	filter := registrystore.ConversationFilter{
		Tags:      httpapi.QueryList(c, "tags"),
		DateRange: model.DateRange(c.Query("dateRange")),
	}
	if v := c.Query("portalType"); v != "" {
		portal := model.Portal(v)
		filter.PortalType = &portal
	}
	if v := c.Query("status"); v != "" {
		status := model.Status(v)
		filter.Status = &status
	}
	var err error
	if filter.PatientID, err = httpapi.QueryInt64(c, "patientId"); err != nil {
		httpapi.HandleError(c, err)
		return
	}
	if filter.IncludeArchived, err = httpapi.QueryBool(c, "includeArchived"); err != nil {
		httpapi.HandleError(c, err)
		return
	}

	convs, err := store.ListConversations(c.Request.Context(), httpapi.Scope(c), filter)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": httpapi.NewConversationViews(convs)})
}

func listPatientConversations(c *gin.Context, store registrystore.HistoryStore) {
	patientID, ok := httpapi.ParamID(c, "patientId", "patient")
	if !ok {
		return
	}
	var filter registrystore.PatientConversationFilter
	if v := c.Query("status"); v != "" {
		status := model.Status(v)
		filter.Status = &status
	}
	var err error
	if filter.IncludeArchived, err = httpapi.QueryBool(c, "includeArchived"); err != nil {
		httpapi.HandleError(c, err)
		return
	}

	convs, err := store.ListPatientConversations(c.Request.Context(), httpapi.Scope(c), patientID, filter)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": httpapi.NewConversationViews(convs)})
}

func getConversation(c *gin.Context, store registrystore.HistoryStore) {
	convID, ok := httpapi.ParamID(c, "conversationId", "conversation")
	if !ok {
		return
	}
	conv, err := store.GetConversation(c.Request.Context(), httpapi.Scope(c), convID)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpapi.NewConversationView(*conv))
}

func getHistory(c *gin.Context, store registrystore.HistoryStore) {
	convID, ok := httpapi.ParamID(c, "conversationId", "conversation")
	if !ok {
		return
	}
	history, err := store.GetFullHistory(c.Request.Context(), httpapi.Scope(c), convID)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpapi.NewHistoryView(*history))
}

func deleteConversation(c *gin.Context, store registrystore.HistoryStore) {
	convID, ok := httpapi.ParamID(c, "conversationId", "conversation")
	if !ok {
		return
	}
	deleted, err := store.DeleteConversation(c.Request.Context(), httpapi.Scope(c), convID)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	if !deleted {
		httpapi.HandleError(c, registrystore.NotFound("conversation", convID))
		return
	}
	c.Status(http.StatusNoContent)
}

func deleteAllConversations(c *gin.Context, store registrystore.HistoryStore) {
	userID := security.GetUserID(c)
	count, err := store.DeleteAllForUser(c.Request.Context(), httpapi.Scope(c), userID)
	if err != nil {
		// Conversations already deleted stay deleted; report both.
		log.Error("Failed to delete some conversations", "tenant", security.GetTenantID(c), "user", userID, "deleted", count, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"deleted": count, "error": "failed to delete some conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": count})
}

func batchArchive(c *gin.Context, store registrystore.HistoryStore) {
	var req struct {
		ConversationIDs   []int64 `json:"conversationIds"   binding:"required"`
		ArchiveToTimeline bool    `json:"archiveToTimeline"`
	}
	if !httpapi.BindJSON(c, &req) {
		return
	}
	count, err := store.BatchArchive(c.Request.Context(), httpapi.Scope(c), req.ConversationIDs, req.ArchiveToTimeline)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": count})
}

func renameConversation(c *gin.Context, store registrystore.HistoryStore) {
	var req struct {
		Title string `json:"title" binding:"max=500"`
	}
	mutate(c, store, &req, func(scope registrystore.Scope, id int64) (bool, error) {
		return store.RenameConversation(c.Request.Context(), scope, id, req.Title)
	})
}

func updateStatus(c *gin.Context, store registrystore.HistoryStore) {
	var req struct {
		Status model.Status `json:"status" binding:"required,status"`
	}
	mutate(c, store, &req, func(scope registrystore.Scope, id int64) (bool, error) {
		return store.UpdateStatus(c.Request.Context(), scope, id, req.Status)
	})
}

func updateTags(c *gin.Context, store registrystore.HistoryStore) {
	var req struct {
		Tags []string `json:"tags" binding:"dive,max=100"`
	}
	mutate(c, store, &req, func(scope registrystore.Scope, id int64) (bool, error) {
		tags := make([]string, 0, len(req.Tags))
		for _, t := range req.Tags {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		return store.UpdateTags(c.Request.Context(), scope, id, tags)
	})
}

func updateSummary(c *gin.Context, store registrystore.HistoryStore) {
	var req struct {
		Summary string `json:"summary"`
	}
	mutate(c, store, &req, func(scope registrystore.Scope, id int64) (bool, error) {
		return store.UpdateSummary(c.Request.Context(), scope, id, req.Summary)
	})
}

func linkPatient(c *gin.Context, store registrystore.HistoryStore) {
	var req struct {
		PatientID   *int64  `json:"patientId"   binding:"required_with=PatientName"`
		PatientName *string `json:"patientName" binding:"required_with=PatientID"`
	}
	mutate(c, store, &req, func(scope registrystore.Scope, id int64) (bool, error) {
		var link *registrystore.PatientLink
		if req.PatientID != nil {
			link = &registrystore.PatientLink{PatientID: *req.PatientID, PatientName: *req.PatientName}
		}
		return store.LinkPatient(c.Request.Context(), scope, id, link)
	})
}

func archiveConversation(c *gin.Context, store registrystore.HistoryStore) {
	var req struct {
		ArchiveToTimeline bool `json:"archiveToTimeline"`
	}
	mutate(c, store, httpapi.Optional(&req), func(scope registrystore.Scope, id int64) (bool, error) {
		return store.ArchiveConversation(c.Request.Context(), scope, id, req.ArchiveToTimeline)
	})
}

// mutate binds req, applies one single-conversation update and responds
// with the updated conversation. An update that matched nothing is a 404.
func mutate(c *gin.Context, store registrystore.HistoryStore, req interface{}, apply func(registrystore.Scope, int64) (bool, error)) {
	convID, ok := httpapi.ParamID(c, "conversationId", "conversation")
	if !ok {
		return
	}
	if !httpapi.BindJSON(c, req) {
		return
	}
	scope := httpapi.Scope(c)
	found, err := apply(scope, convID)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	if !found {
		httpapi.HandleError(c, registrystore.NotFound("conversation", convID))
		return
	}
	conv, err := store.GetConversation(c.Request.Context(), scope, convID)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpapi.NewConversationView(*conv))
}
