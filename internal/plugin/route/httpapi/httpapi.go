// Package httpapi holds what the /v1 route plugins share: caller scope,
// parameter parsing, error mapping, request validators and response views.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/chirino/clinical-history/internal/model"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/chirino/clinical-history/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Scope is the store scope of the authenticated caller.
func Scope(c *gin.Context) registrystore.Scope {
	return registrystore.Scope{TenantID: security.GetTenantID(c), UserID: security.GetUserID(c)}
}

// TenantScope drops the owner filter, for child rows of a conversation the
// caller was already checked against.
func TenantScope(c *gin.Context) registrystore.Scope {
	return registrystore.Scope{TenantID: security.GetTenantID(c)}
}

// ParamID parses a positive int64 path parameter. On failure it writes a 404
// and returns false.
func ParamID(c *gin.Context, name, resource string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": resource + " not found"})
		return 0, false
	}
	return id, true
}

// QueryInt64 parses an optional int64 query parameter.
func QueryInt64(c *gin.Context, key string) (*int64, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, &registrystore.ValidationError{Field: key, Message: "must be an integer"}
	}
	return &i, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(c *gin.Context, key string) (bool, error) {
	v := c.Query(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &registrystore.ValidationError{Field: key, Message: "must be true or false"}
	}
	return b, nil
}

// QueryList accepts both repeated parameters and comma-separated values.
func QueryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

type optionalBody struct{ req interface{} }

// Optional marks a request body that may be omitted entirely.
func Optional(req interface{}) interface{} {
	return optionalBody{req: req}
}

// BindJSON binds and validates the request body, writing a 400 on failure.
func BindJSON(c *gin.Context, req interface{}) bool {
	if opt, ok := req.(optionalBody); ok {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			return true
		}
		req = opt.req
	}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return false
	}
	return true
}

// HandleError maps store errors to HTTP responses.
func HandleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": "conflict", "error": err.Error()})
	default:
		log.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "requestId", c.GetString(security.ContextKeyRequestID), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// VisibleConversation checks the caller can see the conversation, writing
// the error response when not.
func VisibleConversation(c *gin.Context, store registrystore.HistoryStore, conversationID int64) bool {
	if _, err := store.GetConversation(c.Request.Context(), Scope(c), conversationID); err != nil {
		HandleError(c, err)
		return false
	}
	return true
}

// VisibleMessage loads a message whose conversation the caller can see.
// Message reads are tenant-wide once the owning conversation passes the
// owner filter.
func VisibleMessage(c *gin.Context, store registrystore.HistoryStore, messageID int64) (*model.Message, bool) {
	msg, err := store.GetMessage(c.Request.Context(), TenantScope(c), messageID)
	if err != nil {
		HandleError(c, err)
		return nil, false
	}
	if _, err := store.GetConversation(c.Request.Context(), Scope(c), msg.ConversationID); err != nil {
		var nf *registrystore.NotFoundError
		if errors.As(err, &nf) {
			err = registrystore.NotFound("message", messageID)
		}
		HandleError(c, err)
		return nil, false
	}
	return msg, true
}

var registerOnce sync.Once

// RegisterValidators adds the enum validators used in request binding tags.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			log.Warn("Gin validator engine is not go-playground/validator; enum tags are unchecked")
			return
		}
		enums := map[string]func(string) bool{
			"portal":     func(s string) bool { return model.Portal(s).Valid() },
			"status":     func(s string) bool { return model.Status(s).Valid() },
			"role":       func(s string) bool { return model.Role(s).Valid() },
			"sourcetype": func(s string) bool { return s == string(model.SourceTypeURL) || s == string(model.SourceTypeText) },
		}
		for tag, valid := range enums {
			valid := valid
			if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
				return valid(fl.Field().String())
			}); err != nil {
				log.Error("Failed to register validator", "tag", tag, "err", err)
			}
		}
	})
}
