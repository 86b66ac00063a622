package serve

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowHeaders  = "Authorization, Content-Type, X-Tenant-ID, X-Request-ID"
	corsAllowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	corsExposeHeaders = "X-Request-ID"
)

// corsPolicy is the set of browser origins allowed to call the API.
// A nil origins map allows any origin.
type corsPolicy struct {
	origins map[string]struct{}
}

func newCORSPolicy(originsCSV string) corsPolicy {
	origins := map[string]struct{}{}
	for _, part := range strings.Split(originsCSV, ",") {
		switch v := strings.TrimSpace(part); v {
		case "":
		case "*":
			return corsPolicy{}
		default:
			origins[v] = struct{}{}
		}
	}
	if len(origins) == 0 {
		return corsPolicy{}
	}
	return corsPolicy{origins: origins}
}

func (p corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.origins == nil {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// corsMiddleware echoes allowed origins and answers preflight requests
// without reaching the routes.
func corsMiddleware(originsCSV string) gin.HandlerFunc {
	policy := newCORSPolicy(originsCSV)
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		c.Header("Vary", "Origin")
		if policy.allows(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		}
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
