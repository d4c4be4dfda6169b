package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// corsMethods are the verbs the control API routes use.
const corsMethods = "GET, POST, DELETE, OPTIONS"

// OriginPolicy decides which UI origins may drive the streamer. It guards both the
// REST routes (via CORS) and the /ws upgrade.
type OriginPolicy struct {
	any     bool
	origins map[string]bool
}

// NewOriginPolicy parses "*" or a comma-separated origin list. An empty list allows any origin.
func NewOriginPolicy(allowed string) OriginPolicy {
	p := OriginPolicy{origins: make(map[string]bool)}
	for _, o := range strings.Split(allowed, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[o] = true
		}
	}
	if len(p.origins) == 0 {
		p.any = true
	}
	return p
}

// Allows reports whether a request from origin may proceed. Requests without an
// Origin header come from non-browser clients and are always allowed.
func (p OriginPolicy) Allows(origin string) bool {
	return origin == "" || p.any || p.origins[origin]
}

// CORS answers preflights and sets CORS headers for origins the policy allows.
// Preflights from other origins are refused.
func CORS(p OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := origin != "" && p.Allows(origin)
		if allowed {
			if p.any {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Expose-Headers", HeaderRequestID)
		}
		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		if origin != "" && !allowed {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Header("Access-Control-Allow-Methods", corsMethods)
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+HeaderRequestID)
		c.Header("Access-Control-Max-Age", "86400")
		c.AbortWithStatus(http.StatusNoContent)
	}
}
