package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"advance-wizard/internal/common/logger"
)

// originGuard rejects browser requests from origins outside the allow-list.
// Requests without an Origin header (curl, server-to-server) pass. In
// development mode any localhost origin is accepted.
func originGuard(allowed []string, development bool, log logger.Logger) gin.HandlerFunc {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		allowSet[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		trimmed := strings.TrimRight(origin, "/")
		_, ok := allowSet[trimmed]
		if !ok && development && isLocalhost(trimmed) {
			ok = true
		}
		if !ok {
			log.Warn("rejected request from unlisted origin", map[string]interface{}{
				"origin": origin,
				"path":   c.Request.URL.Path,
			})
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func isLocalhost(origin string) bool {
	for _, prefix := range []string{"http://localhost", "https://localhost", "http://127.0.0.1", "https://127.0.0.1"} {
		if origin == prefix || strings.HasPrefix(origin, prefix+":") {
			return true
		}
	}
	return false
}

// requestLogger logs each request with latency and status.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request handled", map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
	}
}
