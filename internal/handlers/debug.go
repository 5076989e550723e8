package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-client/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(requestContext(c), "INFO", "audit_test", "audit test", 0)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestIDFromContext(c)})
	})
}
