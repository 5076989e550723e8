package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-client/internal/observability"
	"chat-client/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(observability.RequestIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(observability.RequestIDKey, requestID)
	return requestID
}

// requestContext carries the request id into audit events emitted below
// the handler.
func requestContext(c *gin.Context) context.Context {
	return telemetry.WithRequestID(c.Request.Context(), requestIDFromContext(c))
}
