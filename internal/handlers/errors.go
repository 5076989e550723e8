package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-client/internal/api"
	"chat-client/internal/controller"
	"chat-client/internal/session"
)

// statusFor maps controller and transport errors onto page responses.
func statusFor(err error) int {
	var validationErr *controller.ValidationError
	var apiErr *api.Error
	var netErr *api.NetworkError

	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, controller.ErrEmptyMessage),
		errors.Is(err, controller.ErrNoActiveChat):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, controller.ErrInviteNotPending),
		errors.Is(err, session.ErrSessionChanged):
		return http.StatusConflict
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status
		}
		return http.StatusBadGateway
	case errors.As(err, &netErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	body := gin.H{"error": api.UserMessage(err)}
	var validationErr *controller.ValidationError
	if errors.As(err, &validationErr) {
		body["fields"] = validationErr.Fields
	}
	c.JSON(statusFor(err), body)
}
