package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-client/internal/mocks"
	"chat-client/internal/telemetry"
)

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugAuditTestPublishes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "rk", mock.AnythingOfType("telemetry.AuditEnvelope")).Return(nil).Once()

	r := gin.New()
	RegisterDebugRoutes(r, telemetry.NewAuditEmitter(publisher, "rk", "chat-client", "dev"), true)

	req := httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil)
	req.Header.Set("X-Request-ID", "dbg-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dbg-1")
	publisher.AssertExpectations(t)
}
