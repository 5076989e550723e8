package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// StateSource provides the snapshot sent to a page when it connects.
type StateSource interface {
	State() models.Snapshot
}

// PageHandler serves the page's push channel.
type PageHandler struct {
	hub   *Hub
	state StateSource
}

// NewPageHandler constructs a PageHandler.
func NewPageHandler(hub *Hub, state StateSource) *PageHandler {
	return &PageHandler{hub: hub, state: state}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, sends the current state and keeps the
// connection registered until the page goes away.
func (h *PageHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-client/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	requestID := c.GetString(observability.RequestIDKey)
	if requestID == "" {
		requestID = observability.RequestIDFromRequest(c.Request)
	}
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	// Register before taking the snapshot so no broadcast falls in between.
	h.hub.AddClient(conn, info)
	snap := h.state.State()
	if err := h.hub.Send(conn, models.Event{Type: models.EventState, State: &snap}); err != nil {
		h.hub.RemoveClient(conn)
		conn.Close()
		return
	}
	observability.IncWSActive()
	publishWSEvent(ctx, "ws_connect", info, "")

	// The page never sends anything meaningful; reading detects the close.
	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveClient(conn)
			observability.DecWSActive()
			publishWSEvent(ctx, "ws_disconnect", info, closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(ctx, "ws_error", info, closeReason)
				}
				return
			}
		}
	}()
}
