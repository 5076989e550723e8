package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

const wsRoutingKey = "ws_events.page"

const writeTimeout = 5 * time.Second

var errUnknownClient = errors.New("websocket client not registered")

type client struct {
	conn *websocket.Conn
	info ConnInfo
	// gorilla connections allow one concurrent writer.
	writeMu sync.Mutex
}

func (cl *client) write(payload []byte) error {
	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	if cl.conn == nil {
		return nil
	}
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cl.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans controller events out to every open page.
type Hub struct {
	clients map[*websocket.Conn]*client
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

// AddClient registers a page connection.
func (h *Hub) AddClient(conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = &client{conn: conn, info: info}
}

// RemoveClient forgets a page connection and returns what was known about it.
func (h *Hub) RemoveClient(conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cl, ok := h.clients[conn]
	if !ok {
		return ConnInfo{}, false
	}
	delete(h.clients, conn)
	return cl.info, true
}

// Count returns the number of open pages.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send writes event to a single registered page.
func (h *Hub) Send(conn *websocket.Conn, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.mu.RLock()
	cl, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		return errUnknownClient
	}
	return cl.write(payload)
}

// Broadcast sends event to every page. Connections that fail to accept the
// write are closed and dropped.
func (h *Hub) Broadcast(event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket: marshal %s event: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		if err := cl.write(payload); err != nil {
			log.Printf("websocket write error conn_id=%s: %v", cl.info.ConnID, err)
			cl.conn.Close()
			if info, ok := h.RemoveClient(cl.conn); ok {
				publishWSEvent(context.Background(), "ws_error", info, err.Error())
			}
		}
	}
}

func publishWSEvent(ctx context.Context, name string, info ConnInfo, reason string) {
	observability.IncWSEvent(name)
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"ip":         info.IP,
				"request_id": info.RequestID,
				"trace_id":   info.TraceID,
			},
		},
	})
}
