package telemetry

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Audit actions emitted by the client.
const (
	ActionLogin          = "login"
	ActionLogout         = "logout"
	ActionSignUp         = "sign_up"
	ActionChatCreated    = "chat_created"
	ActionInviteSent     = "invite_sent"
	ActionInviteAccepted = "invite_accepted"
	ActionInviteDeclined = "invite_declined"
)

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Action string `json:"action"`
	Text   string `json:"text"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one audit record. A nil emitter is a no-op. userID 0
// means anonymous.
func (e *AuditEmitter) Emit(ctx context.Context, level, action, text string, userID int) {
	if e == nil || e.publisher == nil {
		return
	}

	var uid *string
	if userID != 0 {
		s := strconv.Itoa(userID)
		uid = &s
	}

	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	log.Printf("audit emit: level=%s action=%s request_id=%s user_id=%d text=%q", level, action, requestID, userID, text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        uid,
		Payload: AuditPayload{
			Level:  level,
			Action: action,
			Text:   text,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id for later audit records.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
