package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-client/internal/observability"
	"chat-client/internal/telemetry"
)

// Publisher publishes audit and websocket events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to the broker. The client works without one, so
// any failure yields a publisher that only logs.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		return noopPublisher{reason: "AMQP_URL not set"}
	}
	p, err := dial(amqpURL, exchange)
	if err != nil {
		log.Printf("rabbitmq unavailable, events will only be logged: %v", err)
		return noopPublisher{reason: err.Error()}
	}
	log.Printf("rabbitmq connected exchange=%s", exchange)
	return p
}

func dial(amqpURL, exchange string) (*amqpPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// durable topic exchange shared with the rest of the audit pipeline
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

type amqpPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return amqp.ErrClosed
	}
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	p.ch = nil
	return p.conn.Close()
}

// noopPublisher stands in when no broker is reachable.
type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		log.Printf("event routing_key=%s action=%s user_id=%v request_id=%s", routingKey, envelope.Payload.Action, userIDText(envelope.UserID), envelope.RequestID)
	case observability.EventEnvelope:
		log.Printf("event routing_key=%s event=%s", routingKey, envelope.EventName)
	}
	return nil
}

func (noopPublisher) Close() error { return nil }

func userIDText(id *string) string {
	if id == nil {
		return "-"
	}
	return *id
}

// Describe reports where events go, for the startup log.
func Describe(p Publisher) string {
	if noop, ok := p.(noopPublisher); ok {
		return "log only (" + noop.reason + ")"
	}
	return "amqp"
}
