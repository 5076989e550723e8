package observability

import (
	"context"
	"log"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// Publisher is satisfied by rabbitmq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends an operational event when a publisher is configured.
func PublishEvent(ctx context.Context, routingKey string, event EventEnvelope) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, routingKey, event)
	if err != nil {
		IncAMQPPublishError()
		log.Printf("event publish failed routing_key=%s event=%s: %v", routingKey, event.EventName, err)
	}
	return err
}
