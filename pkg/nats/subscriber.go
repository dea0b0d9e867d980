package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-answer-engine-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler is a function that processes an event.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber listens for pipeline events from NATS.
type Subscriber struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewSubscriber creates a subscriber on its own connection.
func NewSubscriber(url string) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js}, nil
}

// Subscribe registers a handler for a subject pattern, e.g.
// "events.QUERY_COMPLETED" or "events.>". The durable consumer survives
// restarts; a message that keeps failing stops redelivering after five
// attempts instead of wedging the work queue.
func (s *Subscriber) Subscribe(subject string, durableName string, handler EventHandler) error {
	ctx := context.Background()

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if _, err := consumer.Consume(s.dispatch(handler)); err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	log.Printf("Subscribed to %s with durable %s", subject, durableName)
	return nil
}

// dispatch rebuilds the event from the wire envelope and applies the
// handler with explicit ack semantics.
func (s *Subscriber) dispatch(handler EventHandler) jetstream.MessageHandler {
	return func(msg jetstream.Msg) {
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Data(), &payload); err != nil {
			log.Printf("Error unmarshalling event data: %v", err)
			msg.Nak()
			return
		}

		event := events.BaseEvent{
			Type:       eventTypeFor(msg.Subject(), payload),
			Data:       payload,
			OccurredAt: occurredAtFor(payload),
		}

		if err := handler(context.Background(), event); err != nil {
			log.Printf("Handler failed for event %s: %v", msg.Subject(), err)
			msg.Nak() // Retry
			return
		}

		msg.Ack()
	}
}

// eventTypeFor prefers the type embedded in the payload and falls back to
// stripping the subject prefix.
func eventTypeFor(subject string, payload map[string]interface{}) string {
	if t, ok := payload["event_type"].(string); ok && t != "" {
		return t
	}
	return strings.TrimPrefix(subject, SubjectPrefix+".")
}

func occurredAtFor(payload map[string]interface{}) time.Time {
	if raw, ok := payload["occurred_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return ts
		}
	}
	return time.Now()
}

// Close closes the connection.
func (s *Subscriber) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
