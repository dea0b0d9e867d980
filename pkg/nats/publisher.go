// Package nats mirrors pipeline lifecycle events onto a JetStream work
// queue for external analytics consumers. The in-process bus stays the
// source of truth; this mirror is best-effort.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ai-answer-engine-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName holds every mirrored event; subjects are events.<TYPE>.
	StreamName    = "EVENTS"
	SubjectPrefix = "events"
)

// connect dials NATS with the shared reconnect policy and opens a
// JetStream context on the connection.
func connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("ai-answer-engine"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return nc, js, nil
}

// Publisher sends pipeline events to the NATS bus.
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewPublisher(url string) (*Publisher, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}

	ensureStream(js)

	return &Publisher{nc: nc, js: js}, nil
}

// ensureStream creates the EVENTS stream if it does not exist yet. A
// failure is logged, not returned; NATS may simply not be up yet and
// publishes will surface their own errors.
func ensureStream(js jetstream.JetStream) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		log.Printf("Warn: Failed to ensure stream '%s': %v", StreamName, err)
	}
}

// Publish sends an event to NATS. The wire payload carries the event type and
// timestamp alongside the data so subscribers can reconstruct it.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	payload := event.Payload()
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["event_type"] = event.EventType()
	payload["occurred_at"] = event.Timestamp().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, event.EventType())

	_, err = p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}

	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
