package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"ai-answer-engine-be/pkg/events"
	pktNats "ai-answer-engine-be/pkg/nats"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// TestNatsEventRoundTrip publishes a completion event through JetStream and
// waits for the durable subscriber to deliver it back. Needs a NATS server
// with JetStream enabled; skips when NATS_URL is not set.
func TestNatsEventRoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("Skipping integration test: NATS_URL not set")
	}

	publisher, err := pktNats.NewPublisher(url)
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}
	defer publisher.Close()

	subscriber, err := pktNats.NewSubscriber(url)
	if err != nil {
		t.Fatalf("Failed to create subscriber: %v", err)
	}
	defer subscriber.Close()

	// Buffered so stale replays from earlier runs cannot wedge the handler.
	received := make(chan events.Event, 16)
	err = subscriber.Subscribe("events."+events.TypeQueryCompleted, "integration-query-completed", func(ctx context.Context, event events.Event) error {
		select {
		case received <- event:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	requestId := uuid.New().String()
	sessionId := "nats-it-" + uuid.New().String()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	evt := events.NewQueryCompleted(requestId, sessionId, "deep", "hotel", "good", 2200, false)
	if err := publisher.Publish(ctx, evt); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	// The durable consumer may first replay leftovers from previous runs;
	// match on the request id we just published.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-received:
			payload := got.Payload()
			if payload["request_id"] != requestId {
				continue
			}

			assert.Equal(t, events.TypeQueryCompleted, got.EventType())
			assert.Equal(t, sessionId, payload["session_id"])
			assert.Equal(t, "deep", payload["mode"])
			assert.Equal(t, "hotel", payload["vertical"])
			assert.Equal(t, "good", payload["quality"])
			assert.Equal(t, float64(2200), payload["latency_ms"])
			assert.Equal(t, false, payload["cache_hit"])
			assert.False(t, got.Timestamp().IsZero(), "occurred_at should survive the wire")

			t.Logf("Round trip completed in subject events.%s", got.EventType())
			return
		case <-deadline:
			t.Fatal("Timed out waiting for event delivery")
		}
	}
}
