package events

import "time"

// Event types mirrored onto the external bus. Per-stage progress stays on
// the in-process bus and is not mirrored.
const (
	TypeQueryCompleted = "QUERY_COMPLETED"
	TypeQueryRejected  = "QUERY_REJECTED"
	TypeFallbackTaken  = "FALLBACK_TAKEN"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "QUERY_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent helps embed common logic if needed,
// strictly creating valid implementations is preferred though.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewQueryCompleted marks a full pipeline run finishing.
func NewQueryCompleted(requestId, sessionId, mode, vertical, quality string, latencyMs int64, cacheHit bool) BaseEvent {
	return BaseEvent{
		Type: TypeQueryCompleted,
		Data: map[string]interface{}{
			"request_id": requestId,
			"session_id": sessionId,
			"mode":       mode,
			"vertical":   vertical,
			"quality":    quality,
			"latency_ms": latencyMs,
			"cache_hit":  cacheHit,
		},
		OccurredAt: time.Now(),
	}
}

// NewQueryRejected marks a request turned away at the admission gate.
func NewQueryRejected(sessionId, mode string) BaseEvent {
	return BaseEvent{
		Type: TypeQueryRejected,
		Data: map[string]interface{}{
			"session_id": sessionId,
			"mode":       mode,
		},
		OccurredAt: time.Now(),
	}
}

// NewFallbackTaken marks a run whose weak structured retrieval was reframed
// through the web-overview path.
func NewFallbackTaken(requestId, sessionId string) BaseEvent {
	return BaseEvent{
		Type: TypeFallbackTaken,
		Data: map[string]interface{}{
			"request_id": requestId,
			"session_id": sessionId,
		},
		OccurredAt: time.Now(),
	}
}
