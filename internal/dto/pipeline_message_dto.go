package dto

import (
	"time"

	"ai-answer-engine-be/pkg/pipeline/state"
)

// Messages exchanged over the in-process bus between the pipeline and its
// background consumers (metrics, recorder).

type PublishStageCompletedMessage struct {
	RequestId string `json:"request_id"`
	Stage     string `json:"stage"`
	LatencyMs int64  `json:"latency_ms"`
}

type PublishQueryRejectedMessage struct {
	SessionId  string    `json:"session_id"`
	Mode       string    `json:"mode"`
	RejectedAt time.Time `json:"rejected_at"`
}

type PublishQueryCompletedMessage struct {
	RequestId   string           `json:"request_id"`
	SessionId   string           `json:"session_id"`
	Mode        string           `json:"mode"`
	Message     string           `json:"message"`
	Rewritten   string           `json:"rewritten,omitempty"`
	Vertical    string           `json:"vertical"`
	Quality     string           `json:"quality"`
	Summary     string           `json:"summary"`
	Citations   []state.Citation `json:"citations,omitempty"`
	CacheHit    bool             `json:"cache_hit"`
	LatencyMs   int64            `json:"latency_ms"`
	CompletedAt time.Time        `json:"completed_at"`
}
