package entity

import (
	"time"

	"ai-answer-engine-be/pkg/pipeline/state"

	"github.com/google/uuid"
)

// QueryRecord is one completed pipeline run, persisted for history,
// follow-up suggestions, and recommendations.
type QueryRecord struct {
	Id        uuid.UUID
	SessionId string
	Mode      string
	Message   string
	Rewritten string
	Vertical  string
	Quality   string
	Summary   string
	Citations []state.Citation
	Embedding []float32
	LatencyMs int64
	CacheHit  bool
	CreatedAt time.Time
}
