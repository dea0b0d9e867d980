package dto

import (
	"time"

	"ai-answer-engine-be/pkg/pipeline/state"
)

type TurnDTO struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

type QueryRequest struct {
	Message        string    `json:"message" validate:"required,min=1,max=4000"`
	History        []TurnDTO `json:"history" validate:"omitempty,max=40,dive"`
	Mode           string    `json:"mode" validate:"omitempty,oneof=quick deep"`
	SessionId      string    `json:"session_id"`
	RewriteVariant string    `json:"rewrite_variant" validate:"omitempty,oneof=a b"`
}

// ToQueryContext converts the wire request into the pipeline's input shape.
// Mode defaults to quick when omitted.
func (r *QueryRequest) ToQueryContext() state.QueryContext {
	mode := state.ModeQuick
	if r.Mode == string(state.ModeDeep) {
		mode = state.ModeDeep
	}
	history := make([]state.Turn, 0, len(r.History))
	for _, t := range r.History {
		history = append(history, state.Turn{Role: t.Role, Content: t.Content})
	}
	return state.QueryContext{
		Message:        r.Message,
		History:        history,
		Mode:           mode,
		SessionID:      r.SessionId,
		RewriteVariant: r.RewriteVariant,
	}
}

// --- Streaming DTOs ---

// Stream event types, emitted in order: zero or more token events, one
// citations event, one result event, then done. An error event terminates
// the stream early.
const (
	StreamEventToken     = "token"
	StreamEventCitations = "citations"
	StreamEventResult    = "result"
	StreamEventDone      = "done"
	StreamEventError     = "error"
)

type StreamEvent struct {
	Type      string                `json:"type"`
	Token     string                `json:"token,omitempty"`
	Citations []state.Citation      `json:"citations,omitempty"`
	Result    *state.PipelineResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// --- Recommendation DTOs ---

type RecommendationItem struct {
	Title                string  `json:"title"`
	Price                string  `json:"price"`
	Link                 string  `json:"link"`
	Source               string  `json:"source"`
	Thumbnail            string  `json:"thumbnail,omitempty"`
	Reason               string  `json:"reason"`
	PersonalizationScore float64 `json:"personalization_score"`
}

type RecommendationResponse struct {
	Items       []RecommendationItem `json:"items"`
	SeedQueries []string             `json:"seed_queries"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// --- Admin metrics DTOs ---

type StageMetrics struct {
	Stage        string  `json:"stage"`
	Count        int64   `json:"count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs int64   `json:"max_latency_ms"`
}

type PipelineMetricsResponse struct {
	TotalQueries   int64            `json:"total_queries"`
	CacheHits      int64            `json:"cache_hits"`
	Fallbacks      int64            `json:"fallbacks"`
	Rejections     int64            `json:"rejections"`
	ByVertical     map[string]int64 `json:"by_vertical"`
	ByMode         map[string]int64 `json:"by_mode"`
	Stages         []StageMetrics   `json:"stages"`
	QueriesLastDay int64            `json:"queries_last_day"`
	CollectedSince time.Time        `json:"collected_since"`
}
