package executor

import (
	"context"
	"time"

	"ai-answer-engine-be/pkg/embedding"
	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/pipeline/aggregate"
	"ai-answer-engine-be/pkg/pipeline/normalize"
	"ai-answer-engine-be/pkg/pipeline/route"
	"ai-answer-engine-be/pkg/pipeline/state"
)

// Cache stores completed quick-mode results. Implementations must treat
// backend failure as a miss; the pipeline recomputes rather than fails.
type Cache interface {
	Get(ctx context.Context, key string) (*state.PipelineResult, bool)
	Set(ctx context.Context, key string, result *state.PipelineResult, ttl time.Duration)
}

// SessionStore holds per-session memory across turns. Reads and writes are
// best effort: a broken session backend costs context, not availability.
type SessionStore interface {
	Get(ctx context.Context, id string) (*state.SessionState, error)
	Update(ctx context.Context, id string, patch state.SessionPatch) error
}

// EventSink receives structured pipeline events. Implementations must be
// non-blocking and must never influence control flow.
type EventSink interface {
	StageCompleted(ctx context.Context, requestID, stage string, latency time.Duration)
	PipelineCompleted(ctx context.Context, requestID string, qc state.QueryContext, result *state.PipelineResult, latency time.Duration)
}

// Deps injects every collaborator the pipeline calls out to. The core has no
// compile-time dependency on concrete providers; anything optional may be
// nil and the pipeline degrades around it.
type Deps struct {
	MainLLM  llm.LLMProvider
	SmallLLM llm.LLMProvider

	// Retrievers maps each routable vertical to its search backend. The
	// VerticalOther entry serves general web retrieval.
	Retrievers map[state.Vertical]route.Retriever

	// WebOverview backs the weak-retrieval fallback and deep mode's
	// supplementary context call.
	WebOverview aggregate.OverviewProvider

	Embedder embedding.EmbeddingProvider // optional, sharpens routing
	Reranker aggregate.Reranker          // optional, reorders evidence

	Cache     Cache               // optional
	PlanCache normalize.PlanCache // optional
	Sessions  SessionStore        // optional
	Events    EventSink           // optional
}
