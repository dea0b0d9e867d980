package executor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/pipeline/aggregate"
	"ai-answer-engine-be/pkg/pipeline/decompose"
	"ai-answer-engine-be/pkg/pipeline/deepmode"
	"ai-answer-engine-be/pkg/pipeline/normalize"
	"ai-answer-engine-be/pkg/pipeline/route"
	"ai-answer-engine-be/pkg/pipeline/state"
	"ai-answer-engine-be/pkg/pipeline/synthesis"
)

type Config struct {
	Normalizer  normalize.Config
	Decomposer  decompose.Config
	Router      route.Config
	Aggregator  aggregate.Config
	Synthesizer synthesis.Config
	Deep        deepmode.Config

	ResultCacheTTL  time.Duration
	SessionMaxTurns int
}

func DefaultConfig() Config {
	return Config{
		Normalizer:      normalize.DefaultConfig(),
		Decomposer:      decompose.DefaultConfig(),
		Router:          route.DefaultConfig(),
		Aggregator:      aggregate.DefaultConfig(),
		Synthesizer:     synthesis.DefaultConfig(),
		Deep:            deepmode.DefaultConfig(),
		ResultCacheTTL:  15 * time.Minute,
		SessionMaxTurns: 20,
	}
}

// Executor runs the orchestration pipeline: normalize, decompose, route,
// aggregate, synthesize, then optionally the deep-mode hop. Stages run
// strictly in sequence; the router's vertical fan-out is the only internal
// parallelism.
type Executor struct {
	deps Deps
	cfg  Config

	normalizer  *normalize.Normalizer
	decomposer  *decompose.Decomposer
	router      *route.Router
	aggregator  *aggregate.Aggregator
	synthesizer *synthesis.Synthesizer
	deep        *deepmode.Controller

	logger *log.Logger
}

// New assembles the pipeline from its injected collaborators. logger is the
// dedicated pipeline log; nil falls back to the process default.
func New(deps Deps, cfg Config, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}

	scorer := route.NewScorer(deps.Embedder, route.DefaultScorerConfig(), logger)

	return &Executor{
		deps:        deps,
		cfg:         cfg,
		normalizer:  normalize.NewNormalizer(deps.SmallLLM, deps.PlanCache, cfg.Normalizer, logger),
		decomposer:  decompose.NewDecomposer(deps.SmallLLM, cfg.Decomposer, logger),
		router:      route.NewRouter(scorer, deps.Retrievers, cfg.Router, logger),
		aggregator:  aggregate.NewAggregator(deps.Reranker, deps.WebOverview, cfg.Aggregator, logger),
		synthesizer: synthesis.NewSynthesizer(deps.MainLLM, cfg.Synthesizer, logger),
		deep:        deepmode.NewController(deps.SmallLLM, deps.WebOverview, deps.Retrievers, cfg.Deep, logger),
		logger:      logger,
	}
}

// Run executes one pipeline request end to end. Soft failures inside
// collaborators degrade the result; only an unexpected core fault or context
// cancellation returns an error, and nothing is cached or persisted then.
func (e *Executor) Run(ctx context.Context, qc state.QueryContext) (*state.PipelineResult, error) {
	requestID := uuid.NewString()
	start := time.Now()
	e.logger.Printf("[PHASE 0] request %s mode=%s message=%q", requestID, qc.Mode, truncate(qc.Message, 120))

	if qc.Mode == state.ModeQuick && e.deps.Cache != nil {
		if cached, ok := e.deps.Cache.Get(ctx, CacheKey(qc)); ok && cached != nil {
			e.logger.Printf("[PHASE 0] cache hit, returning stored result")
			out := *cached
			out.Debug.CacheHit = true
			out.GeneratedAt = time.Now()
			return &out, nil
		}
	}

	var sess *state.SessionState
	if qc.SessionID != "" && e.deps.Sessions != nil {
		s, err := e.deps.Sessions.Get(ctx, qc.SessionID)
		if err != nil {
			e.logger.Printf("[PHASE 0] session read failed, continuing without memory: %v", err)
		} else {
			sess = s
		}
	}

	first, err := e.runCore(ctx, requestID, qc, sess)
	if err != nil {
		return nil, err
	}
	result := first.Result

	if qc.Mode == state.ModeDeep {
		deepStart := time.Now()
		rerun := func(rctx context.Context, rqc state.QueryContext) (*state.PipelineResult, error) {
			fp, rerr := e.runCore(rctx, requestID, rqc, sess)
			if rerr != nil {
				return nil, rerr
			}
			return fp.Result, nil
		}
		result = e.deep.Run(ctx, *first, rerun)
		e.recordStage(ctx, requestID, "deep", deepStart, result.Debug.StageLatenciesMs)
	}

	if qc.Mode == state.ModeQuick && e.deps.Cache != nil {
		e.deps.Cache.Set(ctx, CacheKey(qc), result, e.cfg.ResultCacheTTL)
	}

	e.patchSession(ctx, qc, first, result)

	if e.deps.Events != nil {
		e.deps.Events.PipelineCompleted(ctx, requestID, qc, result, time.Since(start))
	}
	e.logger.Printf("[PHASE 7] request %s done vertical=%s quality=%s citations=%d in %dms",
		requestID, result.Vertical, result.RetrievalStats.Quality, len(result.Citations), time.Since(start).Milliseconds())
	return result, nil
}

// runCore executes normalize through synthesize once. Deep mode re-enters
// here for its replan pass, which is why cache, session, and deep handling
// live in Run instead.
func (e *Executor) runCore(ctx context.Context, requestID string, qc state.QueryContext, sess *state.SessionState) (*deepmode.FirstPass, error) {
	latencies := make(map[string]int64)
	debug := state.DebugTrace{RequestID: requestID, StageLatenciesMs: latencies}

	stageStart := time.Now()
	norm := e.normalizer.Normalize(ctx, qc)
	if sess != nil {
		norm.Filters.MergeFrom(sess.LastFilters)
	}
	e.recordStage(ctx, requestID, "normalize", stageStart, latencies)
	e.logger.Printf("[PHASE 1] normalized %q -> %q (grounding=%t, plan_cache=%t)",
		truncate(qc.Message, 80), truncate(norm.Rewrite.RewrittenPrompt, 80), norm.Grounding.NeedsGrounding, norm.FromCache)

	debug.Rewrite = &norm.Rewrite
	debug.GroundingDecision = &norm.Grounding
	debug.PlanCacheHit = norm.FromCache

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !norm.Grounding.NeedsGrounding {
		result := e.directAnswer(ctx, qc, debug)
		e.logger.Printf("[PHASE 2] grounding not needed (%s), answered directly", norm.Grounding.Reason)
		return &deepmode.FirstPass{QC: qc, Result: result, Rewrite: norm.Rewrite, Filters: norm.Filters}, nil
	}

	stageStart = time.Now()
	subQueries := e.decomposer.Decompose(ctx, qc, norm.Rewrite.RewrittenPrompt)
	e.recordStage(ctx, requestID, "decompose", stageStart, latencies)
	e.logger.Printf("[PHASE 2] decomposed into %d sub-queries: %v", len(subQueries), subQueries)
	debug.SubQueries = subQueries

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stageStart = time.Now()
	routed, err := e.router.Route(ctx, subQueries, norm.Filters)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	e.recordStage(ctx, requestID, "route", stageStart, latencies)
	debug.Candidates = routed.Candidates
	debug.Routing = &routed.Decision
	debug.SearchQueries = routed.SearchQueries

	stageStart = time.Now()
	agg := e.aggregator.Aggregate(ctx, norm.Rewrite.RewrittenPrompt, routed.Winner, routed.Chunks, routed.Payloads)
	e.recordStage(ctx, requestID, "aggregate", stageStart, latencies)
	e.logger.Printf("[PHASE 3] aggregated %d chunks, vertical=%s quality=%s", len(agg.Chunks), agg.Vertical, agg.Stats.Quality)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stageStart = time.Now()
	history := e.workingMemory(qc)
	summary, citations := e.synthesizer.Synthesize(ctx, qc.Message, history, agg)
	e.recordStage(ctx, requestID, "synthesize", stageStart, latencies)
	e.logger.Printf("[PHASE 4] synthesized %d chars with %d citations", len(summary), len(citations))

	result := &state.PipelineResult{
		Vertical:       agg.Vertical,
		Summary:        summary,
		Citations:      citations,
		RetrievalStats: agg.Stats,
		UIHints:        state.HintsForVertical(agg.Vertical),
		CrossPartHint:  agg.CrossPart,
		Debug:          debug,
		GeneratedAt:    time.Now(),
	}
	for _, payload := range agg.Payloads {
		result.AttachItems(payload)
	}

	return &deepmode.FirstPass{QC: qc, Result: result, Rewrite: norm.Rewrite, Filters: norm.Filters}, nil
}

// directAnswer handles the no-grounding path: conversational or
// self-contained questions answered in one model call, no retrieval, no
// citations.
func (e *Executor) directAnswer(ctx context.Context, qc state.QueryContext, debug state.DebugTrace) *state.PipelineResult {
	messages := e.workingMemory(qc)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: qc.Message})

	cctx, cancel := context.WithTimeout(ctx, e.cfg.Synthesizer.MainLLMTimeout)
	defer cancel()

	summary, err := e.deps.MainLLM.Chat(cctx, messages, llm.WithTemperature(0.6))
	if err != nil || strings.TrimSpace(summary) == "" {
		e.logger.Printf("[PHASE 2] direct answer failed: %v", err)
		summary = "I could not put together an answer just now. Could you rephrase the question?"
	}

	return &state.PipelineResult{
		Vertical:       state.VerticalOther,
		Summary:        strings.TrimSpace(summary),
		Citations:      []state.Citation{},
		RetrievalStats: state.RetrievalStats{Vertical: state.VerticalOther, Quality: state.QualityGood},
		UIHints:        state.HintsForVertical(state.VerticalOther),
		Debug:          debug,
		GeneratedAt:    time.Now(),
	}
}

// workingMemory converts conversation history into model messages, capped to
// the same window the normalizer reasons over.
func (e *Executor) workingMemory(qc state.QueryContext) []llm.Message {
	window := e.cfg.Normalizer.HistoryWindow
	turns := qc.History
	if window > 0 && len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	messages := make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		role := llm.RoleUser
		if strings.EqualFold(turn.Role, "assistant") {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	return messages
}

// patchSession applies read-merge-write session memory. Last write wins;
// cross-request locking is deliberately absent.
func (e *Executor) patchSession(ctx context.Context, qc state.QueryContext, first *deepmode.FirstPass, result *state.PipelineResult) {
	if qc.SessionID == "" || e.deps.Sessions == nil {
		return
	}

	filters := first.Filters
	patch := state.SessionPatch{
		AppendTurn: &state.SessionTurn{
			Query:    qc.Message,
			Answer:   result.Summary,
			Vertical: result.Vertical,
			At:       time.Now(),
		},
		Filters:  &filters,
		Vertical: result.Vertical,
		Strength: result.RetrievalStats.Quality,
	}
	if err := e.deps.Sessions.Update(ctx, qc.SessionID, patch); err != nil {
		e.logger.Printf("[PHASE 6] session update failed: %v", err)
	}
}

func (e *Executor) recordStage(ctx context.Context, requestID, stage string, start time.Time, latencies map[string]int64) {
	elapsed := time.Since(start)
	latencies[stage] = elapsed.Milliseconds()
	if e.deps.Events != nil {
		e.deps.Events.StageCompleted(ctx, requestID, stage, elapsed)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
