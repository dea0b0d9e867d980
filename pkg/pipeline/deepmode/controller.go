package deepmode

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/pipeline/aggregate"
	"ai-answer-engine-be/pkg/pipeline/prompt"
	"ai-answer-engine-be/pkg/pipeline/route"
	"ai-answer-engine-be/pkg/pipeline/state"
)

// Deep mode is a state machine that is terminal after at most one extra hop:
//
//	first_pass_done -> critiqued -> (accepted | replanned) -> done
//
// A replan re-runs the core stages exactly once with the critique's suggested
// query; there is no second critique, so termination does not depend on the
// critique's cooperation.
type phase string

const (
	phaseFirstPassDone phase = "first_pass_done"
	phaseCritiqued     phase = "critiqued"
	phaseAccepted      phase = "accepted"
	phaseReplanned     phase = "replanned"
	phaseDone          phase = "done"
)

// RerunFunc re-runs the core pipeline stages (normalize through synthesize)
// for a substituted query. It must not re-enter deep mode or touch the cache.
type RerunFunc func(ctx context.Context, qc state.QueryContext) (*state.PipelineResult, error)

type Config struct {
	SmallLLMTimeout time.Duration
	// ReplanConfidence is the critique-confidence cutoff below which a replan
	// request is ignored. Heuristic, kept tunable.
	ReplanConfidence float64
	RetrieveTimeout  time.Duration
	// MaxAngles bounds the extra single-vertical passes driven by rewrite
	// alternatives.
	MaxAngles int
}

func DefaultConfig() Config {
	return Config{
		SmallLLMTimeout:  10 * time.Second,
		ReplanConfidence: 0.6,
		RetrieveTimeout:  12 * time.Second,
		MaxAngles:        2,
	}
}

// FirstPass is everything the controller needs to know about the completed
// first pipeline pass.
type FirstPass struct {
	QC      state.QueryContext
	Result  *state.PipelineResult
	Rewrite state.RewriteResult
	Filters state.ExtractedFilters
}

type critique struct {
	NeedsReplan    bool    `json:"needs_replan"`
	SuggestedQuery string  `json:"suggested_query"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
	RefinedSummary string  `json:"refined_summary"`
}

type Controller struct {
	smallLLM   llm.LLMProvider
	overview   aggregate.OverviewProvider
	retrievers map[state.Vertical]route.Retriever
	cfg        Config
	logger     *log.Logger
}

func NewController(smallLLM llm.LLMProvider, overview aggregate.OverviewProvider, retrievers map[state.Vertical]route.Retriever, cfg Config, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		smallLLM:   smallLLM,
		overview:   overview,
		retrievers: retrievers,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run critiques the first pass and performs at most one bounded extra hop.
// It always returns a usable result; every failure path degrades to the
// first-pass answer.
func (c *Controller) Run(ctx context.Context, first FirstPass, rerun RerunFunc) *state.PipelineResult {
	result := first.Result
	trail := []phase{phaseFirstPassDone}

	crit, err := c.critique(ctx, first)
	if err != nil {
		// Critique failure degrades to quick-mode quality, never fails the run.
		c.logger.Printf("[DEEP] critique failed, accepting first pass: %v", err)
		trail = append(trail, phaseAccepted, phaseDone)
		result.Debug.DeepState = joinTrail(trail)
		return result
	}
	trail = append(trail, phaseCritiqued)
	c.logger.Printf("[DEEP] critique: needs_replan=%t confidence=%.2f suggested=%q", crit.NeedsReplan, crit.Confidence, crit.SuggestedQuery)

	if crit.NeedsReplan && crit.SuggestedQuery != "" && crit.Confidence >= c.cfg.ReplanConfidence {
		trail = append(trail, phaseReplanned)
		result = c.replan(ctx, first, crit, rerun)
	} else {
		trail = append(trail, phaseAccepted)
		if crit.RefinedSummary != "" {
			result.Summary = crit.RefinedSummary
		}
		result.SuggestedQuery = crit.SuggestedQuery
	}

	c.enrich(ctx, first, result)

	trail = append(trail, phaseDone)
	result.Debug.DeepState = joinTrail(trail)
	return result
}

func (c *Controller) critique(ctx context.Context, first FirstPass) (*critique, error) {
	builder := prompt.NewCritiqueBuilder(first.QC.Message, first.Result.Summary, first.Result.Vertical, first.Result.RetrievalStats)

	cctx, cancel := context.WithTimeout(ctx, c.cfg.SmallLLMTimeout)
	defer cancel()

	resp, err := c.smallLLM.Generate(cctx, builder.Build())
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSON(resp)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in critique response")
	}
	var crit critique
	if err := json.Unmarshal([]byte(raw), &crit); err != nil {
		return nil, fmt.Errorf("parse critique: %w", err)
	}
	return &crit, nil
}

// replan runs the core stages once more with the suggested query, the
// original message demoted to a prior turn. The first pass stands if the
// rerun fails.
func (c *Controller) replan(ctx context.Context, first FirstPass, crit *critique, rerun RerunFunc) *state.PipelineResult {
	qc := first.QC
	qc.Message = crit.SuggestedQuery
	qc.History = append(append([]state.Turn{}, first.QC.History...), state.Turn{
		Role:    llm.RoleUser,
		Content: first.QC.Message,
	})

	replanned, err := rerun(ctx, qc)
	if err != nil || replanned == nil {
		c.logger.Printf("[DEEP] replan pass failed, keeping first pass: %v", err)
		first.Result.SuggestedQuery = crit.SuggestedQuery
		return first.Result
	}

	replanned.SuggestedQuery = crit.SuggestedQuery
	replanned.SuggestedQueryUsed = true
	return replanned
}

// enrich runs the remaining bounded deep-mode behaviors: one supplementary
// web query when the answer landed on the general vertical, and one extra
// single-vertical pass per rewrite alternative.
func (c *Controller) enrich(ctx context.Context, first FirstPass, result *state.PipelineResult) {
	if result.Vertical == state.VerticalOther {
		c.supplementOverview(ctx, first.QC.Message, result)
		return
	}
	c.additionalAngles(ctx, first, result)
}

func (c *Controller) supplementOverview(ctx context.Context, query string, result *state.PipelineResult) {
	if c.overview == nil {
		return
	}

	octx, cancel := context.WithTimeout(ctx, c.cfg.RetrieveTimeout)
	defer cancel()

	ov, err := c.overview.Overview(octx, query+" background and context")
	if err != nil || ov == nil || ov.Summary == "" {
		c.logger.Printf("[DEEP] supplementary overview failed: %v", err)
		return
	}

	result.Summary += "\n\nBroader context: " + ov.Summary
	for _, cit := range ov.Citations {
		cit.ID = len(result.Citations) + 1
		result.Citations = append(result.Citations, cit)
	}
}

func (c *Controller) additionalAngles(ctx context.Context, first FirstPass, result *state.PipelineResult) {
	alts := first.Rewrite.Alternatives
	if len(alts) == 0 {
		return
	}
	if len(alts) > c.cfg.MaxAngles {
		alts = alts[:c.cfg.MaxAngles]
	}

	retriever := c.retrievers[result.Vertical]
	if retriever == nil {
		return
	}

	for _, alt := range alts {
		if strings.TrimSpace(alt) == "" || strings.EqualFold(alt, first.QC.Message) {
			continue
		}
		c.angle(ctx, retriever, alt, result)
	}
}

// angle runs one retrieval pass for an alternative phrasing and appends a
// short digest of anything new it surfaced.
func (c *Controller) angle(ctx context.Context, retriever route.Retriever, phrasing string, result *state.PipelineResult) {
	rctx, cancel := context.WithTimeout(ctx, c.cfg.RetrieveTimeout)
	defer cancel()

	payload, err := retriever.Search(rctx, phrasing, state.ExtractedFilters{})
	if err != nil || payload == nil {
		c.logger.Printf("[DEEP] additional angle %q failed: %v", phrasing, err)
		return
	}

	fresh := c.freshChunks(payload.Chunks, result)
	if len(fresh) == 0 {
		return
	}
	if len(fresh) > 2 {
		fresh = fresh[:2]
	}

	titles := make([]string, 0, len(fresh))
	for _, chunk := range fresh {
		id := len(result.Citations) + 1
		result.Citations = append(result.Citations, state.Citation{
			ID:      id,
			URL:     chunk.URL,
			Title:   chunk.Title,
			Snippet: chunk.Text,
		})
		titles = append(titles, fmt.Sprintf("%s [%d]", chunk.Title, id))
	}
	result.Summary += fmt.Sprintf("\n\nAdditional angle (%s): %s.", phrasing, strings.Join(titles, "; "))
}

// freshChunks filters out evidence already cited by the main answer.
func (c *Controller) freshChunks(chunks []state.RetrievedChunk, result *state.PipelineResult) []state.RetrievedChunk {
	cited := make(map[string]struct{}, len(result.Citations))
	for _, cit := range result.Citations {
		cited[strings.ToLower(cit.Title)+"|"+cit.URL] = struct{}{}
	}

	fresh := make([]state.RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		key := strings.ToLower(chunk.Title) + "|" + chunk.URL
		if _, ok := cited[key]; ok {
			continue
		}
		fresh = append(fresh, chunk)
	}
	return fresh
}

func joinTrail(trail []phase) string {
	parts := make([]string, len(trail))
	for i, p := range trail {
		parts[i] = string(p)
	}
	return strings.Join(parts, ">")
}
