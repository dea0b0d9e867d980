package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/pipeline/state"
)

// Outcome bundles everything the normalization stage derives from the raw
// message. It is the unit the plan cache memoizes.
type Outcome struct {
	Rewrite   state.RewriteResult    `json:"rewrite"`
	Filters   state.ExtractedFilters `json:"filters"`
	Grounding state.GroundingDecision `json:"grounding"`
	FromCache bool                   `json:"-"`
}

// PlanCache memoizes normalization outcomes by content key. Implementations
// own the TTL; a nil cache disables memoization.
type PlanCache interface {
	Get(ctx context.Context, key string) (*Outcome, bool)
	Set(ctx context.Context, key string, outcome *Outcome)
}

type Config struct {
	SmallLLMTimeout time.Duration
	// Rewrites below this confidence carry alternative phrasings.
	LowConfidence float64
	// How many trailing history turns the rewrite prompt sees.
	HistoryWindow int
}

func DefaultConfig() Config {
	return Config{
		SmallLLMTimeout: 10 * time.Second,
		LowConfidence:   0.6,
		HistoryWindow:   6,
	}
}

// Normalizer turns a raw message plus history into a disambiguated prompt,
// per-vertical filters, and the grounding decision. All three derivations are
// soft: any failure degrades to a safe default instead of aborting the run.
type Normalizer struct {
	smallLLM  llm.LLMProvider
	planCache PlanCache
	cfg       Config
	logger    *log.Logger
}

func NewNormalizer(smallLLM llm.LLMProvider, planCache PlanCache, cfg Config, logger *log.Logger) *Normalizer {
	return &Normalizer{
		smallLLM:  smallLLM,
		planCache: planCache,
		cfg:       cfg,
		logger:    logger,
	}
}

// Normalize resolves the message against history. Never returns an error:
// every sub-step has a fallback (identity rewrite, empty filters,
// grounding=true).
func (n *Normalizer) Normalize(ctx context.Context, qc state.QueryContext) *Outcome {
	key := PlanKey(qc)
	if n.planCache != nil {
		if cached, ok := n.planCache.Get(ctx, key); ok {
			n.logger.Printf("[NORMALIZE] plan cache hit key=%s", key[:12])
			hit := *cached
			hit.FromCache = true
			return &hit
		}
	}

	outcome := &Outcome{
		Rewrite:   n.rewrite(ctx, qc),
		Grounding: state.GroundingDecision{NeedsGrounding: true},
	}
	outcome.Filters = n.extractFilters(ctx, outcome.Rewrite.RewrittenPrompt)
	outcome.Grounding = n.decideGrounding(ctx, outcome.Rewrite.RewrittenPrompt)

	if n.planCache != nil {
		n.planCache.Set(ctx, key, outcome)
	}
	return outcome
}

// --- Rewrite ---

type rewriteReply struct {
	RewrittenPrompt string   `json:"rewritten_prompt"`
	Confidence      float64  `json:"confidence"`
	Alternatives    []string `json:"alternatives"`
}

func (n *Normalizer) rewrite(ctx context.Context, qc state.QueryContext) state.RewriteResult {
	// Identity fallback keeps the pipeline moving on any failure.
	fallback := state.RewriteResult{RewrittenPrompt: qc.Message, Confidence: 1.0}

	if len(qc.History) == 0 && !looksAnaphoric(qc.Message) {
		// Nothing to resolve against; skip the LLM round-trip.
		return fallback
	}

	prompt := n.buildRewritePrompt(qc)

	callCtx, cancel := context.WithTimeout(ctx, n.cfg.SmallLLMTimeout)
	defer cancel()

	response, err := n.smallLLM.Generate(callCtx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		n.logger.Printf("[NORMALIZE] rewrite call failed, using raw message: %v", err)
		return fallback
	}

	jsonContent := llm.ExtractJSON(response)
	if jsonContent == "" {
		n.logger.Printf("[NORMALIZE] rewrite returned no JSON, using raw message")
		return fallback
	}

	var reply rewriteReply
	if err := json.Unmarshal([]byte(jsonContent), &reply); err != nil {
		n.logger.Printf("[NORMALIZE] rewrite parse failed, using raw message: %v", err)
		return fallback
	}
	if strings.TrimSpace(reply.RewrittenPrompt) == "" {
		return fallback
	}

	result := state.RewriteResult{
		RewrittenPrompt: strings.TrimSpace(reply.RewrittenPrompt),
		Confidence:      clamp01(reply.Confidence),
	}
	// Alternatives only matter when the model itself was unsure.
	if result.Confidence < n.cfg.LowConfidence {
		result.Alternatives = reply.Alternatives
	}
	return result
}

func (n *Normalizer) buildRewritePrompt(qc state.QueryContext) string {
	var prompt strings.Builder

	prompt.WriteString("<task>\n")
	prompt.WriteString("You rewrite the user's latest message into one self-contained search request.\n")
	prompt.WriteString("Resolve pronouns and ellipsis using the conversation history. Do not answer the question.\n")
	prompt.WriteString("</task>\n\n")

	window := n.cfg.HistoryWindow
	history := qc.History
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	if len(history) > 0 {
		prompt.WriteString("<history>\n")
		for _, turn := range history {
			prompt.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
		prompt.WriteString("</history>\n\n")
	}

	prompt.WriteString("<message>\n")
	prompt.WriteString(qc.Message)
	prompt.WriteString("\n</message>\n\n")

	prompt.WriteString("<guidelines>\n")
	switch qc.RewriteVariant {
	case "b":
		prompt.WriteString("Prefer expansive rewrites: spell out implied constraints (place, dates, budget) even when only hinted at.\n")
	default:
		prompt.WriteString("Prefer minimal rewrites: change nothing unless the message cannot stand alone.\n")
	}
	prompt.WriteString("If several readings are plausible, pick the most likely one and list the others as alternatives.\n")
	prompt.WriteString("</guidelines>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"rewritten_prompt\": \"the self-contained request\",\n")
	prompt.WriteString("  \"confidence\": 0.95,\n")
	prompt.WriteString("  \"alternatives\": [\"other plausible readings, empty if confident\"]\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

// looksAnaphoric is a cheap check for references that need history to resolve.
func looksAnaphoric(message string) bool {
	lower := " " + strings.ToLower(message) + " "
	for _, marker := range []string{" it ", " that ", " those ", " them ", " there ", " same ", " cheaper ", " instead "} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// --- Filter extraction ---

func (n *Normalizer) extractFilters(ctx context.Context, rewritten string) state.ExtractedFilters {
	prompt := buildFilterPrompt(rewritten)

	callCtx, cancel := context.WithTimeout(ctx, n.cfg.SmallLLMTimeout)
	defer cancel()

	response, err := n.smallLLM.Generate(callCtx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		n.logger.Printf("[NORMALIZE] filter extraction failed, continuing without filters: %v", err)
		return state.ExtractedFilters{}
	}

	jsonContent := llm.ExtractJSON(response)
	if jsonContent == "" {
		return state.ExtractedFilters{}
	}

	var filters state.ExtractedFilters
	if err := json.Unmarshal([]byte(jsonContent), &filters); err != nil {
		n.logger.Printf("[NORMALIZE] filter parse failed, continuing without filters: %v", err)
		return state.ExtractedFilters{}
	}
	return filters
}

func buildFilterPrompt(rewritten string) string {
	var prompt strings.Builder

	prompt.WriteString("<task>\n")
	prompt.WriteString("Extract structured search parameters from the request below.\n")
	prompt.WriteString("Include a section ONLY when the request clearly contains its parameters.\n")
	prompt.WriteString("</task>\n\n")

	prompt.WriteString("<request>\n")
	prompt.WriteString(rewritten)
	prompt.WriteString("\n</request>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON. Omit sections that do not apply:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"hotel\": {\"destination\": \"\", \"check_in\": \"YYYY-MM-DD\", \"check_out\": \"YYYY-MM-DD\", \"guests\": 2, \"area\": \"\", \"amenities\": [], \"budget_max\": 0},\n")
	prompt.WriteString("  \"flight\": {\"origin\": \"\", \"destination\": \"\", \"depart_date\": \"YYYY-MM-DD\", \"return_date\": \"\", \"adults\": 1, \"cabin\": \"economy\"},\n")
	prompt.WriteString("  \"product\": {\"query\": \"\", \"category\": \"\", \"budget_max\": 0, \"brands\": []},\n")
	prompt.WriteString("  \"movie\": {\"title\": \"\", \"city\": \"\", \"date\": \"\", \"tickets\": 0, \"format\": \"\"}\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

// --- Grounding decision ---

type groundingReply struct {
	NeedsGrounding bool   `json:"needs_grounding"`
	Reason         string `json:"reason"`
}

func (n *Normalizer) decideGrounding(ctx context.Context, rewritten string) state.GroundingDecision {
	prompt := buildGroundingPrompt(rewritten)

	callCtx, cancel := context.WithTimeout(ctx, n.cfg.SmallLLMTimeout)
	defer cancel()

	response, err := n.smallLLM.Generate(callCtx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		// Fail-safe: over-retrieving beats silently answering ungrounded.
		n.logger.Printf("[NORMALIZE] grounding call failed, defaulting to needs_grounding=true: %v", err)
		return state.GroundingDecision{NeedsGrounding: true, Reason: "classification unavailable, defaulting to retrieval"}
	}

	jsonContent := llm.ExtractJSON(response)
	if jsonContent == "" {
		return state.GroundingDecision{NeedsGrounding: true, Reason: "classification unparseable, defaulting to retrieval"}
	}

	var reply groundingReply
	if err := json.Unmarshal([]byte(jsonContent), &reply); err != nil {
		n.logger.Printf("[NORMALIZE] grounding parse failed, defaulting to needs_grounding=true: %v", err)
		return state.GroundingDecision{NeedsGrounding: true, Reason: "classification unparseable, defaulting to retrieval"}
	}

	decision := state.GroundingDecision{NeedsGrounding: reply.NeedsGrounding, Reason: strings.TrimSpace(reply.Reason)}
	if decision.Reason == "" {
		if decision.NeedsGrounding {
			decision.Reason = "request asks about live external data"
		} else {
			decision.Reason = "conceptual question answerable from general knowledge"
		}
	}
	return decision
}

func buildGroundingPrompt(rewritten string) string {
	var prompt strings.Builder

	prompt.WriteString("<task>\n")
	prompt.WriteString("Classify whether answering this request requires retrieving live external data\n")
	prompt.WriteString("(prices, availability, listings, showtimes, current events) or whether it is a\n")
	prompt.WriteString("conceptual/general-knowledge question answerable directly.\n")
	prompt.WriteString("</task>\n\n")

	prompt.WriteString("<request>\n")
	prompt.WriteString(rewritten)
	prompt.WriteString("\n</request>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\"needs_grounding\": true, \"reason\": \"one short sentence\"}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
