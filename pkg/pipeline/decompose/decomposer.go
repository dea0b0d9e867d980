package decompose

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/pipeline/state"
)

type Config struct {
	SmallLLMTimeout time.Duration
	MaxSubQueries   int
}

func DefaultConfig() Config {
	return Config{
		SmallLLMTimeout: 10 * time.Second,
		MaxSubQueries:   5,
	}
}

// Decomposer splits a compound request ("flights to X and hotels near Y")
// into independent sub-queries so each can be routed to its own vertical.
type Decomposer struct {
	smallLLM llm.LLMProvider
	cfg      Config
	logger   *log.Logger
}

func NewDecomposer(smallLLM llm.LLMProvider, cfg Config, logger *log.Logger) *Decomposer {
	return &Decomposer{
		smallLLM: smallLLM,
		cfg:      cfg,
		logger:   logger,
	}
}

// Decompose returns 1..MaxSubQueries sub-queries. It never returns an empty
// slice: unusable model output falls back to the rewritten prompt, then to
// the original message.
func (d *Decomposer) Decompose(ctx context.Context, qc state.QueryContext, rewritten string) []string {
	fallback := d.fallback(qc, rewritten)

	// Single-intent heuristic: short prompts without conjunctions are
	// never compound, so skip the LLM round-trip.
	if !looksCompound(rewritten) {
		return fallback
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.SmallLLMTimeout)
	defer cancel()

	response, err := d.smallLLM.Generate(callCtx, buildDecomposePrompt(rewritten), llm.WithTemperature(0.0))
	if err != nil {
		d.logger.Printf("[DECOMPOSE] call failed, using single sub-query: %v", err)
		return fallback
	}

	parsed := parseSubQueries(response)
	if len(parsed) == 0 {
		d.logger.Printf("[DECOMPOSE] no usable sub-queries in response, using single sub-query")
		return fallback
	}

	if len(parsed) > d.cfg.MaxSubQueries {
		parsed = parsed[:d.cfg.MaxSubQueries]
	}
	return parsed
}

func (d *Decomposer) fallback(qc state.QueryContext, rewritten string) []string {
	if strings.TrimSpace(rewritten) != "" {
		return []string{rewritten}
	}
	return []string{qc.Message}
}

func looksCompound(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, conj := range []string{" and ", " plus ", " also ", "; ", " as well as "} {
		if strings.Contains(lower, conj) {
			return true
		}
	}
	return false
}

func parseSubQueries(response string) []string {
	jsonContent := llm.ExtractJSONArray(response)
	if jsonContent == "" {
		return nil
	}

	var raw []string
	if err := json.Unmarshal([]byte(jsonContent), &raw); err != nil {
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, q := range raw {
		if trimmed := strings.TrimSpace(q); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func buildDecomposePrompt(rewritten string) string {
	var prompt strings.Builder

	prompt.WriteString("<task>\n")
	prompt.WriteString("Split the request below into independent atomic search queries.\n")
	prompt.WriteString("Each part that targets a different kind of thing (a flight, a hotel, a product,\n")
	prompt.WriteString("movie tickets) becomes its own query. A single-intent request stays as one query.\n")
	prompt.WriteString("</task>\n\n")

	prompt.WriteString("<request>\n")
	prompt.WriteString(rewritten)
	prompt.WriteString("\n</request>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY a JSON array of strings:\n")
	prompt.WriteString("[\"first atomic query\", \"second atomic query\"]\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}
