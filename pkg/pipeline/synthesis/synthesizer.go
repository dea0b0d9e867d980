package synthesis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/pipeline/aggregate"
	"ai-answer-engine-be/pkg/pipeline/prompt"
	"ai-answer-engine-be/pkg/pipeline/state"
)

type Config struct {
	MainLLMTimeout time.Duration
	// MaxEvidence bounds how many chunks are offered to the model; citation
	// numbering covers exactly this window.
	MaxEvidence int
	Temperature float64
}

func DefaultConfig() Config {
	return Config{
		MainLLMTimeout: 30 * time.Second,
		MaxEvidence:    12,
		Temperature:    0.3,
	}
}

// Synthesizer turns aggregated evidence into the final cited answer with one
// main-model call. Synthesis never fails the pipeline: if the model call
// errors or times out, a templated summary built from the structured results
// stands in.
type Synthesizer struct {
	mainLLM llm.LLMProvider
	cfg     Config
	logger  *log.Logger
}

func NewSynthesizer(mainLLM llm.LLMProvider, cfg Config, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Synthesizer{mainLLM: mainLLM, cfg: cfg, logger: logger}
}

// Synthesize produces the answer summary and the citation list backing it.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, history []llm.Message, agg *aggregate.Outcome) (string, []state.Citation) {
	evidence := agg.Chunks
	if s.cfg.MaxEvidence > 0 && len(evidence) > s.cfg.MaxEvidence {
		evidence = evidence[:s.cfg.MaxEvidence]
	}
	citations := citationsFrom(evidence)

	builder := prompt.NewSynthesisBuilder(agg.Vertical, query, history, evidence).
		WithOverview(agg.Overview).
		WithCrossPartHint(agg.CrossPart)

	cctx, cancel := context.WithTimeout(ctx, s.cfg.MainLLMTimeout)
	defer cancel()

	resp, err := s.mainLLM.Chat(cctx, []llm.Message{
		{Role: llm.RoleUser, Content: builder.Build()},
	}, llm.WithTemperature(s.cfg.Temperature))
	if err != nil {
		s.logger.Printf("[SYNTHESIZE] main model failed, using templated summary: %v", err)
		return s.templatedSummary(query, agg), citations
	}

	summary := strings.TrimSpace(resp)
	if summary == "" {
		return s.templatedSummary(query, agg), citations
	}
	return summary, citations
}

// templatedSummary is the degraded answer: it names what was found so the
// structured items below it still make sense, and appends the web overview
// when one was fetched.
func (s *Synthesizer) templatedSummary(query string, agg *aggregate.Outcome) string {
	var b strings.Builder

	n := agg.Stats.ItemCount
	switch {
	case n == 0:
		b.WriteString(fmt.Sprintf("I could not find solid results for %q. The sources listed below may still be a starting point.", query))
	case agg.Vertical == state.VerticalOther:
		b.WriteString(fmt.Sprintf("Here is what I found for %q; see the cited sources for details.", query))
	default:
		b.WriteString(fmt.Sprintf("Found %d %s results for %q; the list below has the details.", n, agg.Vertical, query))
	}

	if agg.Overview != nil && agg.Overview.Summary != "" {
		b.WriteString("\n\n")
		b.WriteString(agg.Overview.Summary)
	}
	return b.String()
}

func citationsFrom(chunks []state.RetrievedChunk) []state.Citation {
	citations := make([]state.Citation, 0, len(chunks))
	for i, c := range chunks {
		citations = append(citations, state.Citation{
			ID:      i + 1,
			URL:     c.URL,
			Title:   c.Title,
			Snippet: snippet(c.Text, 200),
		})
	}
	return citations
}

func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
