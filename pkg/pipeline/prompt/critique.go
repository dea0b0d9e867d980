package prompt

import (
	"fmt"
	"strings"

	"ai-answer-engine-be/pkg/pipeline/state"
)

// CritiqueBuilder builds the deep-mode self-critique prompt: given the first
// pass answer and its retrieval stats, decide whether one more retrieval pass
// with a sharper query would materially improve the answer.
type CritiqueBuilder struct {
	query    string
	summary  string
	vertical state.Vertical
	stats    state.RetrievalStats
}

// NewCritiqueBuilder creates a new critique prompt builder.
func NewCritiqueBuilder(query, summary string, vertical state.Vertical, stats state.RetrievalStats) *CritiqueBuilder {
	return &CritiqueBuilder{
		query:    query,
		summary:  summary,
		vertical: vertical,
		stats:    stats,
	}
}

// Build assembles the critique prompt.
func (b *CritiqueBuilder) Build() string {
	var prompt strings.Builder

	b.writeTask(&prompt)
	b.writeDraft(&prompt)
	b.writeGuidelines(&prompt)
	b.writeOutputFormat(&prompt)

	return prompt.String()
}

func (b *CritiqueBuilder) writeTask(prompt *strings.Builder) {
	prompt.WriteString("<task>\n")
	prompt.WriteString("You are reviewing a research assistant's first-pass answer. Decide whether one additional retrieval pass with a refined query would materially improve it.\n")
	prompt.WriteString("</task>\n\n")
}

func (b *CritiqueBuilder) writeDraft(prompt *strings.Builder) {
	prompt.WriteString("<draft>\n")
	prompt.WriteString("Question: " + b.query + "\n")
	prompt.WriteString(fmt.Sprintf("Routed vertical: %s, retrieved %d items, quality %s\n", b.vertical, b.stats.ItemCount, b.stats.Quality))
	prompt.WriteString("Answer:\n")
	prompt.WriteString(b.summary)
	prompt.WriteString("\n</draft>\n\n")
}

func (b *CritiqueBuilder) writeGuidelines(prompt *strings.Builder) {
	prompt.WriteString("<guidelines>\n")
	prompt.WriteString("Request a replan only when the answer misses the core of the question, not for polish:\n")
	prompt.WriteString("- The question asked for something specific the answer does not cover\n")
	prompt.WriteString("- Retrieval clearly targeted the wrong thing\n")
	prompt.WriteString("- A tighter query would surface the missing information\n")
	prompt.WriteString("If the answer is adequate, do not request a replan. You may still tighten the wording via refined_summary.\n")
	prompt.WriteString("</guidelines>\n\n")
}

func (b *CritiqueBuilder) writeOutputFormat(prompt *strings.Builder) {
	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with JSON only:\n")
	prompt.WriteString(`{"needs_replan": true|false, "suggested_query": "refined query or empty", "confidence": 0.0-1.0, "reason": "one sentence", "refined_summary": "optional tightened answer, empty to keep the original"}`)
	prompt.WriteString("\n</output_format>\n")
}
