package prompt

import (
	"fmt"
	"strings"

	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/pipeline/state"
)

// SynthesisBuilder builds the grounded answer prompt: conversation history as
// working memory, retrieved evidence as numbered citable sources.
type SynthesisBuilder struct {
	vertical  state.Vertical
	query     string
	history   []llm.Message
	chunks    []state.RetrievedChunk
	overview  *state.WebOverview
	crossPart *state.CrossPartHint
}

// NewSynthesisBuilder creates a new synthesis prompt builder.
func NewSynthesisBuilder(vertical state.Vertical, query string, history []llm.Message, chunks []state.RetrievedChunk) *SynthesisBuilder {
	return &SynthesisBuilder{
		vertical: vertical,
		query:    query,
		history:  history,
		chunks:   chunks,
	}
}

// WithOverview adds a web overview that supplements thin structured results.
func (b *SynthesisBuilder) WithOverview(ov *state.WebOverview) *SynthesisBuilder {
	b.overview = ov
	return b
}

// WithCrossPartHint adds a detected inconsistency between result parts.
func (b *SynthesisBuilder) WithCrossPartHint(hint *state.CrossPartHint) *SynthesisBuilder {
	b.crossPart = hint
	return b
}

// Build assembles the prompt. Evidence numbering here is the citation
// numbering of the final answer, so the caller must pass the same chunk
// slice it builds citations from.
func (b *SynthesisBuilder) Build() string {
	var prompt strings.Builder

	b.writeTask(&prompt)
	b.writeWorkingMemory(&prompt)
	b.writeEvidence(&prompt)
	b.writeCrossPart(&prompt)
	b.writeGuidelines(&prompt)
	b.writeUserQuery(&prompt)

	return prompt.String()
}

func (b *SynthesisBuilder) writeTask(prompt *strings.Builder) {
	prompt.WriteString("<task>\n")
	prompt.WriteString("You are an answer engine. Write a concise, helpful answer to the user's question using only the evidence sources below.\n")
	if b.vertical != state.VerticalOther {
		prompt.WriteString(fmt.Sprintf("The question is about %s results; summarize the best options and what distinguishes them.\n", b.vertical))
	}
	prompt.WriteString("</task>\n\n")
}

func (b *SynthesisBuilder) writeWorkingMemory(prompt *strings.Builder) {
	if len(b.history) == 0 {
		return
	}

	prompt.WriteString("<conversation>\n")
	prompt.WriteString("Earlier turns, for context only. Never cite the conversation as a source.\n")
	for _, msg := range b.history {
		prompt.WriteString(strings.ToUpper(msg.Role))
		prompt.WriteString(": ")
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n")
	}
	prompt.WriteString("</conversation>\n\n")
}

func (b *SynthesisBuilder) writeEvidence(prompt *strings.Builder) {
	prompt.WriteString("<evidence>\n")
	if len(b.chunks) == 0 && b.overview == nil {
		prompt.WriteString("No sources were retrieved for this question.\n")
	}
	for i, chunk := range b.chunks {
		prompt.WriteString(fmt.Sprintf("[%d] %s", i+1, chunk.Title))
		if chunk.URL != "" {
			prompt.WriteString(" (" + chunk.URL + ")")
		}
		prompt.WriteString("\n")
		prompt.WriteString(chunk.Text)
		prompt.WriteString("\n\n")
	}
	if b.overview != nil && b.overview.Summary != "" {
		prompt.WriteString("Web overview of the topic:\n")
		prompt.WriteString(b.overview.Summary)
		prompt.WriteString("\n")
	}
	prompt.WriteString("</evidence>\n\n")
}

func (b *SynthesisBuilder) writeCrossPart(prompt *strings.Builder) {
	if b.crossPart == nil {
		return
	}

	prompt.WriteString("<inconsistency>\n")
	prompt.WriteString(b.crossPart.Conflict)
	prompt.WriteString(". ")
	prompt.WriteString(b.crossPart.Suggestion)
	prompt.WriteString(".\nPoint this out to the user.\n")
	prompt.WriteString("</inconsistency>\n\n")
}

func (b *SynthesisBuilder) writeGuidelines(prompt *strings.Builder) {
	prompt.WriteString("<guidelines>\n")
	prompt.WriteString("1. Every factual claim must come from the evidence, cited inline as [1], [2], etc.\n")
	prompt.WriteString("2. Never invent prices, ratings, availability, or any detail not present in the evidence\n")
	prompt.WriteString("3. If the evidence does not answer the question, say so plainly instead of guessing\n")
	prompt.WriteString("4. Keep the answer focused; a few short paragraphs or a tight list, not an essay\n")
	prompt.WriteString("5. Use the conversation only to resolve what the user means, never as a source\n")
	prompt.WriteString("</guidelines>\n\n")
}

func (b *SynthesisBuilder) writeUserQuery(prompt *strings.Builder) {
	prompt.WriteString("<user_question>\n")
	prompt.WriteString(b.query)
	prompt.WriteString("\n</user_question>\n\n")
	prompt.WriteString("Now write the grounded answer:")
}
