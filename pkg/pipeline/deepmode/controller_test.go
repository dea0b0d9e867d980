package deepmode

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/pipeline/aggregate"
	"ai-answer-engine-be/pkg/pipeline/route"
	"ai-answer-engine-be/pkg/pipeline/state"
)

type scriptedLLM struct {
	calls    int
	response string
	err      error
}

func (s *scriptedLLM) Generate(_ context.Context, _ string, _ ...llm.Option) (string, error) {
	s.calls++
	return s.response, s.err
}

func (s *scriptedLLM) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	if len(history) == 0 {
		return "", errors.New("empty history")
	}
	return s.Generate(ctx, history[len(history)-1].Content, opts...)
}

type stubOverview struct {
	calls    int
	overview *state.WebOverview
	err      error
}

func (s *stubOverview) Overview(_ context.Context, _ string) (*state.WebOverview, error) {
	s.calls++
	return s.overview, s.err
}

type stubRetriever struct {
	calls   int
	queries []string
	payload *state.RetrievalPayload
	err     error
}

func (s *stubRetriever) Search(_ context.Context, query string, _ state.ExtractedFilters) (*state.RetrievalPayload, error) {
	s.calls++
	s.queries = append(s.queries, query)
	return s.payload, s.err
}

const (
	acceptCritique = `{"needs_replan": false, "suggested_query": "", "confidence": 0.9, "reason": "answer is complete", "refined_summary": ""}`
	replanCritique = `{"needs_replan": true, "suggested_query": "pet friendly hotels in boston back bay", "confidence": 0.85, "reason": "missing the neighborhood", "refined_summary": ""}`
)

func testController(small llm.LLMProvider, overview aggregate.OverviewProvider, retrievers map[state.Vertical]route.Retriever) *Controller {
	return NewController(small, overview, retrievers, DefaultConfig(), log.New(io.Discard, "", 0))
}

func firstPassFixture(vertical state.Vertical) FirstPass {
	return FirstPass{
		QC: state.QueryContext{Message: "hotels in boston", Mode: state.ModeDeep},
		Result: &state.PipelineResult{
			Vertical:       vertical,
			Summary:        "first pass answer",
			Citations:      []state.Citation{{ID: 1, Title: "Known Source", URL: "https://known"}},
			RetrievalStats: state.RetrievalStats{Vertical: vertical, ItemCount: 3, Quality: state.QualityGood},
		},
	}
}

func noRerun(t *testing.T) RerunFunc {
	return func(context.Context, state.QueryContext) (*state.PipelineResult, error) {
		t.Error("rerun invoked, want none")
		return nil, errors.New("unexpected")
	}
}

func TestRunAcceptsCleanFirstPass(t *testing.T) {
	small := &scriptedLLM{response: acceptCritique}
	c := testController(small, nil, nil)

	first := firstPassFixture(state.VerticalHotel)
	result := c.Run(context.Background(), first, noRerun(t))

	if result.Summary != "first pass answer" {
		t.Errorf("summary = %q, want the first pass kept", result.Summary)
	}
	if result.Debug.DeepState != "first_pass_done>critiqued>accepted>done" {
		t.Errorf("deep state = %q", result.Debug.DeepState)
	}
	if small.calls != 1 {
		t.Errorf("critique calls = %d, want 1", small.calls)
	}
}

func TestRunReplansExactlyOnce(t *testing.T) {
	small := &scriptedLLM{response: replanCritique}
	c := testController(small, nil, nil)

	first := firstPassFixture(state.VerticalHotel)
	rerunCalls := 0
	var rerunQC state.QueryContext
	rerun := func(_ context.Context, qc state.QueryContext) (*state.PipelineResult, error) {
		rerunCalls++
		rerunQC = qc
		return &state.PipelineResult{
			Vertical: state.VerticalHotel,
			Summary:  "replanned answer",
		}, nil
	}

	result := c.Run(context.Background(), first, rerun)

	// Even a critique that always demands a replan gets exactly one hop.
	if rerunCalls != 1 {
		t.Fatalf("rerun calls = %d, want exactly 1", rerunCalls)
	}
	if rerunQC.Message != "pet friendly hotels in boston back bay" {
		t.Errorf("rerun message = %q, want the suggested query", rerunQC.Message)
	}
	if n := len(rerunQC.History); n != 1 || rerunQC.History[0].Content != "hotels in boston" {
		t.Errorf("rerun history = %+v, want the original message demoted to a prior turn", rerunQC.History)
	}
	if rerunQC.History[0].Role != llm.RoleUser {
		t.Errorf("demoted turn role = %q, want user", rerunQC.History[0].Role)
	}

	if result.Summary != "replanned answer" {
		t.Errorf("summary = %q, want the replanned answer", result.Summary)
	}
	if !result.SuggestedQueryUsed {
		t.Error("SuggestedQueryUsed = false, want true")
	}
	if result.SuggestedQuery != "pet friendly hotels in boston back bay" {
		t.Errorf("SuggestedQuery = %q", result.SuggestedQuery)
	}
	if !strings.Contains(result.Debug.DeepState, "replanned") {
		t.Errorf("deep state = %q, want a replanned phase", result.Debug.DeepState)
	}
}

func TestRunIgnoresReplanBelowConfidence(t *testing.T) {
	small := &scriptedLLM{response: `{"needs_replan": true, "suggested_query": "something else", "confidence": 0.4, "reason": "maybe"}`}
	c := testController(small, nil, nil)

	first := firstPassFixture(state.VerticalHotel)
	result := c.Run(context.Background(), first, noRerun(t))

	if result.Summary != "first pass answer" {
		t.Errorf("summary = %q, want first pass kept", result.Summary)
	}
	// The suggestion is still surfaced to the user.
	if result.SuggestedQuery != "something else" {
		t.Errorf("SuggestedQuery = %q, want the low confidence suggestion carried", result.SuggestedQuery)
	}
	if result.SuggestedQueryUsed {
		t.Error("SuggestedQueryUsed = true, want false")
	}
}

func TestRunIgnoresReplanWithoutQuery(t *testing.T) {
	small := &scriptedLLM{response: `{"needs_replan": true, "suggested_query": "", "confidence": 0.95}`}
	c := testController(small, nil, nil)

	result := c.Run(context.Background(), firstPassFixture(state.VerticalHotel), noRerun(t))
	if !strings.Contains(result.Debug.DeepState, "accepted") {
		t.Errorf("deep state = %q, want accepted", result.Debug.DeepState)
	}
}

func TestRunCritiqueFailureAcceptsFirstPass(t *testing.T) {
	small := &scriptedLLM{err: errors.New("model down")}
	overview := &stubOverview{overview: &state.WebOverview{Summary: "unused"}}
	c := testController(small, overview, nil)

	first := firstPassFixture(state.VerticalOther)
	result := c.Run(context.Background(), first, noRerun(t))

	if result.Summary != "first pass answer" {
		t.Errorf("summary = %q, want first pass kept", result.Summary)
	}
	if result.Debug.DeepState != "first_pass_done>accepted>done" {
		t.Errorf("deep state = %q", result.Debug.DeepState)
	}
	// Enrichment is skipped on the failure path.
	if overview.calls != 0 {
		t.Errorf("overview calls = %d, want 0", overview.calls)
	}
}

func TestRunCritiqueGarbageAcceptsFirstPass(t *testing.T) {
	small := &scriptedLLM{response: "no json here at all"}
	c := testController(small, nil, nil)

	result := c.Run(context.Background(), firstPassFixture(state.VerticalHotel), noRerun(t))
	if result.Debug.DeepState != "first_pass_done>accepted>done" {
		t.Errorf("deep state = %q", result.Debug.DeepState)
	}
}

func TestRunAppliesRefinedSummary(t *testing.T) {
	small := &scriptedLLM{response: `{"needs_replan": false, "confidence": 0.9, "refined_summary": "a tighter answer"}`}
	c := testController(small, nil, nil)

	result := c.Run(context.Background(), firstPassFixture(state.VerticalHotel), noRerun(t))
	if result.Summary != "a tighter answer" {
		t.Errorf("summary = %q, want the refined summary applied", result.Summary)
	}
}

func TestRunReplanFailureKeepsFirstPass(t *testing.T) {
	small := &scriptedLLM{response: replanCritique}
	c := testController(small, nil, nil)

	first := firstPassFixture(state.VerticalHotel)
	rerun := func(context.Context, state.QueryContext) (*state.PipelineResult, error) {
		return nil, errors.New("rerun blew up")
	}

	result := c.Run(context.Background(), first, rerun)

	if result.Summary != "first pass answer" {
		t.Errorf("summary = %q, want first pass kept after failed replan", result.Summary)
	}
	if result.SuggestedQueryUsed {
		t.Error("SuggestedQueryUsed = true after a failed replan")
	}
	if result.SuggestedQuery == "" {
		t.Error("SuggestedQuery empty, want the suggestion surfaced anyway")
	}
}

func TestRunSupplementsOverviewForGeneralAnswers(t *testing.T) {
	small := &scriptedLLM{response: acceptCritique}
	overview := &stubOverview{overview: &state.WebOverview{
		Summary: "broader background",
		Citations: []state.Citation{
			{Title: "Context A", URL: "https://ctx-a"},
			{Title: "Context B", URL: "https://ctx-b"},
		},
	}}
	c := testController(small, overview, nil)

	first := firstPassFixture(state.VerticalOther)
	result := c.Run(context.Background(), first, noRerun(t))

	if overview.calls != 1 {
		t.Fatalf("overview calls = %d, want 1", overview.calls)
	}
	if !strings.Contains(result.Summary, "Broader context: broader background") {
		t.Errorf("summary = %q, want the overview appended", result.Summary)
	}
	if len(result.Citations) != 3 {
		t.Fatalf("citations = %d, want original 1 + 2 from the overview", len(result.Citations))
	}
	if result.Citations[1].ID != 2 || result.Citations[2].ID != 3 {
		t.Error("appended citations not renumbered sequentially")
	}
}

func TestRunOverviewFailureLeavesAnswerAlone(t *testing.T) {
	small := &scriptedLLM{response: acceptCritique}
	overview := &stubOverview{err: errors.New("serp down")}
	c := testController(small, overview, nil)

	first := firstPassFixture(state.VerticalOther)
	result := c.Run(context.Background(), first, noRerun(t))

	if result.Summary != "first pass answer" {
		t.Errorf("summary = %q, want unchanged", result.Summary)
	}
	if len(result.Citations) != 1 {
		t.Errorf("citations = %d, want unchanged", len(result.Citations))
	}
}

func TestAdditionalAnglesSkipEchoAndRespectCap(t *testing.T) {
	small := &scriptedLLM{response: acceptCritique}
	retriever := &stubRetriever{payload: &state.RetrievalPayload{}}
	c := testController(small, nil, map[state.Vertical]route.Retriever{
		state.VerticalHotel: retriever,
	})

	first := firstPassFixture(state.VerticalHotel)
	// First alternative echoes the message; with the two-angle cap the third
	// never runs, so only the second alternative is searched.
	first.Rewrite = state.RewriteResult{
		Confidence:   0.4,
		Alternatives: []string{"Hotels In Boston", "boston hotels near fenway", "cheap boston hotels"},
	}

	c.Run(context.Background(), first, noRerun(t))

	if retriever.calls != 1 {
		t.Fatalf("retriever calls = %d, want 1", retriever.calls)
	}
	if retriever.queries[0] != "boston hotels near fenway" {
		t.Errorf("angle query = %q", retriever.queries[0])
	}
}

func TestAdditionalAnglesAppendOnlyFreshEvidence(t *testing.T) {
	small := &scriptedLLM{response: acceptCritique}
	retriever := &stubRetriever{payload: &state.RetrievalPayload{
		Chunks: []state.RetrievedChunk{
			{Title: "Known Source", URL: "https://known", Text: "already cited"},
			{Title: "Fresh A", URL: "https://fresh-a", Text: "new fact a"},
			{Title: "Fresh B", URL: "https://fresh-b", Text: "new fact b"},
			{Title: "Fresh C", URL: "https://fresh-c", Text: "new fact c"},
		},
	}}
	c := testController(small, nil, map[state.Vertical]route.Retriever{
		state.VerticalHotel: retriever,
	})

	first := firstPassFixture(state.VerticalHotel)
	first.Rewrite = state.RewriteResult{
		Confidence:   0.4,
		Alternatives: []string{"boston hotels near fenway"},
	}

	result := c.Run(context.Background(), first, noRerun(t))

	// Already-cited evidence is filtered, and each angle contributes at most
	// two new citations.
	if len(result.Citations) != 3 {
		t.Fatalf("citations = %d, want original 1 + 2 fresh", len(result.Citations))
	}
	if result.Citations[1].Title != "Fresh A" || result.Citations[2].Title != "Fresh B" {
		t.Errorf("fresh citations = %q, %q", result.Citations[1].Title, result.Citations[2].Title)
	}
	if result.Citations[1].ID != 2 || result.Citations[2].ID != 3 {
		t.Error("fresh citations not renumbered sequentially")
	}
	if !strings.Contains(result.Summary, "Additional angle (boston hotels near fenway)") {
		t.Errorf("summary = %q, want the angle digest", result.Summary)
	}
	if !strings.Contains(result.Summary, "Fresh A [2]; Fresh B [3]") {
		t.Errorf("summary = %q, want titles with citation markers", result.Summary)
	}
}

func TestAdditionalAnglesFailureIsSilent(t *testing.T) {
	small := &scriptedLLM{response: acceptCritique}
	retriever := &stubRetriever{err: errors.New("retriever down")}
	c := testController(small, nil, map[state.Vertical]route.Retriever{
		state.VerticalHotel: retriever,
	})

	first := firstPassFixture(state.VerticalHotel)
	first.Rewrite = state.RewriteResult{Confidence: 0.4, Alternatives: []string{"boston hotels near fenway"}}

	result := c.Run(context.Background(), first, noRerun(t))
	if result.Summary != "first pass answer" {
		t.Errorf("summary = %q, want unchanged", result.Summary)
	}
	if len(result.Citations) != 1 {
		t.Errorf("citations = %d, want unchanged", len(result.Citations))
	}
}
