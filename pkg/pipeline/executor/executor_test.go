package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/pipeline/route"
	"ai-answer-engine-be/pkg/pipeline/state"
)

// orchestratorLLM answers every prompt the pipeline stages issue, dispatching
// on distinctive prompt fragments. It stands in for both model tiers.
type orchestratorLLM struct {
	mu            sync.Mutex
	prompts       []string
	grounding     bool
	critique      string
	answer        string
	chatErr       error
	critiqueCalls int
}

func (f *orchestratorLLM) Generate(_ context.Context, prompt string, _ ...llm.Option) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	switch {
	case strings.Contains(prompt, "rewritten_prompt"):
		msg := section(prompt, "<message>\n", "\n</message>")
		return fmt.Sprintf(`{"rewritten_prompt": %q, "confidence": 0.95, "alternatives": []}`, msg), nil
	case strings.Contains(prompt, "Extract structured search parameters"):
		return "{}", nil
	case strings.Contains(prompt, "needs_grounding"):
		return fmt.Sprintf(`{"needs_grounding": %t, "reason": "scripted"}`, f.grounding), nil
	case strings.Contains(prompt, "independent atomic search queries"):
		req := section(prompt, "<request>\n", "\n</request>")
		return fmt.Sprintf(`[%q]`, req), nil
	case strings.Contains(prompt, "needs_replan"):
		f.mu.Lock()
		f.critiqueCalls++
		f.mu.Unlock()
		return f.critique, nil
	}
	return f.answer, nil
}

func (f *orchestratorLLM) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	if f.chatErr != nil {
		return "", f.chatErr
	}
	if len(history) == 0 {
		return "", errors.New("empty history")
	}
	return f.Generate(ctx, history[len(history)-1].Content, opts...)
}

func section(s, opening, closing string) string {
	start := strings.Index(s, opening)
	if start < 0 {
		return ""
	}
	start += len(opening)
	end := strings.Index(s[start:], closing)
	if end < 0 {
		return ""
	}
	return s[start : start+end]
}

type countingRetriever struct {
	mu      sync.Mutex
	calls   int
	filters []state.ExtractedFilters
	payload *state.RetrievalPayload
}

func (r *countingRetriever) Search(_ context.Context, _ string, filters state.ExtractedFilters) (*state.RetrievalPayload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.filters = append(r.filters, filters)
	return r.payload, nil
}

func (r *countingRetriever) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeOverviewProvider struct {
	calls    int
	overview *state.WebOverview
	err      error
}

func (f *fakeOverviewProvider) Overview(_ context.Context, _ string) (*state.WebOverview, error) {
	f.calls++
	return f.overview, f.err
}

type fakeResultCache struct {
	mu      sync.Mutex
	entries map[string]*state.PipelineResult
	gets    int
	sets    int
}

func newFakeResultCache() *fakeResultCache {
	return &fakeResultCache{entries: map[string]*state.PipelineResult{}}
}

func (c *fakeResultCache) Get(_ context.Context, key string) (*state.PipelineResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	r, ok := c.entries[key]
	return r, ok
}

func (c *fakeResultCache) Set(_ context.Context, key string, result *state.PipelineResult, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = result
}

type fakeSessionStore struct {
	mu      sync.Mutex
	state   *state.SessionState
	patches []state.SessionPatch
}

func (s *fakeSessionStore) Get(_ context.Context, id string) (*state.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != nil {
		return s.state, nil
	}
	return &state.SessionState{SessionID: id}, nil
}

func (s *fakeSessionStore) Update(_ context.Context, _ string, patch state.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, patch)
	return nil
}

type fakeEventSink struct {
	mu        sync.Mutex
	stages    []string
	completed int
}

func (f *fakeEventSink) StageCompleted(_ context.Context, _ string, stage string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage)
}

func (f *fakeEventSink) PipelineCompleted(_ context.Context, _ string, _ state.QueryContext, _ *state.PipelineResult, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed++
}

func (f *fakeEventSink) sawStage(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.stages {
		if s == name {
			return true
		}
	}
	return false
}

func hotelResults(n int) *state.RetrievalPayload {
	p := &state.RetrievalPayload{MaxItemsHint: 20}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Hotel %d", i+1)
		p.Hotels = append(p.Hotels, state.HotelItem{Name: name, Address: fmt.Sprintf("%d Main St", i+1)})
		p.Chunks = append(p.Chunks, state.RetrievedChunk{
			ID:       fmt.Sprintf("h%d", i+1),
			Title:    name,
			URL:      fmt.Sprintf("https://hotels.example/%d", i+1),
			Text:     name + " in central Boston",
			Vertical: state.VerticalHotel,
			Score:    0.8,
		})
	}
	return p
}

type testPipeline struct {
	exec      *Executor
	llm       *orchestratorLLM
	hotel     *countingRetriever
	overview  *fakeOverviewProvider
	cache     *fakeResultCache
	sessions  *fakeSessionStore
	events    *fakeEventSink
}

func newTestPipeline() *testPipeline {
	provider := &orchestratorLLM{
		grounding: true,
		answer:    "Boston has solid options [1][2].",
		critique:  `{"needs_replan": false, "confidence": 0.9}`,
	}
	tp := &testPipeline{
		llm:      provider,
		hotel:    &countingRetriever{payload: hotelResults(5)},
		overview: &fakeOverviewProvider{},
		cache:    newFakeResultCache(),
		sessions: &fakeSessionStore{},
		events:   &fakeEventSink{},
	}
	deps := Deps{
		MainLLM:  provider,
		SmallLLM: provider,
		Retrievers: map[state.Vertical]route.Retriever{
			state.VerticalHotel: tp.hotel,
		},
		WebOverview: tp.overview,
		Cache:       tp.cache,
		Sessions:    tp.sessions,
		Events:      tp.events,
	}
	cfg := DefaultConfig()
	cfg.Router.Retry = route.RetryPolicy{}
	tp.exec = New(deps, cfg, log.New(io.Discard, "", 0))
	return tp
}

func TestRunGroundedQuickFlow(t *testing.T) {
	tp := newTestPipeline()

	result, err := tp.exec.Run(context.Background(), state.QueryContext{
		Message: "hotels in boston",
		Mode:    state.ModeQuick,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.Vertical != state.VerticalHotel {
		t.Errorf("vertical = %s, want hotel", result.Vertical)
	}
	if result.Summary != "Boston has solid options [1][2]." {
		t.Errorf("summary = %q", result.Summary)
	}
	if len(result.Hotels) != 5 {
		t.Errorf("hotels attached = %d, want 5", len(result.Hotels))
	}
	if len(result.Citations) != 5 {
		t.Errorf("citations = %d, want one per evidence chunk", len(result.Citations))
	}
	if result.UIHints.Layout != "hotel_list" {
		t.Errorf("layout = %q, want hotel_list", result.UIHints.Layout)
	}
	if result.RetrievalStats.Quality != state.QualityGood {
		t.Errorf("quality = %s, want good", result.RetrievalStats.Quality)
	}
	if tp.hotel.callCount() != 1 {
		t.Errorf("retriever calls = %d, want 1", tp.hotel.callCount())
	}
	if tp.overview.calls != 0 {
		t.Errorf("overview calls = %d, want 0 for healthy retrieval", tp.overview.calls)
	}
	if result.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}

	if len(result.Debug.SubQueries) != 1 {
		t.Errorf("debug sub-queries = %v", result.Debug.SubQueries)
	}
	if result.Debug.Routing == nil || result.Debug.Routing.Primary != state.VerticalHotel {
		t.Error("debug routing decision missing or wrong")
	}
	for _, stage := range []string{"normalize", "decompose", "route", "aggregate", "synthesize"} {
		if !tp.events.sawStage(stage) {
			t.Errorf("stage event %q not emitted", stage)
		}
		if _, ok := result.Debug.StageLatenciesMs[stage]; !ok {
			t.Errorf("stage latency %q not recorded", stage)
		}
	}
	if tp.events.completed != 1 {
		t.Errorf("pipeline completed events = %d, want 1", tp.events.completed)
	}
}

func TestRunUngroundedSkipsRetrieval(t *testing.T) {
	tp := newTestPipeline()
	tp.llm.grounding = false
	tp.llm.answer = "A hash map trades memory for constant-time lookup."

	result, err := tp.exec.Run(context.Background(), state.QueryContext{
		Message: "why are hash maps fast",
		Mode:    state.ModeQuick,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if tp.hotel.callCount() != 0 {
		t.Errorf("retriever calls = %d, want 0 when grounding is not needed", tp.hotel.callCount())
	}
	if result.Vertical != state.VerticalOther {
		t.Errorf("vertical = %s, want other", result.Vertical)
	}
	if result.Citations == nil || len(result.Citations) != 0 {
		t.Errorf("citations = %v, want present but empty", result.Citations)
	}
	if result.Summary != "A hash map trades memory for constant-time lookup." {
		t.Errorf("summary = %q", result.Summary)
	}
	if len(result.Debug.SubQueries) != 0 {
		t.Error("decomposition ran despite the direct-answer path")
	}
}

func TestRunQuickModeCachesSecondRun(t *testing.T) {
	tp := newTestPipeline()
	qc := state.QueryContext{Message: "hotels in boston", Mode: state.ModeQuick}

	first, err := tp.exec.Run(context.Background(), qc)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Debug.CacheHit {
		t.Error("first run reported a cache hit")
	}
	if tp.cache.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", tp.cache.sets)
	}

	second, err := tp.exec.Run(context.Background(), qc)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.Debug.CacheHit {
		t.Error("second run did not hit the cache")
	}
	if tp.hotel.callCount() != 1 {
		t.Errorf("retriever calls = %d, want 1 (second run served from cache)", tp.hotel.callCount())
	}
	if second.Summary != first.Summary {
		t.Error("cached summary differs")
	}
	if !second.GeneratedAt.After(first.GeneratedAt) && !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Error("cached result did not refresh GeneratedAt")
	}
}

func TestRunDeepModeBoundedToOneExtraPass(t *testing.T) {
	tp := newTestPipeline()
	// The critique always demands a replan; the controller must still stop
	// after one extra hop.
	tp.llm.critique = `{"needs_replan": true, "suggested_query": "pet friendly hotels in boston", "confidence": 0.9, "reason": "missing constraint"}`

	result, err := tp.exec.Run(context.Background(), state.QueryContext{
		Message: "hotels in boston",
		Mode:    state.ModeDeep,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if tp.hotel.callCount() != 2 {
		t.Errorf("retriever calls = %d, want 2 (first pass + one replan)", tp.hotel.callCount())
	}
	if tp.llm.critiqueCalls != 1 {
		t.Errorf("critique calls = %d, want 1 (replanned pass is never re-critiqued)", tp.llm.critiqueCalls)
	}
	if !result.SuggestedQueryUsed {
		t.Error("SuggestedQueryUsed = false, want true")
	}
	if result.SuggestedQuery != "pet friendly hotels in boston" {
		t.Errorf("SuggestedQuery = %q", result.SuggestedQuery)
	}
	if result.Debug.DeepState != "first_pass_done>critiqued>replanned>done" {
		t.Errorf("deep state = %q", result.Debug.DeepState)
	}
	if tp.cache.gets != 0 || tp.cache.sets != 0 {
		t.Error("deep mode touched the quick-result cache")
	}
	if !tp.events.sawStage("deep") {
		t.Error("deep stage event not emitted")
	}
}

func TestRunZeroResultsFallsBackToWebOverview(t *testing.T) {
	tp := newTestPipeline()
	tp.hotel.payload = &state.RetrievalPayload{MaxItemsHint: 20}
	tp.overview.overview = &state.WebOverview{
		Summary: "Boston lodging overview",
		Citations: []state.Citation{
			{Title: "City guide", URL: "https://guide"},
			{Title: "Travel blog", URL: "https://blog"},
		},
	}

	result, err := tp.exec.Run(context.Background(), state.QueryContext{
		Message: "hotels in boston",
		Mode:    state.ModeQuick,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if tp.overview.calls != 1 {
		t.Fatalf("overview calls = %d, want 1", tp.overview.calls)
	}
	if result.Vertical != state.VerticalOther {
		t.Errorf("vertical = %s, want other after fallback", result.Vertical)
	}
	if result.RetrievalStats.Quality != state.QualityFallbackOther {
		t.Errorf("quality = %s, want fallback_other", result.RetrievalStats.Quality)
	}
	if len(result.Citations) != 2 {
		t.Errorf("citations = %d, want the 2 overview sources", len(result.Citations))
	}
	if result.UIHints.Layout != "text" {
		t.Errorf("layout = %q, want text", result.UIHints.Layout)
	}
}

func TestRunSessionMemoryFlows(t *testing.T) {
	tp := newTestPipeline()
	tp.sessions.state = &state.SessionState{
		SessionID:   "s1",
		LastFilters: state.ExtractedFilters{Hotel: &state.HotelFilters{Destination: "boston"}},
	}

	result, err := tp.exec.Run(context.Background(), state.QueryContext{
		Message:   "hotels in boston",
		Mode:      state.ModeQuick,
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Stored filters reach the retriever.
	if len(tp.hotel.filters) != 1 {
		t.Fatalf("retriever invocations = %d, want 1", len(tp.hotel.filters))
	}
	got := tp.hotel.filters[0]
	if got.Hotel == nil || got.Hotel.Destination != "boston" {
		t.Errorf("retriever filters = %+v, want the session's hotel destination", got.Hotel)
	}

	// The completed turn is written back.
	if len(tp.sessions.patches) != 1 {
		t.Fatalf("session patches = %d, want 1", len(tp.sessions.patches))
	}
	patch := tp.sessions.patches[0]
	if patch.AppendTurn == nil || patch.AppendTurn.Query != "hotels in boston" {
		t.Errorf("patched turn = %+v", patch.AppendTurn)
	}
	if patch.AppendTurn.Answer != result.Summary {
		t.Error("patched answer differs from the returned summary")
	}
	if patch.Vertical != state.VerticalHotel || patch.Strength != state.QualityGood {
		t.Errorf("patch vertical/strength = %s/%s", patch.Vertical, patch.Strength)
	}
	if patch.Filters == nil {
		t.Error("patch filters missing")
	}
}

func TestRunWithoutSessionSkipsStore(t *testing.T) {
	tp := newTestPipeline()

	if _, err := tp.exec.Run(context.Background(), state.QueryContext{
		Message: "hotels in boston",
		Mode:    state.ModeQuick,
	}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(tp.sessions.patches) != 0 {
		t.Errorf("session patches = %d, want 0 without a session id", len(tp.sessions.patches))
	}
}

func TestRunCancelledContext(t *testing.T) {
	tp := newTestPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tp.exec.Run(ctx, state.QueryContext{
		Message: "hotels in boston",
		Mode:    state.ModeQuick,
	})
	if err == nil {
		t.Fatal("Run succeeded with a cancelled context")
	}
	if tp.cache.sets != 0 {
		t.Error("cancelled run cached a result")
	}
}
