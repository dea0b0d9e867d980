package normalize

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/pipeline/state"
)

type fakeLLM struct {
	mu      sync.Mutex
	calls   int
	respond func(prompt string) (string, error)
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ ...llm.Option) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.respond(prompt)
}

func (f *fakeLLM) Chat(_ context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	if len(history) == 0 {
		return "", errors.New("empty history")
	}
	return f.Generate(context.Background(), history[len(history)-1].Content)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePlanCache struct {
	entries map[string]*Outcome
}

func newFakePlanCache() *fakePlanCache {
	return &fakePlanCache{entries: make(map[string]*Outcome)}
}

func (c *fakePlanCache) Get(_ context.Context, key string) (*Outcome, bool) {
	o, ok := c.entries[key]
	return o, ok
}

func (c *fakePlanCache) Set(_ context.Context, key string, o *Outcome) {
	c.entries[key] = o
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestNormalizeDegradesOnProviderFailure(t *testing.T) {
	failing := &fakeLLM{respond: func(string) (string, error) {
		return "", errors.New("provider down")
	}}
	n := NewNormalizer(failing, nil, DefaultConfig(), testLogger())

	// History forces the rewrite call instead of the self-contained skip.
	qc := state.QueryContext{
		Message: "what about the second one",
		History: []state.Turn{{Role: "user", Content: "best laptops"}},
	}

	out := n.Normalize(context.Background(), qc)

	if out.Rewrite.RewrittenPrompt != qc.Message {
		t.Errorf("rewrite = %q, want identity fallback %q", out.Rewrite.RewrittenPrompt, qc.Message)
	}
	if !out.Filters.Empty() {
		t.Errorf("filters = %+v, want empty on failure", out.Filters)
	}
	if !out.Grounding.NeedsGrounding {
		t.Error("grounding = false on provider failure, want fail-safe true")
	}
}

func TestNormalizeSkipsRewriteCallWhenSelfContained(t *testing.T) {
	counting := &fakeLLM{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "needs_grounding") {
			return `{"needs_grounding": true, "reason": "live prices"}`, nil
		}
		return "{}", nil
	}}
	n := NewNormalizer(counting, nil, DefaultConfig(), testLogger())

	out := n.Normalize(context.Background(), state.QueryContext{Message: "best laptops under $1000"})

	if out.Rewrite.RewrittenPrompt != "best laptops under $1000" {
		t.Errorf("rewrite = %q, want identity", out.Rewrite.RewrittenPrompt)
	}
	// Filters and grounding each cost one call; the rewrite cost none.
	if got := counting.callCount(); got != 2 {
		t.Errorf("LLM calls = %d, want 2 (filters + grounding only)", got)
	}
}

func TestNormalizePlanCacheHit(t *testing.T) {
	counting := &fakeLLM{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "needs_grounding") {
			return `{"needs_grounding": false, "reason": "conceptual"}`, nil
		}
		return "{}", nil
	}}
	cache := newFakePlanCache()
	n := NewNormalizer(counting, cache, DefaultConfig(), testLogger())

	qc := state.QueryContext{Message: "what is inflation"}

	first := n.Normalize(context.Background(), qc)
	if first.FromCache {
		t.Fatal("first run reported FromCache = true")
	}
	callsAfterFirst := counting.callCount()

	second := n.Normalize(context.Background(), qc)
	if !second.FromCache {
		t.Error("second run FromCache = false, want cache hit")
	}
	if counting.callCount() != callsAfterFirst {
		t.Errorf("cache hit made %d extra LLM calls, want 0", counting.callCount()-callsAfterFirst)
	}
	if second.Grounding.NeedsGrounding != first.Grounding.NeedsGrounding {
		t.Error("cached outcome differs from original")
	}
}

func TestRewriteAlternativesOnlyWhenUnsure(t *testing.T) {
	tests := []struct {
		name       string
		confidence string
		wantAlts   bool
	}{
		{name: "confident rewrite drops alternatives", confidence: "0.9", wantAlts: false},
		{name: "unsure rewrite keeps alternatives", confidence: "0.4", wantAlts: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replying := &fakeLLM{respond: func(prompt string) (string, error) {
				if strings.Contains(prompt, "rewritten_prompt") {
					return `{"rewritten_prompt": "cheaper hotels in boston", "confidence": ` + tt.confidence + `, "alternatives": ["cheaper flights to boston"]}`, nil
				}
				if strings.Contains(prompt, "needs_grounding") {
					return `{"needs_grounding": true, "reason": "availability"}`, nil
				}
				return "{}", nil
			}}
			n := NewNormalizer(replying, nil, DefaultConfig(), testLogger())

			out := n.Normalize(context.Background(), state.QueryContext{
				Message: "any cheaper ones there",
				History: []state.Turn{{Role: "user", Content: "hotels in boston"}},
			})

			if out.Rewrite.RewrittenPrompt != "cheaper hotels in boston" {
				t.Errorf("rewrite = %q", out.Rewrite.RewrittenPrompt)
			}
			gotAlts := len(out.Rewrite.Alternatives) > 0
			if gotAlts != tt.wantAlts {
				t.Errorf("alternatives present = %v, want %v", gotAlts, tt.wantAlts)
			}
		})
	}
}

func TestNormalizeParsesFilters(t *testing.T) {
	replying := &fakeLLM{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Extract structured search parameters") {
			return `{"hotel": {"destination": "boston", "guests": 2}}`, nil
		}
		if strings.Contains(prompt, "needs_grounding") {
			return `{"needs_grounding": true, "reason": "availability"}`, nil
		}
		return "{}", nil
	}}
	n := NewNormalizer(replying, nil, DefaultConfig(), testLogger())

	out := n.Normalize(context.Background(), state.QueryContext{Message: "hotels in boston for 2"})

	if out.Filters.Hotel == nil {
		t.Fatal("hotel filters missing")
	}
	if out.Filters.Hotel.Destination != "boston" || out.Filters.Hotel.Guests != 2 {
		t.Errorf("hotel filters = %+v", out.Filters.Hotel)
	}
	if out.Filters.Has(state.VerticalFlight) {
		t.Error("flight filters present, want absent")
	}
}

func TestLooksAnaphoric(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"any cheaper ones over there", true},
		{"book it for friday", true},
		{"best laptops under $1000", false},
		{"hotels in boston", false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := looksAnaphoric(tt.message); got != tt.want {
				t.Errorf("looksAnaphoric(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestPlanKey(t *testing.T) {
	base := state.QueryContext{Message: "hotels in boston", Mode: state.ModeQuick}

	if PlanKey(base) != PlanKey(base) {
		t.Error("identical contexts produced different keys")
	}

	deep := base
	deep.Mode = state.ModeDeep
	if PlanKey(base) != PlanKey(deep) {
		t.Error("mode changed the plan key; normalization is mode-independent")
	}

	variant := base
	variant.RewriteVariant = "b"
	if PlanKey(base) == PlanKey(variant) {
		t.Error("rewrite variant did not change the plan key")
	}

	withHistory := base
	withHistory.History = []state.Turn{{Role: "user", Content: "earlier question"}}
	if PlanKey(base) == PlanKey(withHistory) {
		t.Error("history did not change the plan key")
	}
}
