package executor

import (
	"testing"

	"ai-answer-engine-be/pkg/pipeline/state"
)

func TestCacheKey(t *testing.T) {
	base := state.QueryContext{
		Message: "hotels in boston",
		Mode:    state.ModeQuick,
		History: []state.Turn{
			{Role: "user", Content: "planning a trip"},
			{Role: "assistant", Content: "where to?"},
		},
	}

	if CacheKey(base) != CacheKey(base) {
		t.Error("same context produced different keys")
	}

	variants := map[string]state.QueryContext{
		"different message": func() state.QueryContext { qc := base; qc.Message = "hotels in denver"; return qc }(),
		"different mode":    func() state.QueryContext { qc := base; qc.Mode = state.ModeDeep; return qc }(),
		"extra history turn": func() state.QueryContext {
			qc := base
			qc.History = append(append([]state.Turn{}, base.History...), state.Turn{Role: "user", Content: "boston"})
			return qc
		}(),
		"edited history turn": func() state.QueryContext {
			qc := base
			qc.History = []state.Turn{
				{Role: "user", Content: "planning a trip"},
				{Role: "assistant", Content: "which city?"},
			}
			return qc
		}(),
	}

	seen := CacheKey(base)
	for name, qc := range variants {
		if CacheKey(qc) == seen {
			t.Errorf("%s collided with the base key", name)
		}
	}

	// Role and content are separated, so shifting a boundary changes the key.
	a := state.QueryContext{History: []state.Turn{{Role: "user", Content: "x"}}}
	b := state.QueryContext{History: []state.Turn{{Role: "userx", Content: ""}}}
	if CacheKey(a) == CacheKey(b) {
		t.Error("role/content boundary not encoded")
	}

	// Session identity is deliberately not part of the key: identical
	// conversations share cached results.
	withSession := base
	withSession.SessionID = "s1"
	if CacheKey(withSession) != CacheKey(base) {
		t.Error("session id leaked into the cache key")
	}
}
