package state

import "time"

// SessionTurn is one completed query/answer pair.
type SessionTurn struct {
	Query    string    `json:"query"`
	Answer   string    `json:"answer"`
	Vertical Vertical  `json:"vertical,omitempty"`
	At       time.Time `json:"at"`
}

// SessionState is the per-session memory the pipeline reads before a run and
// patches after one. Lifecycle (creation, TTL eviction) belongs to the
// session store, not the core.
type SessionState struct {
	SessionID    string           `json:"session_id"`
	Thread       []SessionTurn    `json:"thread"`
	LastFilters  ExtractedFilters `json:"last_filters,omitempty"`
	LastVertical Vertical         `json:"last_vertical,omitempty"`
	LastStrength Quality          `json:"last_strength,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// HistoryTurns converts the stored thread into pipeline history, capped to
// the most recent n pairs.
func (s *SessionState) HistoryTurns(n int) []Turn {
	if s == nil || len(s.Thread) == 0 {
		return nil
	}
	start := 0
	if n > 0 && len(s.Thread) > n {
		start = len(s.Thread) - n
	}
	turns := make([]Turn, 0, (len(s.Thread)-start)*2)
	for _, st := range s.Thread[start:] {
		turns = append(turns, Turn{Role: "user", Content: st.Query})
		turns = append(turns, Turn{Role: "assistant", Content: st.Answer})
	}
	return turns
}

// SessionPatch is a merge applied to stored session state. Nil/zero fields
// leave the stored value untouched.
type SessionPatch struct {
	AppendTurn *SessionTurn      `json:"append_turn,omitempty"`
	Filters    *ExtractedFilters `json:"filters,omitempty"`
	Vertical   Vertical          `json:"vertical,omitempty"`
	Strength   Quality           `json:"strength,omitempty"`
}

// Apply merges the patch into the state (read-merge-write semantics).
func (s *SessionState) Apply(patch SessionPatch, maxTurns int) {
	if patch.AppendTurn != nil {
		s.Thread = append(s.Thread, *patch.AppendTurn)
		if maxTurns > 0 && len(s.Thread) > maxTurns {
			s.Thread = s.Thread[len(s.Thread)-maxTurns:]
		}
	}
	if patch.Filters != nil {
		merged := *patch.Filters
		merged.MergeFrom(s.LastFilters)
		s.LastFilters = merged
	}
	if patch.Vertical != "" {
		s.LastVertical = patch.Vertical
	}
	if patch.Strength != "" {
		s.LastStrength = patch.Strength
	}
	s.UpdatedAt = time.Now()
}
