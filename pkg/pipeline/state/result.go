package state

import "time"

// CrossPartHint flags a non-fatal conflict between parts of a multi-vertical
// answer (e.g. flight lands at JFK but the hotel is near LGA).
type CrossPartHint struct {
	Conflict   string `json:"conflict"`
	Suggestion string `json:"suggestion,omitempty"`
}

// DebugTrace carries per-run diagnostics. It is returned to the caller under
// the debug key and never influences control flow.
type DebugTrace struct {
	RequestID         string             `json:"request_id,omitempty"`
	Rewrite           *RewriteResult     `json:"rewrite,omitempty"`
	GroundingDecision *GroundingDecision `json:"grounding_decision,omitempty"`
	SubQueries        []string           `json:"sub_queries,omitempty"`
	Candidates        []PlanCandidate    `json:"candidates,omitempty"`
	Routing           *RoutingDecision   `json:"routing,omitempty"`
	SearchQueries     []string           `json:"search_queries,omitempty"`
	StageLatenciesMs  map[string]int64   `json:"stage_latencies_ms,omitempty"`
	CacheHit          bool               `json:"cache_hit,omitempty"`
	PlanCacheHit      bool               `json:"plan_cache_hit,omitempty"`
	DeepState         string             `json:"deep_state,omitempty"`
}

// PipelineResult is the complete outcome of one run. Exactly one Vertical is
// set; exactly one typed list is the primary (matching Vertical), the others
// may be populated as secondary results of a multi-vertical fan-out.
type PipelineResult struct {
	Vertical            Vertical       `json:"vertical"`
	Summary             string         `json:"summary"`
	Citations           []Citation     `json:"citations"`
	RetrievalStats      RetrievalStats `json:"retrieval_stats"`
	Products            []ProductItem  `json:"products,omitempty"`
	Hotels              []HotelItem    `json:"hotels,omitempty"`
	Flights             []FlightItem   `json:"flights,omitempty"`
	Showtimes           []ShowtimeItem `json:"showtimes,omitempty"`
	UIHints             UIHints        `json:"ui_hints"`
	Debug               DebugTrace     `json:"debug,omitempty"`
	SuggestedQuery      string         `json:"suggested_query,omitempty"`
	SuggestedQueryUsed  bool           `json:"suggested_query_used,omitempty"`
	CrossPartHint       *CrossPartHint `json:"cross_part_hint,omitempty"`
	FollowUpSuggestions []string       `json:"follow_up_suggestions,omitempty"`
	GeneratedAt         time.Time      `json:"generated_at"`
}

// AttachItems copies a payload's typed lists into the result.
func (r *PipelineResult) AttachItems(p *RetrievalPayload) {
	if p == nil {
		return
	}
	if len(p.Products) > 0 {
		r.Products = append(r.Products, p.Products...)
	}
	if len(p.Hotels) > 0 {
		r.Hotels = append(r.Hotels, p.Hotels...)
	}
	if len(p.Flights) > 0 {
		r.Flights = append(r.Flights, p.Flights...)
	}
	if len(p.Showtimes) > 0 {
		r.Showtimes = append(r.Showtimes, p.Showtimes...)
	}
}

// PrimaryItemCount counts items in the list matching the result's vertical.
func (r *PipelineResult) PrimaryItemCount() int {
	switch r.Vertical {
	case VerticalProduct:
		return len(r.Products)
	case VerticalHotel:
		return len(r.Hotels)
	case VerticalFlight:
		return len(r.Flights)
	case VerticalMovie:
		return len(r.Showtimes)
	case VerticalOther:
		return 0
	}
	return 0
}
