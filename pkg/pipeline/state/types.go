package state

// Mode selects the pipeline effort level.
type Mode string

const (
	ModeQuick Mode = "quick"
	ModeDeep  Mode = "deep"
)

// Vertical is one domain of retrievable content, or the catch-all Other
// (general web evidence).
type Vertical string

const (
	VerticalProduct Vertical = "product"
	VerticalHotel   Vertical = "hotel"
	VerticalFlight  Vertical = "flight"
	VerticalMovie   Vertical = "movie"
	VerticalOther   Vertical = "other"
)

// AllVerticals returns every routable vertical, structured ones first.
func AllVerticals() []Vertical {
	return []Vertical{VerticalProduct, VerticalHotel, VerticalFlight, VerticalMovie, VerticalOther}
}

func (v Vertical) Valid() bool {
	switch v {
	case VerticalProduct, VerticalHotel, VerticalFlight, VerticalMovie, VerticalOther:
		return true
	}
	return false
}

// Intent classifies what the user wants to do with the results.
type Intent string

const (
	IntentBrowse  Intent = "browse"
	IntentCompare Intent = "compare"
	IntentBuy     Intent = "buy"
	IntentBook    Intent = "book"
)

// Transactional reports whether the intent implies committing to a single
// vertical (buying a product, booking a hotel or flight).
func (i Intent) Transactional() bool {
	return i == IntentBuy || i == IntentBook
}

// Turn is one prior exchange in the conversation history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// QueryContext is the immutable input of one pipeline run.
type QueryContext struct {
	Message        string `json:"message"`
	History        []Turn `json:"history"`
	Mode           Mode   `json:"mode"`
	SessionID      string `json:"session_id,omitempty"`
	RewriteVariant string `json:"rewrite_variant,omitempty"` // selects A/B rewrite behavior
}

// RewriteResult is the disambiguated form of the user message.
type RewriteResult struct {
	RewrittenPrompt string   `json:"rewritten_prompt"`
	Confidence      float64  `json:"confidence"`
	Alternatives    []string `json:"alternatives,omitempty"` // populated only when confidence is low
}

// GroundingDecision records whether external evidence is needed at all.
type GroundingDecision struct {
	NeedsGrounding bool   `json:"needs_grounding"`
	Reason         string `json:"reason"`
}

// PlanCandidate scores one vertical for one sub-query. Per-vertical handling
// downstream selects behavior with an exhaustive switch on Vertical.
type PlanCandidate struct {
	Vertical   Vertical         `json:"vertical"`
	Intent     Intent           `json:"intent,omitempty"`
	Score      float64          `json:"score"`
	Confidence float64          `json:"confidence,omitempty"`
	Filters    ExtractedFilters `json:"filters,omitempty"`
}

// RoutingDecision summarizes which verticals were chosen and why.
type RoutingDecision struct {
	Primary             Vertical   `json:"primary"`
	Confidence          float64    `json:"confidence"`
	SourcesUsed         []Vertical `json:"sources_used"`
	IntentBasedNarrowed bool       `json:"intent_based_narrowed"`
}

// RetrievedChunk is one piece of evidence from a provider.
type RetrievedChunk struct {
	ID       string   `json:"id"`
	URL      string   `json:"url,omitempty"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
	Vertical Vertical `json:"vertical"`
	Score    float64  `json:"score"`
}

// Quality classifies how well structured retrieval served the query.
type Quality string

const (
	QualityGood          Quality = "good"
	QualityWeak          Quality = "weak"
	QualityFallbackOther Quality = "fallback_other"
)

// RetrievalStats describes the retrieval outcome for the chosen vertical.
type RetrievalStats struct {
	Vertical  Vertical `json:"vertical"`
	ItemCount int      `json:"item_count"`
	MaxItems  int      `json:"max_items,omitempty"` // hint; 0 means absent
	Quality   Quality  `json:"quality"`
	AvgScore  float64  `json:"avg_score"`
	TopKAvg   float64  `json:"top_k_avg,omitempty"` // average of top-3 scores
}

// EffectiveScore prefers TopKAvg so a few highly relevant items are not
// diluted by low scorers.
func (s RetrievalStats) EffectiveScore() float64 {
	if s.TopKAvg > 0 {
		return s.TopKAvg
	}
	return s.AvgScore
}

// Citation is one numbered evidence reference in the answer.
type Citation struct {
	ID        int    `json:"id"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet,omitempty"`
	Freshness string `json:"freshness,omitempty"`
}

// WebOverview is the result of the general web evidence path.
type WebOverview struct {
	Summary   string     `json:"summary"`
	Citations []Citation `json:"citations"`
}
