package route

import (
	"context"
	"log"
	"math"
	"strings"
	"sync"

	"ai-answer-engine-be/pkg/embedding"
	"ai-answer-engine-be/pkg/pipeline/state"
)

// Per-vertical keyword lexicons. Scores are normalized hit counts, so a few
// strong markers are enough; exhaustiveness is not the goal.
var verticalLexicon = map[state.Vertical][]string{
	state.VerticalProduct: {
		"buy", "price", "cheap", "cheapest", "best", "deal", "discount", "shop",
		"laptop", "phone", "headphones", "shoes", "camera", "monitor", "keyboard",
		"backpack", "watch", "tablet", "console", "gift",
	},
	state.VerticalHotel: {
		"hotel", "hotels", "stay", "resort", "hostel", "motel", "lodging", "suite",
		"boutique", "night", "nights", "accommodation", "bnb", "check-in", "room",
	},
	state.VerticalFlight: {
		"flight", "flights", "fly", "airline", "airfare", "airport", "nonstop",
		"layover", "round-trip", "roundtrip", "one-way", "departure", "plane",
	},
	state.VerticalMovie: {
		"movie", "movies", "cinema", "theater", "theatre", "showtime", "showtimes",
		"ticket", "tickets", "imax", "screening", "film",
	},
}

// Anchor sentences used for embedding similarity per vertical.
var verticalAnchor = map[state.Vertical]string{
	state.VerticalProduct: "shopping for a product to buy, comparing prices, brands and reviews",
	state.VerticalHotel:   "finding a hotel or place to stay for certain dates, location and budget",
	state.VerticalFlight:  "searching flights between airports on travel dates with airlines and fares",
	state.VerticalMovie:   "movie showtimes, cinemas and tickets for a film in a city",
	state.VerticalOther:   "a general knowledge or news question answered from web sources",
}

type ScorerConfig struct {
	// Relative weight of embedding similarity vs keyword score when an
	// embedder is available.
	EmbeddingBlend float64
	// Baseline score for the catch-all vertical; keeps "other" routable
	// when nothing structured matches.
	OtherBaseline float64
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		EmbeddingBlend: 0.5,
		OtherBaseline:  0.35,
	}
}

// Scorer produces plan candidates for one sub-query: a score per vertical
// from keyword evidence, optionally blended with embedding similarity
// against per-vertical anchors. The embedder is optional and its failures
// are soft (keyword-only scoring).
type Scorer struct {
	embedder embedding.EmbeddingProvider
	cfg      ScorerConfig
	logger   *log.Logger

	mu      sync.Mutex
	anchors map[state.Vertical][]float32
}

func NewScorer(embedder embedding.EmbeddingProvider, cfg ScorerConfig, logger *log.Logger) *Scorer {
	return &Scorer{
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		anchors:  make(map[state.Vertical][]float32),
	}
}

// Score returns one candidate per vertical, unsorted. Filters presence adds
// a fixed boost: explicitly extracted parameters are stronger evidence than
// any keyword.
func (s *Scorer) Score(ctx context.Context, subQuery string, filters state.ExtractedFilters) []state.PlanCandidate {
	intent := ClassifyIntent(subQuery)

	var queryVec []float32
	if s.embedder != nil {
		if res, err := s.embedder.Generate(ctx, subQuery, embedding.TaskRetrievalQuery); err == nil {
			queryVec = res.Embedding.Values
		} else {
			s.logger.Printf("[ROUTE] query embedding failed, keyword-only scoring: %v", err)
		}
	}

	candidates := make([]state.PlanCandidate, 0, len(state.AllVerticals()))
	for _, vertical := range state.AllVerticals() {
		score := s.keywordScore(subQuery, vertical)

		if queryVec != nil {
			if anchorVec := s.anchorVector(ctx, vertical); anchorVec != nil {
				sim := cosineSimilarity(queryVec, anchorVec)
				blend := s.cfg.EmbeddingBlend
				score = (1-blend)*score + blend*normalizeSimilarity(sim)
			}
		}

		if filters.Has(vertical) {
			score += 0.25
		}
		if score > 1 {
			score = 1
		}

		candidates = append(candidates, state.PlanCandidate{
			Vertical:   vertical,
			Intent:     intent.Intent,
			Score:      score,
			Confidence: intent.Confidence,
			Filters:    filters,
		})
	}
	return candidates
}

func (s *Scorer) keywordScore(subQuery string, vertical state.Vertical) float64 {
	if vertical == state.VerticalOther {
		return s.cfg.OtherBaseline
	}

	words := tokenize(subQuery)
	if len(words) == 0 {
		return 0
	}

	hits := 0
	for _, kw := range verticalLexicon[vertical] {
		if _, ok := words[kw]; ok {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}

	// One marker is already meaningful; saturate quickly.
	score := 0.45 + 0.2*float64(hits-1)
	if score > 0.95 {
		score = 0.95
	}
	return score
}

func (s *Scorer) anchorVector(ctx context.Context, vertical state.Vertical) []float32 {
	s.mu.Lock()
	if vec, ok := s.anchors[vertical]; ok {
		s.mu.Unlock()
		return vec
	}
	s.mu.Unlock()

	res, err := s.embedder.Generate(ctx, verticalAnchor[vertical], embedding.TaskRetrievalDocument)
	if err != nil {
		s.logger.Printf("[ROUTE] anchor embedding for %s failed: %v", vertical, err)
		return nil
	}

	s.mu.Lock()
	s.anchors[vertical] = res.Embedding.Values
	s.mu.Unlock()
	return res.Embedding.Values
}

func tokenize(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w != "" {
			words[w] = struct{}{}
		}
	}
	return words
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// normalizeSimilarity maps cosine [-1,1] into [0,1].
func normalizeSimilarity(sim float64) float64 {
	return (sim + 1) / 2
}

// IntentSignal is the classified intent of one sub-query.
type IntentSignal struct {
	Intent     state.Intent
	Confidence float64
}

// ClassifyIntent detects transactional language. Confidence reflects marker
// strength, not model certainty; it only gates the pinning rule. The padded
// haystack keeps word-start markers from matching inside words ("macbook"
// must not read as book intent).
func ClassifyIntent(subQuery string) IntentSignal {
	lower := " " + strings.ToLower(subQuery) + " "

	switch {
	case containsAny(lower, " book ", " reserve", " reservation", " booking"):
		return IntentSignal{Intent: state.IntentBook, Confidence: 0.9}
	case containsAny(lower, " buy ", " purchase", " order "):
		return IntentSignal{Intent: state.IntentBuy, Confidence: 0.9}
	case containsAny(lower, " vs ", " versus", " compare", " comparison", " difference between"):
		return IntentSignal{Intent: state.IntentCompare, Confidence: 0.8}
	default:
		return IntentSignal{Intent: state.IntentBrowse, Confidence: 0.5}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
