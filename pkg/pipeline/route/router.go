package route

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"ai-answer-engine-be/pkg/pipeline/state"
)

// Retriever is one vertical's search backend. A failing retriever yields
// zero chunks for its vertical, never a failed route.
type Retriever interface {
	Search(ctx context.Context, query string, filters state.ExtractedFilters) (*state.RetrievalPayload, error)
}

type Config struct {
	// Secondary verticals are admitted within this margin of the primary
	// score, and never below the floor.
	SecondaryMargin float64
	SecondaryFloor  float64
	MaxVerticals    int
	// Transactional intent at or above this confidence pins its vertical.
	IntentPinCutoff float64
	RetrieveTimeout time.Duration
	Retry           RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		SecondaryMargin: 0.15,
		SecondaryFloor:  0.5,
		MaxVerticals:    5,
		IntentPinCutoff: 0.75,
		RetrieveTimeout: 12 * time.Second,
		Retry:           DefaultRetryPolicy(),
	}
}

// Outcome is everything the router hands to the aggregator.
type Outcome struct {
	Chunks        []state.RetrievedChunk
	Payloads      map[state.Vertical]*state.RetrievalPayload
	Decision      state.RoutingDecision
	Candidates    []state.PlanCandidate
	SearchQueries []string
	// Winner is the vertical whose payload is treated as primary evidence;
	// see SelectWinner.
	Winner state.Vertical
}

// Router maps sub-queries to verticals and fans out to their retrievers
// concurrently, joining on all of them.
type Router struct {
	scorer     *Scorer
	retrievers map[state.Vertical]Retriever
	cfg        Config
	logger     *log.Logger
}

func NewRouter(scorer *Scorer, retrievers map[state.Vertical]Retriever, cfg Config, logger *log.Logger) *Router {
	return &Router{
		scorer:     scorer,
		retrievers: retrievers,
		cfg:        cfg,
		logger:     logger,
	}
}

// Route scores every sub-query against every vertical, selects the primary
// and bounded secondaries, and retrieves from all selected verticals in
// parallel. The join waits for every branch; the slowest branch bounds this
// stage's latency.
func (r *Router) Route(ctx context.Context, subQueries []string, filters state.ExtractedFilters) (*Outcome, error) {
	if len(subQueries) == 0 {
		return nil, fmt.Errorf("route: no sub-queries")
	}

	// Best candidate per vertical across all sub-queries; each vertical is
	// later queried with the sub-query that scored it.
	best := make(map[state.Vertical]state.PlanCandidate)
	queryFor := make(map[state.Vertical]string)
	for _, sq := range subQueries {
		for _, cand := range r.scorer.Score(ctx, sq, filters) {
			if prev, ok := best[cand.Vertical]; !ok || cand.Score > prev.Score {
				best[cand.Vertical] = cand
				queryFor[cand.Vertical] = sq
			}
		}
	}

	candidates := make([]state.PlanCandidate, 0, len(best))
	for _, cand := range best {
		candidates = append(candidates, cand)
	}

	primary, selected, narrowed := SelectVerticals(candidates, r.cfg)

	decision := state.RoutingDecision{
		Primary:             primary.Vertical,
		Confidence:          primary.Score,
		IntentBasedNarrowed: narrowed,
	}

	outcome := &Outcome{
		Payloads:   make(map[state.Vertical]*state.RetrievalPayload),
		Candidates: candidates,
	}

	// Fan-out: every selected vertical with a registered retriever is
	// queried concurrently. Join barrier before returning.
	type branchResult struct {
		vertical state.Vertical
		payload  *state.RetrievalPayload
		query    string
		err      error
	}

	g, groupCtx := errgroup.WithContext(ctx)
	results := make(chan branchResult, len(selected))

	for _, cand := range selected {
		retriever, ok := r.retrievers[cand.Vertical]
		if !ok {
			r.logger.Printf("[ROUTE] no retriever registered for %s, skipping", cand.Vertical)
			continue
		}
		vertical := cand.Vertical
		query := queryFor[vertical]
		decision.SourcesUsed = append(decision.SourcesUsed, vertical)
		outcome.SearchQueries = append(outcome.SearchQueries, query)

		g.Go(func() error {
			branchCtx, cancel := context.WithTimeout(groupCtx, r.cfg.RetrieveTimeout)
			defer cancel()

			var payload *state.RetrievalPayload
			err := r.cfg.Retry.Do(branchCtx, func() error {
				var searchErr error
				payload, searchErr = retriever.Search(branchCtx, query, filters)
				return searchErr
			})

			select {
			case results <- branchResult{vertical: vertical, payload: payload, query: query, err: err}:
			case <-groupCtx.Done():
				return groupCtx.Err()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	for res := range results {
		if res.err != nil {
			// Soft failure: this source contributes nothing.
			r.logger.Printf("[ROUTE] %s retrieval failed after retry, zero chunks: %v", res.vertical, res.err)
			continue
		}
		if res.payload == nil {
			continue
		}
		outcome.Payloads[res.vertical] = res.payload
		outcome.Chunks = append(outcome.Chunks, res.payload.Chunks...)
	}

	outcome.Decision = decision
	outcome.Winner = SelectWinner(primary.Vertical, outcome.Payloads)

	r.logger.Printf("[ROUTE] primary=%s sources=%v winner=%s chunks=%d narrowed=%v",
		decision.Primary, decision.SourcesUsed, outcome.Winner, len(outcome.Chunks), narrowed)

	return outcome, nil
}

// SelectVerticals picks the primary (highest score, possibly overridden by
// a pinned transactional intent) and up to MaxVerticals-1 secondaries whose
// scores sit within SecondaryMargin of the primary and at or above
// SecondaryFloor.
func SelectVerticals(candidates []state.PlanCandidate, cfg Config) (primary state.PlanCandidate, selected []state.PlanCandidate, narrowed bool) {
	if len(candidates) == 0 {
		primary = state.PlanCandidate{Vertical: state.VerticalOther}
		return primary, []state.PlanCandidate{primary}, false
	}

	sorted := make([]state.PlanCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	primary = sorted[0]

	// Intent pinning: a confident buy/book signal pins the matching
	// vertical when it is competitive with the raw top scorer.
	if pin, ok := pinTarget(sorted, cfg.IntentPinCutoff); ok && pin.Vertical != primary.Vertical {
		if pin.Score >= primary.Score-cfg.SecondaryMargin {
			primary = pin
			narrowed = true
		}
	}

	selected = []state.PlanCandidate{primary}
	for _, cand := range sorted {
		if len(selected) >= cfg.MaxVerticals {
			break
		}
		if cand.Vertical == primary.Vertical {
			continue
		}
		if cand.Score >= primary.Score-cfg.SecondaryMargin && cand.Score >= cfg.SecondaryFloor {
			selected = append(selected, cand)
		}
	}
	return primary, selected, narrowed
}

// pinTarget maps a confident transactional intent to its vertical: buy goes
// to product, book to whichever of hotel/flight scored higher.
func pinTarget(sorted []state.PlanCandidate, cutoff float64) (state.PlanCandidate, bool) {
	byVertical := make(map[state.Vertical]state.PlanCandidate, len(sorted))
	for _, cand := range sorted {
		if _, ok := byVertical[cand.Vertical]; !ok {
			byVertical[cand.Vertical] = cand
		}
	}

	for _, cand := range sorted {
		if !cand.Intent.Transactional() || cand.Confidence < cutoff {
			continue
		}
		switch cand.Intent {
		case state.IntentBuy:
			if target, ok := byVertical[state.VerticalProduct]; ok {
				return target, true
			}
		case state.IntentBook:
			hotel, hasHotel := byVertical[state.VerticalHotel]
			flight, hasFlight := byVertical[state.VerticalFlight]
			switch {
			case hasHotel && hasFlight:
				if flight.Score > hotel.Score {
					return flight, true
				}
				return hotel, true
			case hasHotel:
				return hotel, true
			case hasFlight:
				return flight, true
			}
		}
	}
	return state.PlanCandidate{}, false
}

// SelectWinner names the tie-break rule for the fan-out join: the routed
// primary wins when it produced anything; otherwise the best-scoring
// non-empty completion takes over; with nothing retrieved anywhere the
// primary stands (and quality classification deals with the emptiness).
func SelectWinner(primary state.Vertical, payloads map[state.Vertical]*state.RetrievalPayload) state.Vertical {
	if p, ok := payloads[primary]; ok && p != nil && (len(p.Chunks) > 0 || p.ItemCount() > 0) {
		return primary
	}

	winner := primary
	bestScore := -1.0
	for vertical, payload := range payloads {
		if payload == nil || (len(payload.Chunks) == 0 && payload.ItemCount() == 0) {
			continue
		}
		score := topChunkScore(payload.Chunks)
		if score > bestScore {
			bestScore = score
			winner = vertical
		}
	}
	return winner
}

func topChunkScore(chunks []state.RetrievedChunk) float64 {
	best := 0.0
	for _, c := range chunks {
		if c.Score > best {
			best = c.Score
		}
	}
	return best
}
