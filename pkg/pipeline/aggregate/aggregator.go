package aggregate

import (
	"context"
	"fmt"
	"log"
	"time"

	"ai-answer-engine-be/pkg/pipeline/state"
)

// Reranker reorders evidence chunks by relevance to the query. The pipeline
// treats reranking as best effort: a failed rerank keeps retrieval order.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []state.RetrievedChunk) ([]state.RetrievedChunk, error)
}

// OverviewProvider serves the weak-retrieval fallback: one general web
// overview call when structured retrieval came back thin.
type OverviewProvider interface {
	Overview(ctx context.Context, query string) (*state.WebOverview, error)
}

type Config struct {
	OverviewTimeout time.Duration
	Thresholds      Thresholds
}

func DefaultConfig() Config {
	return Config{
		OverviewTimeout: 12 * time.Second,
		Thresholds:      DefaultThresholds(),
	}
}

// Outcome is the consolidated evidence the synthesizer works from.
type Outcome struct {
	// Vertical is the effective vertical after any fallback, which the
	// final result reports.
	Vertical state.Vertical
	// Chunks are deduplicated, reranked, across all routed verticals.
	Chunks   []state.RetrievedChunk
	Payloads map[state.Vertical]*state.RetrievalPayload
	Stats    state.RetrievalStats
	// Overview is set when the weak-retrieval fallback fired; the structured
	// results above are preserved alongside it, never discarded.
	Overview  *state.WebOverview
	CrossPart *state.CrossPartHint
}

type Aggregator struct {
	reranker Reranker
	overview OverviewProvider
	cfg      Config
	logger   *log.Logger
}

func NewAggregator(reranker Reranker, overview OverviewProvider, cfg Config, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.Default()
	}
	return &Aggregator{reranker: reranker, overview: overview, cfg: cfg, logger: logger}
}

// Aggregate merges the per-vertical payloads into one ranked evidence set,
// classifies retrieval quality for the winning vertical, and falls back to a
// single web overview when the structured result is weak.
func (a *Aggregator) Aggregate(ctx context.Context, query string, winner state.Vertical, chunks []state.RetrievedChunk, payloads map[state.Vertical]*state.RetrievalPayload) *Outcome {
	for v, p := range payloads {
		DedupeItems(v, p)
	}

	merged := DedupeChunks(chunks)
	ranked := a.rerank(ctx, query, merged)

	stats := a.statsFor(winner, ranked, payloads[winner])
	out := &Outcome{
		Vertical: winner,
		Chunks:   ranked,
		Payloads: payloads,
		Stats:    stats,
	}

	if stats.Quality == state.QualityWeak && winner != state.VerticalOther {
		a.fallbackToOverview(ctx, query, out)
	}

	out.CrossPart = CheckCrossPart(payloads)
	return out
}

func (a *Aggregator) rerank(ctx context.Context, query string, chunks []state.RetrievedChunk) []state.RetrievedChunk {
	if a.reranker == nil || len(chunks) <= 1 {
		return chunks
	}
	ranked, err := a.reranker.Rerank(ctx, query, chunks)
	if err != nil {
		a.logger.Printf("[AGGREGATE] rerank failed, keeping retrieval order: %v", err)
		return chunks
	}
	return ranked
}

func (a *Aggregator) statsFor(winner state.Vertical, ranked []state.RetrievedChunk, payload *state.RetrievalPayload) state.RetrievalStats {
	stats := state.RetrievalStats{Vertical: winner}
	if payload != nil {
		stats.ItemCount = payload.ItemCount()
		if winner == state.VerticalOther {
			stats.ItemCount = len(payload.Chunks)
		}
		stats.MaxItems = payload.MaxItemsHint
	}

	winnerChunks := make([]state.RetrievedChunk, 0, len(ranked))
	for _, c := range ranked {
		if c.Vertical == winner {
			winnerChunks = append(winnerChunks, c)
		}
	}
	if len(winnerChunks) == 0 {
		winnerChunks = ranked
	}
	stats.AvgScore, stats.TopKAvg = ScoreStats(winnerChunks)
	stats.Quality = ClassifyQuality(stats, a.cfg.Thresholds)
	return stats
}

// fallbackToOverview runs the single web overview call and, on success,
// reclassifies the outcome as fallback_other. Failure keeps the weak label.
func (a *Aggregator) fallbackToOverview(ctx context.Context, query string, out *Outcome) {
	if a.overview == nil {
		return
	}

	octx, cancel := context.WithTimeout(ctx, a.cfg.OverviewTimeout)
	defer cancel()

	ov, err := a.overview.Overview(octx, query)
	if err != nil || ov == nil {
		a.logger.Printf("[AGGREGATE] weak retrieval for %s, web overview fallback failed: %v", out.Stats.Vertical, err)
		return
	}

	a.logger.Printf("[AGGREGATE] weak retrieval for %s, falling back to web overview (%d citations)", out.Stats.Vertical, len(ov.Citations))
	out.Vertical = state.VerticalOther
	out.Stats.Quality = state.QualityFallbackOther
	out.Overview = ov
	for i, cit := range ov.Citations {
		out.Chunks = append(out.Chunks, state.RetrievedChunk{
			ID:       fmt.Sprintf("overview-%d", i+1),
			URL:      cit.URL,
			Title:    cit.Title,
			Text:     cit.Snippet,
			Vertical: state.VerticalOther,
			Score:    0.4,
		})
	}
}
