package aggregate

import (
	"sort"

	"ai-answer-engine-be/pkg/pipeline/state"
)

// Thresholds for quality classification. The defaults are the empirically
// chosen operating points; they are tunable configuration, not law.
type Thresholds struct {
	// Hit rates (itemCount/maxItems) below this are weak.
	WeakHitRate float64
	// ...unless the set is small and scores are strong:
	StrongScoreFloor  float64
	SmallSetThreshold int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		WeakHitRate:       0.2,
		StrongScoreFloor:  0.7,
		SmallSetThreshold: 3,
	}
}

// ClassifyQuality labels a retrieval outcome. A low hit rate means weak
// retrieval, EXCEPT when a small set of items scores highly: three excellent
// matches are a good answer, not a weak one. TopKAvg is preferred over
// AvgScore when present.
func ClassifyQuality(stats state.RetrievalStats, t Thresholds) state.Quality {
	if stats.ItemCount == 0 {
		return state.QualityWeak
	}
	if stats.MaxItems <= 0 {
		// No hint to judge against; having anything at all counts.
		return state.QualityGood
	}

	hitRate := float64(stats.ItemCount) / float64(stats.MaxItems)
	if hitRate >= t.WeakHitRate {
		return state.QualityGood
	}

	if stats.ItemCount <= t.SmallSetThreshold && stats.EffectiveScore() >= t.StrongScoreFloor {
		return state.QualityGood
	}

	return state.QualityWeak
}

// ScoreStats computes the average and top-3 average over reranked scores.
func ScoreStats(chunks []state.RetrievedChunk) (avg float64, topKAvg float64) {
	if len(chunks) == 0 {
		return 0, 0
	}

	scores := make([]float64, len(chunks))
	total := 0.0
	for i, c := range chunks {
		scores[i] = c.Score
		total += c.Score
	}
	avg = total / float64(len(scores))

	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	k := 3
	if len(scores) < k {
		k = len(scores)
	}
	topTotal := 0.0
	for _, s := range scores[:k] {
		topTotal += s
	}
	topKAvg = topTotal / float64(k)
	return avg, topKAvg
}
