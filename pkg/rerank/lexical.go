package rerank

import (
	"context"
	"log"
	"sort"
	"strings"

	"ai-answer-engine-be/pkg/pipeline/aggregate"
	"ai-answer-engine-be/pkg/pipeline/state"
)

// LexicalReranker orders evidence by token overlap with the query. It is the
// zero-dependency fallback when no embedding provider is configured.
type LexicalReranker struct {
	cfg    Config
	logger *log.Logger
}

var _ aggregate.Reranker = &LexicalReranker{}

func NewLexicalReranker(cfg Config, logger *log.Logger) *LexicalReranker {
	if logger == nil {
		logger = log.Default()
	}
	return &LexicalReranker{cfg: cfg, logger: logger}
}

func (r *LexicalReranker) Rerank(_ context.Context, query string, chunks []state.RetrievedChunk) ([]state.RetrievedChunk, error) {
	if len(chunks) <= 1 {
		return chunks, nil
	}

	queryTokens := tokens(query)
	if len(queryTokens) == 0 {
		return chunks, nil
	}

	scored := make([]state.RetrievedChunk, len(chunks))
	copy(scored, chunks)
	for i := range scored {
		overlap := overlapRatio(queryTokens, tokens(scored[i].Title+" "+scored[i].Text))
		scored[i].Score = r.cfg.Blend*overlap + (1-r.cfg.Blend)*scored[i].Score
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

// overlapRatio is the fraction of query tokens present in the document.
func overlapRatio(query map[string]struct{}, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if _, ok := doc[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

func tokens(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:()[]\"'")
		if len(f) < 3 {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}
