package rerank

import (
	"context"
	"log"
	"math"
	"sort"

	"ai-answer-engine-be/pkg/embedding"
	"ai-answer-engine-be/pkg/pipeline/aggregate"
	"ai-answer-engine-be/pkg/pipeline/state"
)

type Config struct {
	// Blend weighs semantic similarity against the provider's own score.
	Blend float64
	// MaxCandidates bounds how many chunks get an embedding call; the rest
	// keep their retrieval order behind the reranked head.
	MaxCandidates int
	// SnippetLimit truncates chunk text before embedding.
	SnippetLimit int
}

func DefaultConfig() Config {
	return Config{
		Blend:         0.6,
		MaxCandidates: 20,
		SnippetLimit:  512,
	}
}

// EmbeddingReranker orders evidence by cosine similarity between the query
// and each chunk, blended with the retriever's own score. When embeddings
// are unavailable it degrades to lexical overlap.
type EmbeddingReranker struct {
	provider embedding.EmbeddingProvider
	fallback *LexicalReranker
	cfg      Config
	logger   *log.Logger
}

var _ aggregate.Reranker = &EmbeddingReranker{}

func NewEmbeddingReranker(provider embedding.EmbeddingProvider, cfg Config, logger *log.Logger) *EmbeddingReranker {
	if logger == nil {
		logger = log.Default()
	}
	return &EmbeddingReranker{
		provider: provider,
		fallback: NewLexicalReranker(cfg, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

func (r *EmbeddingReranker) Rerank(ctx context.Context, query string, chunks []state.RetrievedChunk) ([]state.RetrievedChunk, error) {
	if r.provider == nil || len(chunks) <= 1 {
		return r.fallback.Rerank(ctx, query, chunks)
	}

	queryRes, err := r.provider.Generate(ctx, query, embedding.TaskSemanticSimilarity)
	if err != nil {
		r.logger.Printf("[RERANK] query embedding failed, lexical fallback: %v", err)
		return r.fallback.Rerank(ctx, query, chunks)
	}
	queryVec := queryRes.Embedding.Values

	head := chunks
	var tail []state.RetrievedChunk
	if r.cfg.MaxCandidates > 0 && len(chunks) > r.cfg.MaxCandidates {
		head = chunks[:r.cfg.MaxCandidates]
		tail = chunks[r.cfg.MaxCandidates:]
	}

	scored := make([]state.RetrievedChunk, len(head))
	copy(scored, head)
	for i := range scored {
		text := scored[i].Text
		if r.cfg.SnippetLimit > 0 && len(text) > r.cfg.SnippetLimit {
			text = text[:r.cfg.SnippetLimit]
		}
		docRes, err := r.provider.Generate(ctx, text, embedding.TaskSemanticSimilarity)
		if err != nil {
			// Keep the retriever's score for this chunk.
			continue
		}
		sim := cosine(queryVec, docRes.Embedding.Values)
		scored[i].Score = r.cfg.Blend*normalize(sim) + (1-r.cfg.Blend)*scored[i].Score
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return append(scored, tail...), nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

// normalize maps cosine [-1,1] into [0,1].
func normalize(sim float64) float64 {
	n := (sim + 1) / 2
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}
