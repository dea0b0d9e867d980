package contract

import (
	"context"
	"time"

	"ai-answer-engine-be/internal/entity"
)

// ScoredQueryRecord wraps QueryRecord with its similarity score
type ScoredQueryRecord struct {
	Record     *entity.QueryRecord
	Similarity float64 // 0.0 to 1.0 (1.0 = identical)
}

type QueryHistoryRepository interface {
	Create(ctx context.Context, record *entity.QueryRecord) error
	FindRecentBySession(ctx context.Context, sessionId string, limit int) ([]*entity.QueryRecord, error)
	FindRecent(ctx context.Context, limit int) ([]*entity.QueryRecord, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	// SearchSimilarWithScore returns past queries ranked by embedding
	// similarity, filtered by threshold. Rows without an embedding are
	// skipped.
	SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, threshold float64) ([]*ScoredQueryRecord, error)
}
