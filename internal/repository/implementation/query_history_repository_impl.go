package implementation

import (
	"context"
	"time"

	"ai-answer-engine-be/internal/entity"
	"ai-answer-engine-be/internal/mapper"
	"ai-answer-engine-be/internal/model"
	"ai-answer-engine-be/internal/repository/contract"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type QueryHistoryRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.QueryRecordMapper
}

func NewQueryHistoryRepository(db *gorm.DB) contract.QueryHistoryRepository {
	return &QueryHistoryRepositoryImpl{
		db:     db,
		mapper: mapper.NewQueryRecordMapper(),
	}
}

func (r *QueryHistoryRepositoryImpl) Create(ctx context.Context, record *entity.QueryRecord) error {
	m := r.mapper.ToModel(record)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*record = *r.mapper.ToEntity(m)
	return nil
}

func (r *QueryHistoryRepositoryImpl) FindRecentBySession(ctx context.Context, sessionId string, limit int) ([]*entity.QueryRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []*model.QueryRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionId).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(records), nil
}

func (r *QueryHistoryRepositoryImpl) FindRecent(ctx context.Context, limit int) ([]*entity.QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []*model.QueryRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(records), nil
}

func (r *QueryHistoryRepositoryImpl) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.QueryRecord{}).
		Where("created_at >= ?", since).
		Count(&count).Error
	return count, err
}

// SearchSimilarWithScore ranks past queries by cosine similarity.
// Cosine distance in pgvector is: 1 - cosine_similarity
// So we compute: 1 - (embedding <=> query_vector) = cosine_similarity
func (r *QueryHistoryRepositoryImpl) SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, threshold float64) ([]*contract.ScoredQueryRecord, error) {
	if limit <= 0 {
		limit = 5
	}

	type result struct {
		model.QueryRecord
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Table("query_records").
		Select("query_records.*, 1 - (embedding <=> ?) as similarity", queryVector).
		Where("embedding IS NOT NULL").
		Where("1 - (embedding <=> ?) >= ?", queryVector, threshold).
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredQueryRecord, len(results))
	for i, res := range results {
		scored[i] = &contract.ScoredQueryRecord{
			Record:     r.mapper.ToEntity(&res.QueryRecord),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}
