package mapper

import (
	"encoding/json"

	"ai-answer-engine-be/internal/entity"
	"ai-answer-engine-be/internal/model"
	"ai-answer-engine-be/pkg/pipeline/state"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type QueryRecordMapper struct{}

func NewQueryRecordMapper() *QueryRecordMapper {
	return &QueryRecordMapper{}
}

func (m *QueryRecordMapper) ToEntity(e *model.QueryRecord) *entity.QueryRecord {
	if e == nil {
		return nil
	}

	var citations []state.Citation
	if len(e.Citations) > 0 {
		// A malformed row yields an empty citation list, not a failure.
		_ = json.Unmarshal(e.Citations, &citations)
	}

	var emb []float32
	if e.Embedding != nil {
		emb = e.Embedding.Slice()
	}

	return &entity.QueryRecord{
		Id:        e.Id,
		SessionId: e.SessionId,
		Mode:      e.Mode,
		Message:   e.Message,
		Rewritten: e.Rewritten,
		Vertical:  e.Vertical,
		Quality:   e.Quality,
		Summary:   e.Summary,
		Citations: citations,
		Embedding: emb,
		LatencyMs: e.LatencyMs,
		CacheHit:  e.CacheHit,
		CreatedAt: e.CreatedAt,
	}
}

func (m *QueryRecordMapper) ToModel(e *entity.QueryRecord) *model.QueryRecord {
	if e == nil {
		return nil
	}

	var citations datatypes.JSON
	if len(e.Citations) > 0 {
		if raw, err := json.Marshal(e.Citations); err == nil {
			citations = raw
		}
	}

	// A missing embedding must round-trip as SQL NULL, not an empty
	// vector literal, or inserts into the typed vector column fail.
	var vec *pgvector.Vector
	if len(e.Embedding) > 0 {
		v := pgvector.NewVector(e.Embedding)
		vec = &v
	}

	return &model.QueryRecord{
		Id:        e.Id,
		SessionId: e.SessionId,
		Mode:      e.Mode,
		Message:   e.Message,
		Rewritten: e.Rewritten,
		Vertical:  e.Vertical,
		Quality:   e.Quality,
		Summary:   e.Summary,
		Citations: citations,
		Embedding: vec,
		LatencyMs: e.LatencyMs,
		CacheHit:  e.CacheHit,
		CreatedAt: e.CreatedAt,
	}
}

func (m *QueryRecordMapper) ToEntities(records []*model.QueryRecord) []*entity.QueryRecord {
	entities := make([]*entity.QueryRecord, len(records))
	for i, r := range records {
		entities[i] = m.ToEntity(r)
	}
	return entities
}
