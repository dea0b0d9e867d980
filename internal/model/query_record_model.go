package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type QueryRecord struct {
	Id        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId string          `gorm:"type:varchar(64);index"`
	Mode      string          `gorm:"type:varchar(8)"`
	Message   string          `gorm:"type:text"`
	Rewritten string          `gorm:"type:text"`
	Vertical  string          `gorm:"type:varchar(16);index"`
	Quality   string          `gorm:"type:varchar(16)"`
	Summary   string          `gorm:"type:text"`
	Citations datatypes.JSON   `gorm:"type:jsonb"`
	Embedding *pgvector.Vector `gorm:"type:vector(768)"` // Gemini text-embedding-004 uses 768 dimensions; NULL when embedding failed
	LatencyMs int64            `gorm:"default:0"`
	CacheHit  bool             `gorm:"default:false"`
	CreatedAt time.Time        `gorm:"autoCreateTime;index"`
}

func (QueryRecord) TableName() string {
	return "query_records"
}
