package querycachectrl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shelf/src/core/querycache"
)

type QueryEmbedding struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	QueryHash      string          `gorm:"size:64;not null;uniqueIndex" json:"query_hash"`
	QueryText      string          `gorm:"type:text;not null" json:"query_text"`
	Embedding      pgvector.Vector `gorm:"type:vector;not null" json:"-"`
	EmbeddingModel string          `gorm:"size:100;not null" json:"embedding_model"`
	CreatedAt      time.Time       `json:"created_at"`
	LastUsedAt     time.Time       `gorm:"not null" json:"last_used_at"`
	UseCount       int64           `gorm:"not null;default:1" json:"use_count"`
}

func (QueryEmbedding) TableName() string {
	return "query_embeddings_cache"
}

// QueryCacheService is the Postgres implementation of querycache.Store
type QueryCacheService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewQueryCacheService(db *gorm.DB, nodeID int64) (*QueryCacheService, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &QueryCacheService{
		db:        db,
		snowflake: node,
	}, nil
}

// Migrate creates the vector extension and the cache table
func (s *QueryCacheService) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if err := db.AutoMigrate(&QueryEmbedding{}); err != nil {
		return fmt.Errorf("failed to migrate query cache: %w", err)
	}
	return nil
}

func (s *QueryCacheService) Get(ctx context.Context, queryHash string) (*querycache.Record, error) {
	var row QueryEmbedding
	result := s.db.WithContext(ctx).Where("query_hash = ?", queryHash).Take(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached embedding: %w", result.Error)
	}

	return row.toRecord(), nil
}

// Upsert inserts rec, or overwrites the vector of an existing row with the
// same hash. Usage statistics of an existing row are kept.
func (s *QueryCacheService) Upsert(ctx context.Context, rec *querycache.Record) error {
	row := &QueryEmbedding{
		ID:             s.snowflake.Generate().Int64(),
		QueryHash:      rec.QueryHash,
		QueryText:      rec.QueryText,
		Embedding:      pgvector.NewVector(rec.Embedding),
		EmbeddingModel: rec.Model,
		CreatedAt:      rec.CreatedAt,
		LastUsedAt:     rec.LastUsedAt,
		UseCount:       rec.UseCount,
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "query_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"query_text", "embedding", "embedding_model", "last_used_at"}),
	}).Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert cached embedding: %w", result.Error)
	}
	return nil
}

func (s *QueryCacheService) Touch(ctx context.Context, queryHash string, usedAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&QueryEmbedding{}).
		Where("query_hash = ?", queryHash).
		Updates(map[string]interface{}{
			"last_used_at": usedAt,
			"use_count":    gorm.Expr("use_count + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to touch cached embedding: %w", result.Error)
	}
	return nil
}

func (e *QueryEmbedding) toRecord() *querycache.Record {
	return &querycache.Record{
		QueryHash:  e.QueryHash,
		QueryText:  e.QueryText,
		Embedding:  e.Embedding.Slice(),
		Model:      e.EmbeddingModel,
		CreatedAt:  e.CreatedAt,
		LastUsedAt: e.LastUsedAt,
		UseCount:   e.UseCount,
	}
}
