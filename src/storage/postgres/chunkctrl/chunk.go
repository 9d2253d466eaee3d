package chunkctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ragmix/src/core/rag"
)

type Chunk struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	DocumentID int64     `gorm:"not null;index" json:"document_id"`
	FileID     int64     `gorm:"not null;index" json:"file_id"`
	Modality   string    `gorm:"not null;index" json:"modality"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Embedding  string    `gorm:"type:text" json:"embedding"`
	PageNumber int       `json:"page_number"`
	RowNumber  int       `json:"row_number"`
	SheetName  string    `json:"sheet_name"`
	ChunkIndex int       `gorm:"not null;column:chunk_index" json:"chunk_index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ChunkService struct {
	db *gorm.DB
}

func NewChunkService(db *gorm.DB) *ChunkService {
	return &ChunkService{db: db}
}

func (s *ChunkService) ListByModality(ctx context.Context, modality rag.Modality) ([]rag.Chunk, error) {
	var chunks []Chunk
	query := s.db.WithContext(ctx)
	if modality != "" {
		query = query.Where("modality = ?", string(modality))
	}
	result := query.Order("id ASC").Find(&chunks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list chunks: %v", result.Error)
	}

	return toDomain(chunks), nil
}

func (s *ChunkService) ListByFileID(ctx context.Context, fileID int64, limit int) ([]rag.Chunk, error) {
	var chunks []Chunk
	query := s.db.WithContext(ctx).Where("file_id = ?", fileID).Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Find(&chunks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list file chunks: %v", result.Error)
	}

	return toDomain(chunks), nil
}

// Convert to domain model
func toDomain(chunks []Chunk) []rag.Chunk {
	domainChunks := make([]rag.Chunk, len(chunks))
	for i, c := range chunks {
		domainChunks[i] = rag.Chunk{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			FileID:     c.FileID,
			Modality:   rag.Modality(c.Modality),
			Content:    c.Content,
			Embedding:  decodeVector(c.Embedding),
			PageNumber: c.PageNumber,
			RowNumber:  c.RowNumber,
			SheetName:  c.SheetName,
			ChunkIndex: c.ChunkIndex,
		}
	}
	return domainChunks
}

// decodeVector returns nil for missing or corrupt embeddings so the
// search layer can skip the chunk instead of failing the query.
func decodeVector(raw string) []float32 {
	if raw == "" {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil
	}
	return vec
}
