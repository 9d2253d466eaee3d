package documentctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ragmix/src/core/rag"
)

type Document struct {
	ID                int64     `gorm:"primaryKey" json:"id"`
	FileID            int64     `gorm:"not null;uniqueIndex" json:"file_id"`
	Title             string    `json:"title"`
	PageCount         int       `json:"page_count"`
	RowCount          int       `json:"row_count"`
	InsightsSummary   string    `gorm:"type:text" json:"insights_summary"`
	InsightsEmbedding string    `gorm:"type:text" json:"insights_embedding"`
	TableName         string    `json:"table_name"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type DocumentService struct {
	db *gorm.DB
}

func NewDocumentService(db *gorm.DB) *DocumentService {
	return &DocumentService{db: db}
}

func (s *DocumentService) GetByFileID(ctx context.Context, fileID int64) (*rag.Document, error) {
	var doc Document
	result := s.db.WithContext(ctx).Where("file_id = ?", fileID).First(&doc)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %v", result.Error)
	}

	domainDoc := toDomain(doc)
	return &domainDoc, nil
}

func toDomain(d Document) rag.Document {
	return rag.Document{
		ID:                d.ID,
		FileID:            d.FileID,
		Title:             d.Title,
		PageCount:         d.PageCount,
		RowCount:          d.RowCount,
		InsightsSummary:   d.InsightsSummary,
		InsightsEmbedding: decodeVector(d.InsightsEmbedding),
		TableName:         d.TableName,
	}
}

// decodeVector tolerates missing or corrupt embeddings by returning nil,
// which downstream scoring treats as absent.
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
