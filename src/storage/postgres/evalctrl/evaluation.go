package evalctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type EvaluationRun struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	UUID          string    `gorm:"not null;uniqueIndex" json:"uuid"`
	DatasetName   string    `json:"dataset_name"`
	DatasetObject string    `gorm:"not null" json:"dataset_object"`
	ReportObject  string    `json:"report_object"`
	Status        string    `gorm:"not null;index" json:"status"`
	RequestedBy   int64     `gorm:"not null" json:"requested_by"`
	Total         int       `json:"total"`
	Passed        int       `json:"passed"`
	Failed        int       `json:"failed"`
	AverageRecall float64   `json:"average_recall"`
	ErrorMessage  string    `json:"error_message"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type EvaluationService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewEvaluationService(db *gorm.DB) (*EvaluationService, error) {
	// Initialize snowflake node
	node, err := snowflake.NewNode(3) // Node number 3 for evaluation runs
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &EvaluationService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *EvaluationService) Create(ctx context.Context, datasetName, datasetObject string, requestedBy int64) (*EvaluationRun, error) {
	run := &EvaluationRun{
		ID:            s.snowflake.Generate().Int64(),
		UUID:          uuid.New().String(),
		DatasetName:   datasetName,
		DatasetObject: datasetObject,
		Status:        StatusPending,
		RequestedBy:   requestedBy,
	}

	result := s.db.WithContext(ctx).Create(run)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create evaluation run: %v", result.Error)
	}

	return run, nil
}

func (s *EvaluationService) GetByID(ctx context.Context, id int64) (*EvaluationRun, error) {
	var run EvaluationRun
	result := s.db.WithContext(ctx).First(&run, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get evaluation run: %v", result.Error)
	}
	return &run, nil
}

func (s *EvaluationService) GetByUUID(ctx context.Context, id string) (*EvaluationRun, error) {
	var run EvaluationRun
	result := s.db.WithContext(ctx).Where("uuid = ?", id).First(&run)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get evaluation run: %v", result.Error)
	}
	return &run, nil
}

func (s *EvaluationService) List(ctx context.Context, offset, limit int) ([]EvaluationRun, error) {
	var runs []EvaluationRun
	result := s.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&runs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list evaluation runs: %v", result.Error)
	}
	return runs, nil
}

func (s *EvaluationService) ListByRequester(ctx context.Context, requestedBy int64, offset, limit int) ([]EvaluationRun, error) {
	var runs []EvaluationRun
	result := s.db.WithContext(ctx).
		Where("requested_by = ?", requestedBy).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&runs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list evaluation runs: %v", result.Error)
	}
	return runs, nil
}

func (s *EvaluationService) MarkRunning(ctx context.Context, id int64) error {
	return s.updateStatus(ctx, id, map[string]interface{}{"status": StatusRunning})
}

func (s *EvaluationService) MarkFailed(ctx context.Context, id int64, message string) error {
	return s.updateStatus(ctx, id, map[string]interface{}{
		"status":        StatusFailed,
		"error_message": message,
	})
}

func (s *EvaluationService) MarkCompleted(ctx context.Context, id int64, reportObject string, total, passed, failed int, averageRecall float64) error {
	return s.updateStatus(ctx, id, map[string]interface{}{
		"status":         StatusCompleted,
		"report_object":  reportObject,
		"total":          total,
		"passed":         passed,
		"failed":         failed,
		"average_recall": averageRecall,
	})
}

func (s *EvaluationService) updateStatus(ctx context.Context, id int64, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&EvaluationRun{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update evaluation run: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("evaluation run %d not found", id)
	}
	return nil
}
