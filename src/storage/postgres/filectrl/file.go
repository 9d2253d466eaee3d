package filectrl

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ragmix/src/core/rag"
)

type File struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	UUID          string    `gorm:"not null;uniqueIndex" json:"uuid"`
	Filename      string    `gorm:"not null" json:"filename"`
	Modality      string    `gorm:"not null;index" json:"modality"`
	RetrievalType string    `gorm:"not null" json:"retrieval_type"`
	OwnerID       int64     `gorm:"not null;index" json:"owner_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type FileRestriction struct {
	FileID int64 `gorm:"primaryKey;autoIncrement:false" json:"file_id"`
	UserID int64 `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
}

func (FileRestriction) TableName() string {
	return "file_restrictions"
}

type FileService struct {
	db *gorm.DB
}

func NewFileService(db *gorm.DB) *FileService {
	return &FileService{db: db}
}

func (s *FileService) List(ctx context.Context) ([]rag.File, error) {
	var files []File
	result := s.db.WithContext(ctx).Order("id ASC").Find(&files)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list files: %v", result.Error)
	}

	var restrictions []FileRestriction
	result = s.db.WithContext(ctx).Find(&restrictions)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list file restrictions: %v", result.Error)
	}

	restricted := make(map[int64][]int64)
	for _, r := range restrictions {
		restricted[r.FileID] = append(restricted[r.FileID], r.UserID)
	}

	// Convert to domain model
	domainFiles := make([]rag.File, len(files))
	for i, f := range files {
		domainFiles[i] = toDomain(f, restricted[f.ID])
	}

	return domainFiles, nil
}

func (s *FileService) GetByID(ctx context.Context, id int64) (*rag.File, error) {
	var file File
	result := s.db.WithContext(ctx).First(&file, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get file: %v", result.Error)
	}

	restrictedIDs, err := s.GetRestrictions(ctx, id)
	if err != nil {
		return nil, err
	}

	domainFile := toDomain(file, restrictedIDs)
	return &domainFile, nil
}

func (s *FileService) GetRestrictions(ctx context.Context, fileID int64) ([]int64, error) {
	var userIDs []int64
	result := s.db.WithContext(ctx).
		Model(&FileRestriction{}).
		Where("file_id = ?", fileID).
		Order("user_id ASC").
		Pluck("user_id", &userIDs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get file restrictions: %v", result.Error)
	}
	return userIDs, nil
}

// SetRestrictions replaces the full deny list of a file in one transaction.
func (s *FileService) SetRestrictions(ctx context.Context, fileID int64, userIDs []int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileID).Delete(&FileRestriction{}).Error; err != nil {
			return err
		}

		if len(userIDs) == 0 {
			return nil
		}

		rows := make([]FileRestriction, 0, len(userIDs))
		seen := make(map[int64]struct{}, len(userIDs))
		for _, id := range userIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			rows = append(rows, FileRestriction{FileID: fileID, UserID: id})
		}

		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("failed to set file restrictions: %v", err)
	}
	return nil
}

func toDomain(f File, restrictedIDs []int64) rag.File {
	return rag.File{
		ID:                f.ID,
		UUID:              f.UUID,
		Filename:          f.Filename,
		Modality:          rag.Modality(f.Modality),
		RetrievalType:     rag.RetrievalType(f.RetrievalType),
		OwnerID:           f.OwnerID,
		RestrictedUserIDs: restrictedIDs,
	}
}
