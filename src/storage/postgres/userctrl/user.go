package userctrl

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ragmix/src/core/rag"
)

type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"not null;uniqueIndex" json:"username"`
	Role      string    `gorm:"not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*rag.User, error) {
	var user User
	result := s.db.WithContext(ctx).First(&user, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %v", result.Error)
	}

	return &rag.User{ID: user.ID, Role: rag.Role(user.Role)}, nil
}

// ExistingIDs filters the given ids down to ones that belong to real users.
func (s *UserService) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var found []int64
	result := s.db.WithContext(ctx).Model(&User{}).Where("id IN ?", ids).Pluck("id", &found)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to check user ids: %v", result.Error)
	}
	return found, nil
}
