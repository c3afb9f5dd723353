package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/incubator-platform/support-chat/internal/model"
)

// CoachRepository serves the coach directory from the coaches table.
type CoachRepository struct {
	db *gorm.DB
}

func NewCoachRepository(db *gorm.DB) *CoachRepository {
	return &CoachRepository{db: db}
}

// ListAvailable returns coaches eligible for support assignment, oldest first.
func (r *CoachRepository) ListAvailable(ctx context.Context) ([]model.Coach, error) {
	var items []model.Coach
	err := r.db.WithContext(ctx).
		Where("available = ?", true).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}
