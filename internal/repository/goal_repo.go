package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/marketing-agent/internal/models"
)

// GoalRepository persists marketing goals.
type GoalRepository interface {
	List(ctx context.Context) ([]models.Goal, error)
	GetByID(ctx context.Context, id uint) (models.Goal, error)
	Create(ctx context.Context, goal *models.Goal) error
	Update(ctx context.Context, goal *models.Goal) error
	UpdateCurrent(ctx context.Context, id uint, current int64) error
	Delete(ctx context.Context, id uint) error
	ResetPeriod(ctx context.Context, period models.GoalPeriod) (int64, error)
}

type goalRepository struct {
	db *gorm.DB
}

// NewGoalRepository constructs a repository backed by GORM.
func NewGoalRepository(db *gorm.DB) GoalRepository {
	return &goalRepository{db: db}
}

func (r *goalRepository) List(ctx context.Context) ([]models.Goal, error) {
	var goals []models.Goal
	err := GetDB(ctx, r.db).
		Order("CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END").
		Order("id ASC").
		Find(&goals).Error
	if err != nil {
		return nil, storageError("list goals", err)
	}
	return goals, nil
}

func (r *goalRepository) GetByID(ctx context.Context, id uint) (models.Goal, error) {
	var goal models.Goal
	if err := GetDB(ctx, r.db).First(&goal, id).Error; err != nil {
		return models.Goal{}, storageError("get goal", err)
	}
	return goal, nil
}

func (r *goalRepository) Create(ctx context.Context, goal *models.Goal) error {
	return storageError("create goal", GetDB(ctx, r.db).Create(goal).Error)
}

func (r *goalRepository) Update(ctx context.Context, goal *models.Goal) error {
	return storageError("update goal", GetDB(ctx, r.db).Save(goal).Error)
}

func (r *goalRepository) UpdateCurrent(ctx context.Context, id uint, current int64) error {
	result := GetDB(ctx, r.db).
		Model(&models.Goal{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"current": current, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return storageError("update goal progress", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *goalRepository) Delete(ctx context.Context, id uint) error {
	result := GetDB(ctx, r.db).Delete(&models.Goal{}, id)
	if result.Error != nil {
		return storageError("delete goal", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *goalRepository) ResetPeriod(ctx context.Context, period models.GoalPeriod) (int64, error) {
	result := GetDB(ctx, r.db).
		Model(&models.Goal{}).
		Where("period = ?", period).
		Updates(map[string]interface{}{"current": 0, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return 0, storageError("reset goals", result.Error)
	}
	return result.RowsAffected, nil
}
