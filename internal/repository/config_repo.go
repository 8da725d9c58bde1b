package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/marketing-agent/internal/models"
)

// ConfigRepository stores the single agent configuration row.
type ConfigRepository interface {
	Get(ctx context.Context) (*models.AgentConfig, error)
	Save(ctx context.Context, cfg *models.AgentConfig) error
	CreateIfMissing(ctx context.Context, cfg *models.AgentConfig) (bool, error)
}

type configRepository struct {
	db *gorm.DB
}

// NewConfigRepository constructs a repository backed by GORM.
func NewConfigRepository(db *gorm.DB) ConfigRepository {
	return &configRepository{db: db}
}

// Get returns nil when the agent has not been configured yet.
func (r *configRepository) Get(ctx context.Context) (*models.AgentConfig, error) {
	var rows []models.AgentConfig
	if err := GetDB(ctx, r.db).Where("id = ?", models.DefaultAgentConfigID).Limit(1).Find(&rows).Error; err != nil {
		return nil, storageError("load agent config", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *configRepository) Save(ctx context.Context, cfg *models.AgentConfig) error {
	cfg.ID = models.DefaultAgentConfigID
	return storageError("save agent config", GetDB(ctx, r.db).Save(cfg).Error)
}

// CreateIfMissing inserts cfg unless a configuration row already exists.
func (r *configRepository) CreateIfMissing(ctx context.Context, cfg *models.AgentConfig) (bool, error) {
	cfg.ID = models.DefaultAgentConfigID
	result := GetDB(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(cfg)
	if result.Error != nil {
		return false, storageError("seed agent config", result.Error)
	}
	return result.RowsAffected > 0, nil
}
