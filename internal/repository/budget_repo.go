package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/marketing-agent/internal/models"
)

// DailyTotal is the summed spend for one ledger day.
type DailyTotal struct {
	Date  string `gorm:"column:ledger_date" json:"date"`
	Spent int64  `json:"spent"`
}

// CampaignTotal is the summed spend for one campaign.
type CampaignTotal struct {
	CampaignID string `json:"campaign_id"`
	Spent      int64  `json:"spent"`
}

// BudgetRepository is the append-only spend ledger. Totals are always summed from entries.
type BudgetRepository interface {
	Create(ctx context.Context, entry *models.BudgetEntry) error
	SumBetween(ctx context.Context, fromDate, toDate string) (int64, error)
	DailyTotals(ctx context.Context, fromDate, toDate string) ([]DailyTotal, error)
	CampaignTotals(ctx context.Context, fromDate string) ([]CampaignTotal, error)
	DeleteBefore(ctx context.Context, date string) (int64, error)
}

type budgetRepository struct {
	db *gorm.DB
}

// NewBudgetRepository constructs a repository backed by GORM.
func NewBudgetRepository(db *gorm.DB) BudgetRepository {
	return &budgetRepository{db: db}
}

func (r *budgetRepository) Create(ctx context.Context, entry *models.BudgetEntry) error {
	return storageError("record spending", GetDB(ctx, r.db).Create(entry).Error)
}

// SumBetween sums entries whose date lies in [fromDate, toDate], both inclusive.
func (r *budgetRepository) SumBetween(ctx context.Context, fromDate, toDate string) (int64, error) {
	var total int64
	if err := GetDB(ctx, r.db).
		Model(&models.BudgetEntry{}).
		Select("COALESCE(SUM(spent), 0)").
		Where("ledger_date >= ? AND ledger_date <= ?", fromDate, toDate).
		Scan(&total).Error; err != nil {
		return 0, storageError("sum spending", err)
	}
	return total, nil
}

func (r *budgetRepository) DailyTotals(ctx context.Context, fromDate, toDate string) ([]DailyTotal, error) {
	var rows []DailyTotal
	if err := GetDB(ctx, r.db).
		Model(&models.BudgetEntry{}).
		Select("ledger_date, SUM(spent) AS spent").
		Where("ledger_date >= ? AND ledger_date <= ?", fromDate, toDate).
		Group("ledger_date").
		Order("ledger_date ASC").
		Scan(&rows).Error; err != nil {
		return nil, storageError("daily spending", err)
	}
	return rows, nil
}

func (r *budgetRepository) CampaignTotals(ctx context.Context, fromDate string) ([]CampaignTotal, error) {
	var rows []CampaignTotal
	if err := GetDB(ctx, r.db).
		Model(&models.BudgetEntry{}).
		Select("campaign_id, SUM(spent) AS spent").
		Where("ledger_date >= ? AND campaign_id <> ''", fromDate).
		Group("campaign_id").
		Order("spent DESC").
		Scan(&rows).Error; err != nil {
		return nil, storageError("campaign spending", err)
	}
	return rows, nil
}

func (r *budgetRepository) DeleteBefore(ctx context.Context, date string) (int64, error) {
	result := GetDB(ctx, r.db).Where("ledger_date < ?", date).Delete(&models.BudgetEntry{})
	if result.Error != nil {
		return 0, storageError("clean budget entries", result.Error)
	}
	return result.RowsAffected, nil
}
