package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/marketing-agent/internal/models"
)

func TestConfigRepositorySeedOnce(t *testing.T) {
	repo := NewConfigRepository(setupTestDB(t))
	ctx := context.Background()

	cfg, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, cfg)

	seed := &models.AgentConfig{
		Name:   "Agent",
		Budget: datatypes.NewJSONType(models.BudgetSettings{Total: 100000, DailyLimit: 5000, AlertThreshold: 80}),
		Approval: datatypes.NewJSONType(models.ApprovalSettings{
			RequiredFor:  models.DefaultRequiredApprovals,
			TimeoutHours: 24,
		}),
	}
	created, err := repo.CreateIfMissing(ctx, seed)
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.CreateIfMissing(ctx, &models.AgentConfig{Name: "Other"})
	require.NoError(t, err)
	require.False(t, created)

	stored, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "Agent", stored.Name)
	require.Equal(t, int64(5000), stored.Budget.Data().DailyLimit)
	require.Equal(t, models.DefaultRequiredApprovals, stored.Approval.Data().RequiredFor)

	stored.Name = "Renamed"
	require.NoError(t, repo.Save(ctx, stored))

	reloaded, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "Renamed", reloaded.Name)
}

func TestGoalRepositoryCRUDAndReset(t *testing.T) {
	repo := NewGoalRepository(setupTestDB(t))
	ctx := context.Background()

	low := models.Goal{Type: models.GoalReach, Target: 1000, Current: 10, Period: models.PeriodWeekly, Priority: models.PriorityLow}
	high := models.Goal{Type: models.GoalLeads, Target: 10, Current: 4, Period: models.PeriodDaily, Priority: models.PriorityHigh}
	require.NoError(t, repo.Create(ctx, &low))
	require.NoError(t, repo.Create(ctx, &high))

	goals, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 2)
	require.Equal(t, high.ID, goals[0].ID, "high priority first")

	require.NoError(t, repo.UpdateCurrent(ctx, low.ID, 500))
	stored, err := repo.GetByID(ctx, low.ID)
	require.NoError(t, err)
	require.Equal(t, int64(500), stored.Current)

	reset, err := repo.ResetPeriod(ctx, models.PeriodDaily)
	require.NoError(t, err)
	require.Equal(t, int64(1), reset)
	stored, err = repo.GetByID(ctx, high.ID)
	require.NoError(t, err)
	require.Zero(t, stored.Current)

	require.NoError(t, repo.Delete(ctx, high.ID))
	err = repo.Delete(ctx, high.ID)
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	_, err = repo.GetByID(ctx, high.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
