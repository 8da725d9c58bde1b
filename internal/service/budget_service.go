package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/repository"
)

// DefaultBudgetRetentionDays is how long ledger entries are kept by the retention job.
const DefaultBudgetRetentionDays = 365

// SpendRecord is one spend event. Amount is in minor units; a zero Date means today.
type SpendRecord struct {
	Amount      int64
	CampaignID  string
	Description string
	Date        time.Time
}

// BudgetService answers spend questions from the append-only ledger.
type BudgetService interface {
	RecordSpending(ctx context.Context, record SpendRecord) (models.BudgetEntry, error)
	DailyTotal(ctx context.Context, day time.Time) (int64, error)
	MonthlyTotal(ctx context.Context, month time.Time) (int64, error)
	TotalInRange(ctx context.Context, since, until time.Time) (int64, error)
	WouldExceedDailyLimit(ctx context.Context, amount, limit int64) (bool, error)
	WouldExceedMonthlyBudget(ctx context.Context, amount, budget int64) (bool, error)
	Status(ctx context.Context, monthlyBudget, dailyLimit int64) (dto.BudgetStatus, error)
	DailyBreakdown(ctx context.Context, days int) ([]dto.ChartPoint, error)
	CampaignBreakdown(ctx context.Context, since time.Time) ([]repository.CampaignTotal, error)
	CleanOldEntries(ctx context.Context, days int) (int64, error)
}

type budgetService struct {
	repo   repository.BudgetRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewBudgetService constructs the budget ledger service.
func NewBudgetService(repo repository.BudgetRepository, logger zerolog.Logger) BudgetService {
	return &budgetService{
		repo:   repo,
		logger: logger.With().Str("component", "budget_service").Logger(),
		now:    time.Now,
	}
}

func (s *budgetService) RecordSpending(ctx context.Context, record SpendRecord) (models.BudgetEntry, error) {
	if record.Amount < 0 {
		return models.BudgetEntry{}, fmt.Errorf("spend amount must not be negative")
	}

	day := record.Date
	if day.IsZero() {
		day = s.now()
	}

	entry := models.BudgetEntry{
		Date:        models.LedgerDate(day),
		Spent:       record.Amount,
		CampaignID:  record.CampaignID,
		Description: record.Description,
	}
	if err := s.repo.Create(ctx, &entry); err != nil {
		return models.BudgetEntry{}, err
	}

	s.logger.Info().
		Str("date", entry.Date).
		Str("amount", models.FormatMinorUnits(entry.Spent)).
		Str("campaign_id", entry.CampaignID).
		Msg("spending recorded")
	return entry, nil
}

func (s *budgetService) DailyTotal(ctx context.Context, day time.Time) (int64, error) {
	date := models.LedgerDate(day)
	return s.repo.SumBetween(ctx, date, date)
}

func (s *budgetService) MonthlyTotal(ctx context.Context, month time.Time) (int64, error) {
	first, last := monthBounds(month)
	return s.repo.SumBetween(ctx, models.LedgerDate(first), models.LedgerDate(last))
}

func (s *budgetService) TotalInRange(ctx context.Context, since, until time.Time) (int64, error) {
	return s.repo.SumBetween(ctx, models.LedgerDate(since), models.LedgerDate(until))
}

// WouldExceedDailyLimit reports whether spending amount today would cross limit. A non-positive limit never blocks.
func (s *budgetService) WouldExceedDailyLimit(ctx context.Context, amount, limit int64) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	spent, err := s.DailyTotal(ctx, s.now())
	if err != nil {
		return false, err
	}
	return spent+amount > limit, nil
}

func (s *budgetService) WouldExceedMonthlyBudget(ctx context.Context, amount, budget int64) (bool, error) {
	if budget <= 0 {
		return false, nil
	}
	spent, err := s.MonthlyTotal(ctx, s.now())
	if err != nil {
		return false, err
	}
	return spent+amount > budget, nil
}

func (s *budgetService) Status(ctx context.Context, monthlyBudget, dailyLimit int64) (dto.BudgetStatus, error) {
	now := s.now()
	monthly, err := s.MonthlyTotal(ctx, now)
	if err != nil {
		return dto.BudgetStatus{}, err
	}
	daily, err := s.DailyTotal(ctx, now)
	if err != nil {
		return dto.BudgetStatus{}, err
	}

	return dto.BudgetStatus{
		Monthly: budgetWindow(monthlyBudget, monthly),
		Daily:   budgetWindow(dailyLimit, daily),
	}, nil
}

// DailyBreakdown returns one point per day for the last days days, oldest first, zero-filled.
func (s *budgetService) DailyBreakdown(ctx context.Context, days int) ([]dto.ChartPoint, error) {
	if days <= 0 {
		days = 7
	}
	if days > 366 {
		days = 366
	}

	now := s.now().UTC()
	from := now.AddDate(0, 0, -(days - 1))
	totals, err := s.repo.DailyTotals(ctx, models.LedgerDate(from), models.LedgerDate(now))
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]int64, len(totals))
	for _, total := range totals {
		byDate[total.Date] = total.Spent
	}

	points := make([]dto.ChartPoint, 0, days)
	for i := 0; i < days; i++ {
		date := models.LedgerDate(from.AddDate(0, 0, i))
		points = append(points, dto.ChartPoint{Date: date, Value: byDate[date]})
	}
	return points, nil
}

func (s *budgetService) CampaignBreakdown(ctx context.Context, since time.Time) ([]repository.CampaignTotal, error) {
	return s.repo.CampaignTotals(ctx, models.LedgerDate(since))
}

func (s *budgetService) CleanOldEntries(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultBudgetRetentionDays
	}
	cutoff := models.LedgerDate(s.now().AddDate(0, 0, -days))

	deleted, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Str("before", cutoff).Msg("cleaned budget ledger")
	}
	return deleted, nil
}

// budgetWindow floors remaining at zero and rounds percent to a whole number.
func budgetWindow(limit, spent int64) dto.BudgetWindow {
	window := dto.BudgetWindow{Limit: limit, Spent: spent}
	if limit > spent {
		window.Remaining = limit - spent
	}
	if limit > 0 {
		window.PercentUsed = int(math.Round(float64(spent) / float64(limit) * 100))
	}
	return window
}

func monthBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}
