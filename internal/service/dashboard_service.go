package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/observability"
	"github.com/noah-isme/marketing-agent/internal/repository"
)

const dashboardCacheKey = "dashboard:overview"

// ErrUnknownChart indicates the requested chart type does not exist.
var ErrUnknownChart = errors.New("unknown chart type")

// DashboardService assembles the read-only views of the dashboard and the report emails.
type DashboardService interface {
	Overview(ctx context.Context) (dto.DashboardResponse, error)
	Stats(ctx context.Context) (dto.DashboardStats, error)
	Chart(ctx context.Context, kind string, days int) ([]dto.ChartPoint, error)
	Report(ctx context.Context, period models.GoalPeriod) (dto.Report, error)
	Invalidate(ctx context.Context)
}

// DashboardDependencies groups the collaborators of the dashboard service.
type DashboardDependencies struct {
	Approvals ApprovalService
	Audit     AuditService
	Budget    BudgetService
	Settings  SettingsService
	Cache     *redis.Client
	CacheTTL  time.Duration
}

type dashboardService struct {
	approvals ApprovalService
	audit     AuditService
	budget    BudgetService
	settings  SettingsService
	cache     *redis.Client
	cacheTTL  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDashboardService constructs the dashboard service. The cache is optional.
func NewDashboardService(deps DashboardDependencies, logger zerolog.Logger) DashboardService {
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &dashboardService{
		approvals: deps.Approvals,
		audit:     deps.Audit,
		budget:    deps.Budget,
		settings:  deps.Settings,
		cache:     deps.Cache,
		cacheTTL:  ttl,
		logger:    logger.With().Str("component", "dashboard_service").Logger(),
		now:       time.Now,
	}
}

func (s *dashboardService) Overview(ctx context.Context) (dto.DashboardResponse, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, dashboardCacheKey).Result(); err == nil {
			var response dto.DashboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				observability.DashboardCache().WithLabelValues("hit").Inc()
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read dashboard cache")
		}
		observability.DashboardCache().WithLabelValues("miss").Inc()
	}

	response := dto.DashboardResponse{GeneratedAt: s.now().UTC()}

	cfg, err := s.settings.GetConfig(ctx)
	switch {
	case err == nil:
		response.Agent = dto.AgentSummary{Name: cfg.Name, PageID: cfg.PageID, Configured: true}
	case errors.Is(err, ErrConfigMissing):
	default:
		return dto.DashboardResponse{}, err
	}

	if response.Budget, err = s.budgetStatus(ctx, cfg); err != nil {
		return dto.DashboardResponse{}, err
	}
	if response.Goals, err = s.settings.ListGoals(ctx); err != nil {
		return dto.DashboardResponse{}, err
	}

	pending, err := s.approvals.ListPending(ctx)
	if err != nil {
		return dto.DashboardResponse{}, err
	}
	response.PendingApprovals = dto.NewActionResponseSlice(pending)

	recent, err := s.approvals.ListRecent(ctx, 10)
	if err != nil {
		return dto.DashboardResponse{}, err
	}
	response.RecentActions = dto.NewActionResponseSlice(recent)

	if response.RecentLogs, err = s.audit.Recent(ctx, 10); err != nil {
		return dto.DashboardResponse{}, err
	}
	if response.ActionStats, err = s.approvals.Stats(ctx); err != nil {
		return dto.DashboardResponse{}, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, dashboardCacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store dashboard cache")
			}
		}
	}

	return response, nil
}

func (s *dashboardService) Stats(ctx context.Context) (dto.DashboardStats, error) {
	actions, err := s.approvals.Stats(ctx)
	if err != nil {
		return dto.DashboardStats{}, err
	}
	audit, err := s.audit.Stats(ctx)
	if err != nil {
		return dto.DashboardStats{}, err
	}

	cfg, err := s.settings.GetConfig(ctx)
	if err != nil && !errors.Is(err, ErrConfigMissing) {
		return dto.DashboardStats{}, err
	}
	budget, err := s.budgetStatus(ctx, cfg)
	if err != nil {
		return dto.DashboardStats{}, err
	}

	return dto.DashboardStats{Actions: actions, Audit: audit, Budget: budget}, nil
}

// Chart returns a daily series. kind is "spend" (ledger totals) or "actions" (actions created).
func (s *dashboardService) Chart(ctx context.Context, kind string, days int) ([]dto.ChartPoint, error) {
	if days <= 0 {
		days = 7
	}
	if days > 90 {
		days = 90
	}

	switch kind {
	case "spend":
		return s.budget.DailyBreakdown(ctx, days)
	case "actions":
		return s.actionsChart(ctx, days)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChart, kind)
	}
}

func (s *dashboardService) actionsChart(ctx context.Context, days int) ([]dto.ChartPoint, error) {
	from := startOfDay(s.now()).AddDate(0, 0, -(days - 1))
	entries, _, err := s.audit.List(ctx, repository.AuditFilter{EventType: models.AuditCreated, Since: &from, PageSize: 500})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, days)
	for _, entry := range entries {
		counts[models.LedgerDate(entry.Timestamp)]++
	}

	points := make([]dto.ChartPoint, 0, days)
	for i := 0; i < days; i++ {
		date := models.LedgerDate(from.AddDate(0, 0, i))
		points = append(points, dto.ChartPoint{Date: date, Value: counts[date]})
	}
	return points, nil
}

// Report summarises the current day, or the last seven days for a weekly period.
func (s *dashboardService) Report(ctx context.Context, period models.GoalPeriod) (dto.Report, error) {
	now := s.now().UTC()
	report := dto.Report{To: now, Events: map[string]int64{}}
	switch period {
	case models.PeriodWeekly:
		report.From = startOfDay(now).AddDate(0, 0, -6)
		report.Title = fmt.Sprintf("Weekly report %s to %s", models.LedgerDate(report.From), models.LedgerDate(now))
	default:
		report.From = startOfDay(now)
		report.Title = "Daily report " + models.LedgerDate(now)
	}

	events, err := s.audit.CountByEventType(ctx, report.From)
	if err != nil {
		return dto.Report{}, err
	}
	for eventType, count := range events {
		report.Events[string(eventType)] = count
	}

	if report.Spent, err = s.budget.TotalInRange(ctx, report.From, now); err != nil {
		return dto.Report{}, err
	}

	cfg, err := s.settings.GetConfig(ctx)
	if err != nil && !errors.Is(err, ErrConfigMissing) {
		return dto.Report{}, err
	}
	if report.Budget, err = s.budgetStatus(ctx, cfg); err != nil {
		return dto.Report{}, err
	}
	if report.Goals, err = s.settings.ListGoals(ctx); err != nil {
		return dto.Report{}, err
	}

	pending, err := s.approvals.ListPending(ctx)
	if err != nil {
		return dto.Report{}, err
	}
	report.Pending = len(pending)

	return report, nil
}

// Invalidate drops the cached overview after a decision so the next read is fresh.
func (s *dashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dashboardCacheKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate dashboard cache")
	}
}

func (s *dashboardService) budgetStatus(ctx context.Context, cfg models.AgentConfig) (dto.BudgetStatus, error) {
	budget := cfg.Budget.Data()
	return s.budget.Status(ctx, budget.Total, budget.DailyLimit)
}
