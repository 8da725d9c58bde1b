package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/repository"
)

// SettingsService manages the agent configuration and marketing goals.
type SettingsService interface {
	GetConfig(ctx context.Context) (models.AgentConfig, error)
	UpdateConfig(ctx context.Context, req dto.SettingsUpdateRequest) (models.AgentConfig, error)
	SeedConfig(ctx context.Context, seed models.AgentConfig) (bool, error)
	ListGoals(ctx context.Context) ([]dto.GoalProgress, error)
	CreateGoal(ctx context.Context, req dto.GoalRequest) (dto.GoalProgress, error)
	UpdateGoal(ctx context.Context, id uint, req dto.GoalUpdateRequest) (dto.GoalProgress, error)
	UpdateGoalProgress(ctx context.Context, id uint, current int64) (dto.GoalProgress, error)
	DeleteGoal(ctx context.Context, id uint) error
	ResetGoalPeriod(ctx context.Context, period models.GoalPeriod) (int64, error)
}

type settingsService struct {
	configs   repository.ConfigRepository
	goals     repository.GoalRepository
	audit     AuditService
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewSettingsService constructs the settings service. audit may be nil.
func NewSettingsService(configs repository.ConfigRepository, goals repository.GoalRepository, audit AuditService, validate *validator.Validate, logger zerolog.Logger) SettingsService {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &settingsService{
		configs:   configs,
		goals:     goals,
		audit:     audit,
		validator: validate,
		logger:    logger.With().Str("component", "settings_service").Logger(),
		now:       time.Now,
	}
}

func (s *settingsService) GetConfig(ctx context.Context) (models.AgentConfig, error) {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return models.AgentConfig{}, err
	}
	if cfg == nil {
		return models.AgentConfig{}, ErrConfigMissing
	}
	return *cfg, nil
}

// UpdateConfig merges the non-nil sections of req into the stored configuration, creating it when absent.
func (s *settingsService) UpdateConfig(ctx context.Context, req dto.SettingsUpdateRequest) (models.AgentConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.AgentConfig{}, err
	}
	if req.Approval != nil {
		for _, actionType := range req.Approval.RequiredFor {
			if !actionType.Valid() {
				return models.AgentConfig{}, fmt.Errorf("%w: unsupported type %q in required_for", ErrInvalidAction, actionType)
			}
		}
	}

	current, err := s.configs.Get(ctx)
	if err != nil {
		return models.AgentConfig{}, err
	}
	cfg := models.AgentConfig{
		ID:       models.DefaultAgentConfigID,
		Approval: datatypes.NewJSONType(models.ApprovalSettings{RequiredFor: models.DefaultRequiredApprovals, TimeoutHours: 24}),
	}
	if current != nil {
		cfg = *current
	}

	sections := make([]string, 0, 7)
	if req.Name != nil {
		cfg.Name = *req.Name
		sections = append(sections, "name")
	}
	if req.PageID != nil {
		cfg.PageID = *req.PageID
		sections = append(sections, "page_id")
	}
	if req.AdAccountID != nil {
		cfg.AdAccountID = *req.AdAccountID
		sections = append(sections, "ad_account_id")
	}
	if req.Budget != nil {
		cfg.Budget = datatypes.NewJSONType(*req.Budget)
		sections = append(sections, "budget")
	}
	if req.Approval != nil {
		cfg.Approval = datatypes.NewJSONType(*req.Approval)
		sections = append(sections, "approval")
	}
	if req.Notifications != nil {
		cfg.Notifications = datatypes.NewJSONType(*req.Notifications)
		sections = append(sections, "notifications")
	}
	if req.Strategy != nil {
		cfg.Strategy = datatypes.NewJSONType(*req.Strategy)
		sections = append(sections, "strategy")
	}
	cfg.UpdatedAt = s.now().UTC()

	if err := s.configs.Save(ctx, &cfg); err != nil {
		return models.AgentConfig{}, err
	}

	if s.audit != nil {
		if err := s.audit.LogSystem(ctx, "settings updated", map[string]interface{}{"sections": sections}); err != nil {
			s.logger.Warn().Err(err).Msg("settings change not audited")
		}
	}
	s.logger.Info().Strs("sections", sections).Msg("agent configuration updated")
	return cfg, nil
}

// SeedConfig stores seed as the configuration unless one already exists.
func (s *settingsService) SeedConfig(ctx context.Context, seed models.AgentConfig) (bool, error) {
	created, err := s.configs.CreateIfMissing(ctx, &seed)
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info().Str("name", seed.Name).Msg("agent configuration seeded from environment")
	}
	return created, nil
}

func (s *settingsService) ListGoals(ctx context.Context) ([]dto.GoalProgress, error) {
	goals, err := s.goals.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]dto.GoalProgress, 0, len(goals))
	for _, goal := range goals {
		out = append(out, GoalProgressAt(goal, now))
	}
	return out, nil
}

func (s *settingsService) CreateGoal(ctx context.Context, req dto.GoalRequest) (dto.GoalProgress, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.GoalProgress{}, err
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	goal := models.Goal{
		Type:     req.Type,
		Target:   req.Target,
		Current:  req.Current,
		Period:   req.Period,
		Priority: priority,
	}
	if err := s.goals.Create(ctx, &goal); err != nil {
		return dto.GoalProgress{}, err
	}
	return GoalProgressAt(goal, s.now()), nil
}

func (s *settingsService) UpdateGoal(ctx context.Context, id uint, req dto.GoalUpdateRequest) (dto.GoalProgress, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.GoalProgress{}, err
	}

	goal, err := s.goals.GetByID(ctx, id)
	if err != nil {
		return dto.GoalProgress{}, goalError(err)
	}

	if req.Type != nil {
		goal.Type = *req.Type
	}
	if req.Target != nil {
		goal.Target = *req.Target
	}
	if req.Current != nil {
		goal.Current = *req.Current
	}
	if req.Period != nil {
		goal.Period = *req.Period
	}
	if req.Priority != nil {
		goal.Priority = *req.Priority
	}

	if err := s.goals.Update(ctx, &goal); err != nil {
		return dto.GoalProgress{}, err
	}
	return GoalProgressAt(goal, s.now()), nil
}

func (s *settingsService) UpdateGoalProgress(ctx context.Context, id uint, current int64) (dto.GoalProgress, error) {
	if current < 0 {
		return dto.GoalProgress{}, fmt.Errorf("current must not be negative")
	}
	if err := s.goals.UpdateCurrent(ctx, id, current); err != nil {
		return dto.GoalProgress{}, goalError(err)
	}
	goal, err := s.goals.GetByID(ctx, id)
	if err != nil {
		return dto.GoalProgress{}, goalError(err)
	}
	return GoalProgressAt(goal, s.now()), nil
}

func (s *settingsService) DeleteGoal(ctx context.Context, id uint) error {
	return goalError(s.goals.Delete(ctx, id))
}

func (s *settingsService) ResetGoalPeriod(ctx context.Context, period models.GoalPeriod) (int64, error) {
	switch period {
	case models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly:
	default:
		return 0, fmt.Errorf("unsupported goal period %q", period)
	}
	return s.goals.ResetPeriod(ctx, period)
}

func goalError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrGoalNotFound
	}
	return err
}

// GoalProgressAt computes progress against the share of the period elapsed at now.
// A goal is on track when its percent reaches 80% of the expected percent.
func GoalProgressAt(goal models.Goal, now time.Time) dto.GoalProgress {
	percent := 0
	if goal.Target > 0 {
		percent = int(math.Round(float64(goal.Current) / float64(goal.Target) * 100))
	}

	expected := 100.0
	switch goal.Period {
	case models.PeriodWeekly:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		expected = float64(weekday) / 7 * 100
	case models.PeriodMonthly:
		days := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
		expected = float64(now.Day()) / float64(days) * 100
	}

	return dto.GoalProgress{
		Goal:     goal,
		Percent:  percent,
		Expected: int(math.Round(expected)),
		OnTrack:  float64(percent) >= expected*0.8,
	}
}
