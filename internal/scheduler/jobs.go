package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/config"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/service"
)

// JobDependencies are the services the scheduled jobs drive. Notifier, Suggestions and
// Dashboard may be nil.
type JobDependencies struct {
	Approvals           service.ApprovalService
	Executor            service.ExecutorService
	Suggestions         service.SuggestionService
	Budget              service.BudgetService
	Audit               service.AuditService
	Settings            service.SettingsService
	Dashboard           service.DashboardService
	Notifier            service.Notifier
	AuditRetentionDays  int
	BudgetRetentionDays int
}

type jobs struct {
	deps   JobDependencies
	logger zerolog.Logger
}

// RegisterJobs registers every agent job with the spec configured for it.
func RegisterJobs(s *Scheduler, specs map[string]string, deps JobDependencies) error {
	j := &jobs{deps: deps, logger: s.logger}

	table := []struct {
		name string
		fn   JobFunc
	}{
		{config.JobExpireActions, j.expireActions},
		{config.JobProcessApproved, j.processApproved},
		{config.JobContentSuggestion, j.contentSuggestion},
		{config.JobBudgetOptimization, j.budgetOptimization},
		{config.JobDailyReport, j.dailyReport},
		{config.JobWeeklyReport, j.weeklyReport},
		{config.JobRetention, j.retention},
	}
	for _, entry := range table {
		if err := s.Register(entry.name, specs[entry.name], entry.fn); err != nil {
			return err
		}
	}
	return nil
}

func (j *jobs) expireActions(ctx context.Context) error {
	count, err := j.deps.Approvals.ExpireDue(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		j.invalidate(ctx)
	}
	return nil
}

func (j *jobs) processApproved(ctx context.Context) error {
	batch, err := j.deps.Executor.ProcessApprovedActions(ctx)
	if errors.Is(err, service.ErrConfigMissing) || errors.Is(err, service.ErrBackendNotConfigured) {
		j.logger.Info().Err(err).Msg("approved backlog waiting for configuration")
		return nil
	}
	if err != nil {
		return err
	}
	if batch.Processed > 0 {
		j.logger.Info().
			Int("processed", batch.Processed).
			Int("successful", batch.Successful).
			Int("failed", batch.Failed).
			Int("skipped", batch.Skipped).
			Msg("approved backlog processed")
		j.invalidate(ctx)
	}
	return nil
}

func (j *jobs) contentSuggestion(ctx context.Context) error {
	if j.deps.Suggestions == nil {
		return nil
	}
	action, err := j.deps.Suggestions.GeneratePost(ctx)
	if err != nil {
		if errors.Is(err, service.ErrConfigMissing) {
			j.logger.Info().Msg("agent not configured, skipping content suggestion")
			return nil
		}
		return err
	}
	if action != nil {
		j.logger.Info().Str("action_id", action.ID).Str("status", string(action.Status)).Msg("content suggestion queued")
		j.invalidate(ctx)
	}
	return nil
}

// budgetOptimization alerts when the monthly spend crosses the threshold, then asks for budget changes.
func (j *jobs) budgetOptimization(ctx context.Context) error {
	cfg, ok, err := j.config(ctx)
	if err != nil || !ok {
		return err
	}

	budget := cfg.Budget.Data()
	status, err := j.deps.Budget.Status(ctx, budget.Total, budget.DailyLimit)
	if err != nil {
		return err
	}

	email := cfg.Approval.Data().Email
	threshold := budget.AlertThreshold
	if threshold > 0 && status.Monthly.PercentUsed >= threshold && email != "" && j.deps.Notifier != nil {
		if err := j.deps.Notifier.BudgetAlert(ctx, email, status, threshold); err != nil {
			j.logger.Warn().Err(err).Msg("failed to send budget alert")
		}
	}

	if j.deps.Suggestions == nil {
		return nil
	}
	actions, err := j.deps.Suggestions.GenerateBudget(ctx)
	if err != nil {
		return err
	}
	if len(actions) > 0 {
		j.logger.Info().Int("count", len(actions)).Msg("budget suggestions queued")
		j.invalidate(ctx)
	}
	return nil
}

func (j *jobs) dailyReport(ctx context.Context) error {
	return j.report(ctx, models.PeriodDaily)
}

func (j *jobs) weeklyReport(ctx context.Context) error {
	return j.report(ctx, models.PeriodWeekly)
}

// report mails the summary when enabled and then starts a new goal period.
func (j *jobs) report(ctx context.Context, period models.GoalPeriod) error {
	cfg, ok, err := j.config(ctx)
	if err != nil || !ok {
		return err
	}

	notifications := cfg.Notifications.Data()
	enabled := notifications.DailyReport
	if period == models.PeriodWeekly {
		enabled = notifications.WeeklyReport
	}
	email := cfg.Approval.Data().Email

	if enabled && email != "" && j.deps.Notifier != nil && j.deps.Dashboard != nil {
		report, err := j.deps.Dashboard.Report(ctx, period)
		if err != nil {
			return fmt.Errorf("build %s report: %w", period, err)
		}

		if period == models.PeriodWeekly {
			err = j.deps.Notifier.WeeklyReport(ctx, email, report)
		} else {
			err = j.deps.Notifier.DailyReport(ctx, email, report)
		}
		if err != nil {
			j.logger.Warn().Err(err).Str("period", string(period)).Msg("failed to send report")
		}
	}

	reset, err := j.deps.Settings.ResetGoalPeriod(ctx, period)
	if err != nil {
		return err
	}
	if reset > 0 {
		j.logger.Info().Int64("goals", reset).Str("period", string(period)).Msg("goal period reset")
		j.invalidate(ctx)
	}
	return nil
}

func (j *jobs) retention(ctx context.Context) error {
	pruned, err := j.deps.Audit.Prune(ctx, j.deps.AuditRetentionDays)
	if err != nil {
		return err
	}
	cleaned, err := j.deps.Budget.CleanOldEntries(ctx, j.deps.BudgetRetentionDays)
	if err != nil {
		return err
	}
	j.logger.Info().Int64("audit_entries", pruned).Int64("budget_entries", cleaned).Msg("retention applied")
	return nil
}

// config loads the agent configuration. ok is false when the agent is not configured yet.
func (j *jobs) config(ctx context.Context) (models.AgentConfig, bool, error) {
	cfg, err := j.deps.Settings.GetConfig(ctx)
	if err != nil {
		if errors.Is(err, service.ErrConfigMissing) {
			j.logger.Info().Msg("agent not configured, skipping job")
			return models.AgentConfig{}, false, nil
		}
		return models.AgentConfig{}, false, err
	}
	return cfg, true, nil
}

func (j *jobs) invalidate(ctx context.Context) {
	if j.deps.Dashboard != nil {
		j.deps.Dashboard.Invalidate(ctx)
	}
}
