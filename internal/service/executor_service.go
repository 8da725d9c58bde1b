package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/observability"
	"github.com/noah-isme/marketing-agent/internal/repository"
	"github.com/noah-isme/marketing-agent/pkg/adplatform"
)

// AdBackend performs the real-world side effects on the ad platform.
type AdBackend interface {
	CreatePost(ctx context.Context, req adplatform.PostRequest) (adplatform.PostResult, error)
	CreateCampaign(ctx context.Context, req adplatform.CampaignRequest) (adplatform.CampaignResult, error)
	UpdateCampaign(ctx context.Context, campaignID string, update adplatform.CampaignUpdate) (adplatform.UpdateResult, error)
	BoostPost(ctx context.Context, req adplatform.BoostRequest) (adplatform.BoostResult, error)
}

// ExecutorService performs approved actions exactly once and records the outcome.
type ExecutorService interface {
	Execute(ctx context.Context, action models.PendingAction) (dto.ExecutionResponse, error)
	ExecuteByID(ctx context.Context, id string) (dto.ExecutionResponse, error)
	ProcessApprovedActions(ctx context.Context) (dto.BatchResponse, error)
}

// ExecutorDependencies groups the collaborators of the executor.
type ExecutorDependencies struct {
	Actions   repository.ActionRepository
	Configs   repository.ConfigRepository
	Tx        repository.TransactionManager
	Approvals ApprovalService
	Budget    BudgetService
	Backend   AdBackend
	Media     MediaService
	Notifier  Notifier
	Events    EventPublisher
	// ClaimTTL is how long a claim may stay unresolved before the sweep marks the action failed.
	ClaimTTL  time.Duration
}

const defaultClaimTTL = 30 * time.Minute

// outcomeUnknown is recorded for claims whose outcome was never written.
const outcomeUnknown = "outcome unknown: recording failed"

type executorService struct {
	actions   repository.ActionRepository
	configs   repository.ConfigRepository
	tx        repository.TransactionManager
	approvals ApprovalService
	budget    BudgetService
	backend   AdBackend
	media     MediaService
	notifier  Notifier
	events    EventPublisher
	claimTTL  time.Duration
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// outcome is what a handler produced. spend, when set, is written with the executed transition.
type outcome struct {
	result map[string]interface{}
	spend  *SpendRecord
}

// NewExecutorService constructs the executor. Media, Notifier and Events are optional.
func NewExecutorService(deps ExecutorDependencies, logger zerolog.Logger) ExecutorService {
	claimTTL := deps.ClaimTTL
	if claimTTL <= 0 {
		claimTTL = defaultClaimTTL
	}
	return &executorService{
		actions:   deps.Actions,
		configs:   deps.Configs,
		tx:        deps.Tx,
		approvals: deps.Approvals,
		budget:    deps.Budget,
		backend:   deps.Backend,
		media:     deps.Media,
		notifier:  deps.Notifier,
		events:    deps.Events,
		claimTTL:  claimTTL,
		logger:    logger.With().Str("component", "executor_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/marketing-agent/internal/service/executor"),
		now:       time.Now,
	}
}

func (s *executorService) ExecuteByID(ctx context.Context, id string) (dto.ExecutionResponse, error) {
	action, err := s.actions.GetByID(ctx, id)
	if err != nil {
		return dto.ExecutionResponse{}, err
	}
	if action == nil {
		return dto.ExecutionResponse{}, ErrNotFound
	}
	return s.Execute(ctx, *action)
}

// Execute claims the action, performs it and records executed or failed. Handler failures are
// recorded on the action and are not returned. Storage and configuration failures are returned
// and, when they happen before the claim, leave the action approved for a later run.
func (s *executorService) Execute(ctx context.Context, action models.PendingAction) (dto.ExecutionResponse, error) {
	response := dto.ExecutionResponse{ActionID: action.ID, Type: action.Type}
	if action.Status != models.StatusApproved {
		response.Skipped = true
		return response, nil
	}

	ctx, span := s.tracer.Start(ctx, "executor.execute", trace.WithAttributes(
		attribute.String("action.id", action.ID),
		attribute.String("action.type", string(action.Type)),
	))
	defer span.End()

	cfg, err := s.configs.Get(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "config unavailable")
		return response, err
	}
	if cfg == nil {
		span.SetStatus(codes.Error, "agent not configured")
		return response, ErrConfigMissing
	}
	if s.backend == nil {
		span.SetStatus(codes.Error, "backend not configured")
		return response, ErrBackendNotConfigured
	}

	claimToken := uuid.NewString()
	claimed, err := s.actions.Claim(ctx, action.ID, claimToken, s.now().UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return response, err
	}
	if !claimed {
		s.logger.Debug().Str("action_id", action.ID).Msg("action already claimed, skipping")
		response.Skipped = true
		return response, nil
	}

	result, execErr := s.dispatch(ctx, action, cfg)
	if execErr != nil {
		message := execErr.Error()
		if err := s.approvals.MarkFailed(ctx, action.ID, claimToken, message); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "record failure failed")
			return response, err
		}
		response.Error = message
		action.Status = models.StatusFailed
		observability.ActionExecutions().WithLabelValues(string(action.Type), "failed").Inc()
		span.SetStatus(codes.Error, message)
		s.logger.Warn().Str("action_id", action.ID).Str("type", string(action.Type)).Str("error", message).Msg("action execution failed")
	} else {
		err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.approvals.MarkExecuted(txCtx, action.ID, claimToken, result.result); err != nil {
				return err
			}
			if result.spend != nil {
				if _, err := s.budget.RecordSpending(txCtx, *result.spend); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "record success failed")
			s.logger.Error().Err(err).Str("action_id", action.ID).Msg("action performed but outcome not recorded")
			return response, err
		}
		response.Success = true
		response.Result = result.result
		action.Status = models.StatusExecuted
		observability.ActionExecutions().WithLabelValues(string(action.Type), "executed").Inc()
		s.logger.Info().Str("action_id", action.ID).Str("type", string(action.Type)).Msg("action executed")
	}

	s.confirm(ctx, cfg, action, response)
	if s.events != nil {
		s.events.Publish(ctx, action)
	}
	return response, nil
}

// ProcessApprovedActions executes the approved backlog sequentially, oldest first.
func (s *executorService) ProcessApprovedActions(ctx context.Context) (dto.BatchResponse, error) {
	batch := dto.BatchResponse{Results: []dto.ExecutionResponse{}}

	approved, err := s.actions.ListByStatus(ctx, models.StatusApproved, 0)
	if err != nil {
		return batch, err
	}

	for i := len(approved) - 1; i >= 0; i-- {
		action := approved[i]
		if action.ClaimedAt != nil {
			response, reaped, err := s.reapClaim(ctx, action)
			if err != nil {
				return batch, err
			}
			if !reaped {
				batch.Skipped++
				continue
			}
			batch.Processed++
			batch.Failed++
			batch.Results = append(batch.Results, response)
			continue
		}

		response, err := s.Execute(ctx, action)
		if err != nil {
			return batch, err
		}
		if response.Skipped {
			batch.Skipped++
			continue
		}

		batch.Processed++
		if response.Success {
			batch.Successful++
		} else {
			batch.Failed++
		}
		batch.Results = append(batch.Results, response)
	}

	if batch.Processed > 0 {
		s.logger.Info().
			Int("processed", batch.Processed).
			Int("successful", batch.Successful).
			Int("failed", batch.Failed).
			Msg("approved backlog processed")
	}
	return batch, nil
}

// reapClaim fails an action whose claim outlived the claim TTL. The side effect may or may not
// have happened, so the action is never retried. A younger claim is still in flight.
func (s *executorService) reapClaim(ctx context.Context, action models.PendingAction) (dto.ExecutionResponse, bool, error) {
	response := dto.ExecutionResponse{ActionID: action.ID, Type: action.Type}
	age := s.now().UTC().Sub(action.ClaimedAt.UTC())
	if age < s.claimTTL {
		s.logger.Debug().Str("action_id", action.ID).Dur("claim_age", age).Msg("action claimed by a running execution, skipping")
		return response, false, nil
	}

	err := s.approvals.MarkFailed(ctx, action.ID, action.ClaimToken, outcomeUnknown)
	if errors.Is(err, ErrAlreadyDecided) {
		return response, false, nil
	}
	if err != nil {
		return response, false, err
	}

	s.logger.Warn().
		Str("action_id", action.ID).
		Time("claimed_at", *action.ClaimedAt).
		Msg("stale execution claim marked failed")
	observability.ActionExecutions().WithLabelValues(string(action.Type), "failed").Inc()

	response.Error = outcomeUnknown
	action.Status = models.StatusFailed
	if s.events != nil {
		s.events.Publish(ctx, action)
	}
	return response, true, nil
}

func (s *executorService) dispatch(ctx context.Context, action models.PendingAction, cfg *models.AgentConfig) (outcome, error) {
	payload, err := action.Decode()
	if err != nil {
		return outcome{}, fmt.Errorf("%w: %v", ErrNotImplemented, err)
	}

	switch p := payload.(type) {
	case models.CreatePostPayload:
		return s.createPost(ctx, p)
	case models.BoostPostPayload:
		return s.boostPost(ctx, p, cfg)
	case models.CreateCampaignPayload:
		return s.createCampaign(ctx, p)
	case models.AdjustBudgetPayload:
		return s.adjustBudget(ctx, p)
	case models.PauseCampaignPayload:
		return s.setCampaignStatus(ctx, p.CampaignID, adplatform.StatusPaused)
	case models.ResumeCampaignPayload:
		return s.setCampaignStatus(ctx, p.CampaignID, adplatform.StatusActive)
	case models.CreateAdPayload, models.ModifyTargetingPayload:
		return outcome{}, fmt.Errorf("%w: %s", ErrNotImplemented, action.Type)
	default:
		return outcome{}, fmt.Errorf("%w: %s", ErrNotImplemented, action.Type)
	}
}

func (s *executorService) createPost(ctx context.Context, p models.CreatePostPayload) (outcome, error) {
	req := adplatform.PostRequest{Message: p.Content, Link: p.Link, ImageURL: p.ImageURL}

	if p.ScheduledTime != "" {
		scheduled, err := time.Parse(time.RFC3339, p.ScheduledTime)
		if err != nil {
			return outcome{}, fmt.Errorf("invalid scheduled time %q: %w", p.ScheduledTime, err)
		}
		req.ScheduledTime = &scheduled
	}

	if req.ImageURL != "" && s.media != nil {
		hosted, err := s.media.StageImage(ctx, req.ImageURL)
		if err != nil {
			s.logger.Warn().Err(err).Str("image_url", req.ImageURL).Msg("image not re-hosted, using source url")
		} else {
			req.ImageURL = hosted
		}
	}

	result, err := s.backend.CreatePost(ctx, req)
	if err != nil {
		return outcome{}, err
	}
	return outcome{result: map[string]interface{}{"post_id": result.PostID}}, nil
}

func (s *executorService) boostPost(ctx context.Context, p models.BoostPostPayload, cfg *models.AgentConfig) (outcome, error) {
	amount := models.ToMinorUnits(p.Budget)
	exceeded, err := s.budget.WouldExceedDailyLimit(ctx, amount, cfg.Budget.Data().DailyLimit)
	if err != nil {
		return outcome{}, err
	}
	if exceeded {
		return outcome{}, fmt.Errorf("%w: boost of %s", ErrBudgetExceeded, models.FormatMinorUnits(amount))
	}

	result, err := s.backend.BoostPost(ctx, adplatform.BoostRequest{
		PostID:       p.PostID,
		Budget:       amount,
		DurationDays: p.Duration,
		Targeting:    p.Targeting,
	})
	if err != nil {
		return outcome{}, err
	}

	return outcome{
		result: map[string]interface{}{
			"post_id":     p.PostID,
			"campaign_id": result.CampaignID,
			"ad_set_id":   result.AdSetID,
			"ad_id":       result.AdID,
		},
		spend: &SpendRecord{
			Amount:      amount,
			CampaignID:  result.CampaignID,
			Description: "Boost post " + p.PostID,
		},
	}, nil
}

func (s *executorService) createCampaign(ctx context.Context, p models.CreateCampaignPayload) (outcome, error) {
	result, err := s.backend.CreateCampaign(ctx, adplatform.CampaignRequest{
		Name:                strings.TrimSpace(p.Name),
		Objective:           p.Objective,
		Status:              adplatform.StatusPaused,
		DailyBudget:         models.ToMinorUnits(p.DailyBudget),
		SpecialAdCategories: []string{"NONE"},
	})
	if err != nil {
		return outcome{}, err
	}
	return outcome{result: map[string]interface{}{"campaign_id": result.CampaignID, "status": result.Status}}, nil
}

func (s *executorService) adjustBudget(ctx context.Context, p models.AdjustBudgetPayload) (outcome, error) {
	budget := models.ToMinorUnits(p.NewBudget)
	result, err := s.backend.UpdateCampaign(ctx, p.CampaignID, adplatform.CampaignUpdate{DailyBudget: &budget})
	if err != nil {
		return outcome{}, err
	}
	return outcome{result: map[string]interface{}{
		"campaign_id":  result.CampaignID,
		"success":      result.Success,
		"daily_budget": budget,
	}}, nil
}

func (s *executorService) setCampaignStatus(ctx context.Context, campaignID, status string) (outcome, error) {
	result, err := s.backend.UpdateCampaign(ctx, campaignID, adplatform.CampaignUpdate{Status: status})
	if err != nil {
		return outcome{}, err
	}
	return outcome{result: map[string]interface{}{
		"campaign_id": result.CampaignID,
		"success":     result.Success,
		"status":      status,
	}}, nil
}

func (s *executorService) confirm(ctx context.Context, cfg *models.AgentConfig, action models.PendingAction, response dto.ExecutionResponse) {
	if s.notifier == nil {
		return
	}
	email := cfg.Approval.Data().Email
	if email == "" || !cfg.Notifications.Data().InstantAlerts {
		return
	}
	if err := s.notifier.Confirmation(ctx, email, action, response); err != nil {
		s.logger.Warn().Err(err).Str("action_id", action.ID).Msg("confirmation email not sent")
	}
}
