package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/observability"
	"github.com/noah-isme/marketing-agent/internal/repository"
)

// QueueRequest is a suggested action to place in the approval queue.
type QueueRequest struct {
	Payload        models.Payload
	Reasoning      string
	ExpectedImpact string
	Confidence     models.Confidence
	// TimeoutHours overrides the configured approval window when positive.
	TimeoutHours int
}

// ApprovalService owns the pending action lifecycle up to and including the execution outcome.
type ApprovalService interface {
	Queue(ctx context.Context, req QueueRequest) (models.PendingAction, error)
	Approve(ctx context.Context, token, approvedBy string) (models.PendingAction, error)
	ApproveByID(ctx context.Context, id, approvedBy string) (models.PendingAction, error)
	Reject(ctx context.Context, token, rejectedBy, reason string) (models.PendingAction, error)
	RejectByID(ctx context.Context, id, rejectedBy, reason string) (models.PendingAction, error)
	EditAndApprove(ctx context.Context, token, content, approvedBy string) (models.PendingAction, error)
	MarkExecuted(ctx context.Context, id, claimToken string, result map[string]interface{}) error
	MarkFailed(ctx context.Context, id, claimToken, message string) error
	ExpireDue(ctx context.Context) (int, error)
	GetByID(ctx context.Context, id string) (*models.PendingAction, error)
	GetByToken(ctx context.Context, token string) (*models.PendingAction, error)
	ListPending(ctx context.Context) ([]models.PendingAction, error)
	ListRecent(ctx context.Context, limit int) ([]models.PendingAction, error)
	ListByStatus(ctx context.Context, status models.ActionStatus, limit int) ([]models.PendingAction, error)
	Stats(ctx context.Context) (map[models.ActionStatus]int64, error)
	RequiresApproval(ctx context.Context, actionType models.ActionType, amount int64) (bool, error)
	Links(action models.PendingAction) dto.ActionLinks
}

// ApprovalDependencies groups the collaborators of the approval queue.
type ApprovalDependencies struct {
	Actions   repository.ActionRepository
	Configs   repository.ConfigRepository
	Tx        repository.TransactionManager
	Audit     AuditService
	Notifier  Notifier
	Events    EventPublisher
	Validator *validator.Validate
	BaseURL   string
}

type approvalService struct {
	actions   repository.ActionRepository
	configs   repository.ConfigRepository
	tx        repository.TransactionManager
	audit     AuditService
	notifier  Notifier
	events    EventPublisher
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	baseURL   string
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newToken  func() (string, error)
}

// NewApprovalService constructs the approval queue. Notifier and Events are optional.
func NewApprovalService(deps ApprovalDependencies, logger zerolog.Logger) ApprovalService {
	validate := deps.Validator
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	return &approvalService{
		actions:   deps.Actions,
		configs:   deps.Configs,
		tx:        deps.Tx,
		audit:     deps.Audit,
		notifier:  deps.Notifier,
		events:    deps.Events,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		baseURL:   strings.TrimRight(deps.BaseURL, "/"),
		logger:    logger.With().Str("component", "approval_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/marketing-agent/internal/service/approval"),
		now:       time.Now,
		newToken:  newApprovalToken,
	}
}

func (s *approvalService) Queue(ctx context.Context, req QueueRequest) (models.PendingAction, error) {
	if req.Payload == nil {
		return models.PendingAction{}, fmt.Errorf("%w: payload is required", ErrInvalidAction)
	}

	actionType := req.Payload.ActionType()
	ctx, span := s.tracer.Start(ctx, "approvals.queue", trace.WithAttributes(attribute.String("action.type", string(actionType))))
	defer span.End()

	if !actionType.Valid() {
		return models.PendingAction{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidAction, actionType)
	}
	if err := s.validator.Struct(req.Payload); err != nil {
		return models.PendingAction{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	confidence := req.Confidence
	if confidence == "" {
		confidence = models.ConfidenceMedium
	}
	if !confidence.Valid() {
		return models.PendingAction{}, fmt.Errorf("%w: unsupported confidence %q", ErrInvalidAction, confidence)
	}

	cfg, err := s.requireConfig(ctx)
	if err != nil {
		return models.PendingAction{}, err
	}

	timeout := req.TimeoutHours
	if timeout <= 0 {
		timeout = cfg.TimeoutHours()
	}

	payload, err := models.EncodePayload(req.Payload)
	if err != nil {
		return models.PendingAction{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	token, err := s.newToken()
	if err != nil {
		return models.PendingAction{}, fmt.Errorf("generate approval token: %w", err)
	}

	now := s.now().UTC()
	action := models.PendingAction{
		ID:             uuid.NewString(),
		ApprovalToken:  token,
		Type:           actionType,
		Payload:        payload,
		Reasoning:      strings.TrimSpace(req.Reasoning),
		ExpectedImpact: strings.TrimSpace(req.ExpectedImpact),
		Confidence:     confidence,
		Status:         models.StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(timeout) * time.Hour),
		UpdatedAt:      now,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.actions.Create(txCtx, &action); err != nil {
			return err
		}
		return s.audit.LogCreated(txCtx, action)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue failed")
		return models.PendingAction{}, err
	}

	observability.ActionsQueued().WithLabelValues(string(actionType)).Inc()
	span.SetAttributes(attribute.String("action.id", action.ID))
	s.logger.Info().Str("action_id", action.ID).Str("type", string(actionType)).Time("expires_at", action.ExpiresAt).Msg("action queued for approval")

	s.notifyApprovalRequest(ctx, *cfg, action)
	s.publish(ctx, action)

	return action, nil
}

func (s *approvalService) notifyApprovalRequest(ctx context.Context, cfg models.AgentConfig, action models.PendingAction) {
	email := cfg.Approval.Data().Email
	if s.notifier == nil || email == "" {
		return
	}
	if err := s.notifier.ApprovalRequest(ctx, email, action, s.Links(action)); err != nil {
		s.logger.Warn().Err(err).Str("action_id", action.ID).Msg("approval request email not sent")
	}
}

func (s *approvalService) Approve(ctx context.Context, token, approvedBy string) (models.PendingAction, error) {
	return s.decide(ctx, s.byToken(token), models.StatusApproved, approvedBy, "", nil)
}

func (s *approvalService) ApproveByID(ctx context.Context, id, approvedBy string) (models.PendingAction, error) {
	return s.decide(ctx, s.byID(id), models.StatusApproved, approvedBy, "", nil)
}

func (s *approvalService) Reject(ctx context.Context, token, rejectedBy, reason string) (models.PendingAction, error) {
	return s.decide(ctx, s.byToken(token), models.StatusRejected, rejectedBy, reason, nil)
}

func (s *approvalService) RejectByID(ctx context.Context, id, rejectedBy, reason string) (models.PendingAction, error) {
	return s.decide(ctx, s.byID(id), models.StatusRejected, rejectedBy, reason, nil)
}

// EditAndApprove replaces the content of a pending create_post action and approves it in one transaction.
func (s *approvalService) EditAndApprove(ctx context.Context, token, content, approvedBy string) (models.PendingAction, error) {
	cleaned := stripHTML(s.sanitizer, content)
	if cleaned == "" {
		return models.PendingAction{}, fmt.Errorf("%w: content is empty", ErrInvalidAction)
	}

	edit := func(txCtx context.Context, action *models.PendingAction) error {
		if action.Type != models.ActionCreatePost {
			return ErrEditNotAllowed
		}
		decoded, err := action.Decode()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		post := decoded.(models.CreatePostPayload)
		post.Content = cleaned

		payload, err := models.EncodePayload(post)
		if err != nil {
			return err
		}
		changed, err := s.actions.UpdatePayload(txCtx, action.ID, payload)
		if err != nil {
			return err
		}
		if !changed {
			return ErrAlreadyDecided
		}
		action.Payload = payload

		_, err = s.audit.Log(txCtx, AuditEvent{
			ActionID:  action.ID,
			EventType: models.AuditSystem,
			Details:   map[string]interface{}{"message": "content edited before approval", "edited_by": approvedBy},
			UserID:    approvedBy,
		})
		return err
	}

	return s.decide(ctx, s.byToken(token), models.StatusApproved, approvedBy, "", edit)
}

type actionLookup func(ctx context.Context) (*models.PendingAction, error)

func (s *approvalService) byToken(token string) actionLookup {
	return func(ctx context.Context) (*models.PendingAction, error) {
		return s.actions.GetByToken(ctx, strings.TrimSpace(token))
	}
}

func (s *approvalService) byID(id string) actionLookup {
	return func(ctx context.Context) (*models.PendingAction, error) {
		return s.actions.GetByID(ctx, strings.TrimSpace(id))
	}
}

// decide moves a pending action to approved or rejected. Approving after the deadline
// commits the move to expired and then reports ErrExpired.
func (s *approvalService) decide(ctx context.Context, lookup actionLookup, target models.ActionStatus, by, reason string, edit func(context.Context, *models.PendingAction) error) (models.PendingAction, error) {
	ctx, span := s.tracer.Start(ctx, "approvals.decide", trace.WithAttributes(attribute.String("decision", string(target))))
	defer span.End()

	by = strings.TrimSpace(by)
	if by == "" {
		by = "unknown"
	}

	var (
		decided models.PendingAction
		expired bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		action, err := lookup(txCtx)
		if err != nil {
			return err
		}
		if action == nil {
			return ErrNotFound
		}
		if action.Status != models.StatusPending {
			return ErrAlreadyDecided
		}

		now := s.now().UTC()
		if target == models.StatusApproved && action.IsExpired(now) {
			changed, err := s.actions.Transition(txCtx, action.ID, models.StatusPending, models.StatusExpired, repository.TransitionFields{At: now})
			if err != nil {
				return err
			}
			if !changed {
				return ErrAlreadyDecided
			}
			action.Status = models.StatusExpired
			action.UpdatedAt = now
			decided = *action
			expired = true
			_, err = s.audit.Log(txCtx, AuditEvent{
				ActionID:  action.ID,
				EventType: models.AuditSystem,
				Details:   map[string]interface{}{"message": "approval attempted after expiry", "attempted_by": by},
				UserID:    by,
			})
			return err
		}

		if edit != nil {
			if err := edit(txCtx, action); err != nil {
				return err
			}
		}

		changed, err := s.actions.Transition(txCtx, action.ID, models.StatusPending, target, repository.TransitionFields{At: now, ApprovedBy: by})
		if err != nil {
			return err
		}
		if !changed {
			return ErrAlreadyDecided
		}

		action.Status = target
		action.UpdatedAt = now
		if target == models.StatusApproved {
			action.ApprovedAt = &now
			action.ApprovedBy = by
			err = s.audit.LogApproved(txCtx, action.ID, by)
		} else {
			err = s.audit.LogRejected(txCtx, action.ID, by, reason)
		}
		decided = *action
		return err
	})
	if err != nil {
		if !isDecisionError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "decision failed")
		}
		return models.PendingAction{}, err
	}

	span.SetAttributes(attribute.String("action.id", decided.ID))
	if expired {
		observability.ActionDecisions().WithLabelValues(string(models.StatusExpired)).Inc()
		s.logger.Info().Str("action_id", decided.ID).Str("by", by).Msg("approval attempted after expiry")
		s.publish(ctx, decided)
		return decided, ErrExpired
	}

	observability.ActionDecisions().WithLabelValues(string(target)).Inc()
	s.logger.Info().Str("action_id", decided.ID).Str("status", string(target)).Str("by", by).Msg("action decided")
	s.publish(ctx, decided)
	return decided, nil
}

func isDecisionError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyDecided) || errors.Is(err, ErrEditNotAllowed) || errors.Is(err, ErrInvalidAction)
}

// MarkExecuted records a successful execution. claimToken restricts the write to the executor holding the claim.
func (s *approvalService) MarkExecuted(ctx context.Context, id, claimToken string, result map[string]interface{}) error {
	if result == nil {
		result = map[string]interface{}{}
	}
	return s.finish(ctx, id, claimToken, models.StatusExecuted, result, func(txCtx context.Context) error {
		return s.audit.LogExecuted(txCtx, id, result)
	})
}

// MarkFailed records a failed execution with the error message as the result.
func (s *approvalService) MarkFailed(ctx context.Context, id, claimToken, message string) error {
	result := map[string]interface{}{"error": message}
	return s.finish(ctx, id, claimToken, models.StatusFailed, result, func(txCtx context.Context) error {
		return s.audit.LogFailed(txCtx, id, message)
	})
}

func (s *approvalService) finish(ctx context.Context, id, claimToken string, target models.ActionStatus, result map[string]interface{}, audit func(context.Context) error) error {
	raw := mustJSON(result)
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		changed, err := s.actions.Transition(txCtx, id, models.StatusApproved, target, repository.TransitionFields{
			At:         s.now().UTC(),
			Result:     raw,
			ClaimToken: claimToken,
		})
		if err != nil {
			return err
		}
		if !changed {
			return ErrAlreadyDecided
		}
		return audit(txCtx)
	})
}

// ExpireDue moves overdue pending actions to expired and returns how many this call moved.
func (s *approvalService) ExpireDue(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "approvals.expire_due")
	defer span.End()

	var expired []string
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		ids, err := s.actions.ExpireDue(txCtx, s.now().UTC())
		if err != nil {
			return err
		}
		expired = ids
		if len(ids) == 0 {
			return nil
		}
		return s.audit.LogSystem(txCtx, "expired pending actions", map[string]interface{}{
			"count":      len(ids),
			"action_ids": ids,
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "expire failed")
		return 0, err
	}

	span.SetAttributes(attribute.Int("actions.expired", len(expired)))
	if len(expired) > 0 {
		observability.ActionsExpired().Add(float64(len(expired)))
		s.logger.Info().Int("count", len(expired)).Msg("expired pending actions")
	}
	for _, id := range expired {
		s.publish(ctx, models.PendingAction{ID: id, Status: models.StatusExpired})
	}
	return len(expired), nil
}

func (s *approvalService) GetByID(ctx context.Context, id string) (*models.PendingAction, error) {
	return s.actions.GetByID(ctx, id)
}

func (s *approvalService) GetByToken(ctx context.Context, token string) (*models.PendingAction, error) {
	return s.actions.GetByToken(ctx, token)
}

func (s *approvalService) ListPending(ctx context.Context) ([]models.PendingAction, error) {
	return s.actions.ListPending(ctx)
}

func (s *approvalService) ListRecent(ctx context.Context, limit int) ([]models.PendingAction, error) {
	return s.actions.ListRecent(ctx, limit)
}

func (s *approvalService) ListByStatus(ctx context.Context, status models.ActionStatus, limit int) ([]models.PendingAction, error) {
	return s.actions.ListByStatus(ctx, status, limit)
}

func (s *approvalService) Stats(ctx context.Context) (map[models.ActionStatus]int64, error) {
	return s.actions.CountByStatus(ctx)
}

// RequiresApproval consults the live configuration. It never mutates state.
func (s *approvalService) RequiresApproval(ctx context.Context, actionType models.ActionType, amount int64) (bool, error) {
	cfg, err := s.requireConfig(ctx)
	if err != nil {
		return false, err
	}
	return cfg.RequiresApproval(actionType, amount), nil
}

func (s *approvalService) Links(action models.PendingAction) dto.ActionLinks {
	links := dto.ActionLinks{
		Approve: s.baseURL + "/webhook/approve/" + action.ApprovalToken,
		Reject:  s.baseURL + "/webhook/reject/" + action.ApprovalToken,
		View:    s.baseURL + "/webhook/view/" + action.ApprovalToken,
	}
	if action.Type == models.ActionCreatePost {
		links.Edit = s.baseURL + "/webhook/edit/" + action.ApprovalToken
	}
	return links
}

func (s *approvalService) requireConfig(ctx context.Context) (*models.AgentConfig, error) {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigMissing
	}
	return cfg, nil
}

func (s *approvalService) publish(ctx context.Context, action models.PendingAction) {
	if s.events != nil {
		s.events.Publish(ctx, action)
	}
}

func newApprovalToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
