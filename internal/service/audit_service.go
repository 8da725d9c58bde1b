package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/repository"
)

// DefaultAuditRetentionDays is how long audit entries are kept when no retention is configured.
const DefaultAuditRetentionDays = 90

// AuditEvent captures the details required to persist an audit entry.
type AuditEvent struct {
	ActionID  string
	EventType models.AuditEventType
	Details   map[string]interface{}
	UserID    string
}

// AuditService is the write path and query surface of the audit log.
type AuditService interface {
	Log(ctx context.Context, event AuditEvent) (models.AuditLogEntry, error)
	LogCreated(ctx context.Context, action models.PendingAction) error
	LogApproved(ctx context.Context, actionID, approvedBy string) error
	LogRejected(ctx context.Context, actionID, rejectedBy, reason string) error
	LogExecuted(ctx context.Context, actionID string, result map[string]interface{}) error
	LogFailed(ctx context.Context, actionID, message string) error
	LogSystem(ctx context.Context, message string, details map[string]interface{}) error
	ByAction(ctx context.Context, actionID string) ([]models.AuditLogEntry, error)
	List(ctx context.Context, filter repository.AuditFilter) ([]models.AuditLogEntry, int64, error)
	Recent(ctx context.Context, limit int) ([]models.AuditLogEntry, error)
	Today(ctx context.Context) ([]models.AuditLogEntry, error)
	Stats(ctx context.Context) (dto.AuditStats, error)
	CountByEventType(ctx context.Context, since time.Time) (map[models.AuditEventType]int64, error)
	Prune(ctx context.Context, days int) (int64, error)
}

type auditService struct {
	repo   repository.AuditRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewAuditService constructs the audit log service.
func NewAuditService(repo repository.AuditRepository, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:   repo,
		logger: logger.With().Str("component", "audit_service").Logger(),
		now:    time.Now,
	}
}

func (s *auditService) Log(ctx context.Context, event AuditEvent) (models.AuditLogEntry, error) {
	if event.EventType == "" {
		return models.AuditLogEntry{}, fmt.Errorf("event type is required")
	}

	entry := models.AuditLogEntry{
		Timestamp: s.now().UTC(),
		EventType: event.EventType,
		Details:   sanitizeDetails(event.Details),
		UserID:    strings.TrimSpace(event.UserID),
	}
	if event.ActionID != "" {
		actionID := event.ActionID
		entry.ActionID = &actionID
	}

	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Error().Err(err).Str("event_type", string(event.EventType)).Msg("failed to persist audit entry")
		return models.AuditLogEntry{}, err
	}
	return entry, nil
}

func (s *auditService) LogCreated(ctx context.Context, action models.PendingAction) error {
	_, err := s.Log(ctx, AuditEvent{
		ActionID:  action.ID,
		EventType: models.AuditCreated,
		Details: map[string]interface{}{
			"type":       string(action.Type),
			"confidence": string(action.Confidence),
			"expires_at": action.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
	return err
}

func (s *auditService) LogApproved(ctx context.Context, actionID, approvedBy string) error {
	_, err := s.Log(ctx, AuditEvent{
		ActionID:  actionID,
		EventType: models.AuditApproved,
		Details:   map[string]interface{}{"approved_by": approvedBy},
		UserID:    approvedBy,
	})
	return err
}

func (s *auditService) LogRejected(ctx context.Context, actionID, rejectedBy, reason string) error {
	details := map[string]interface{}{"rejected_by": rejectedBy}
	if reason != "" {
		details["reason"] = reason
	}
	_, err := s.Log(ctx, AuditEvent{
		ActionID:  actionID,
		EventType: models.AuditRejected,
		Details:   details,
		UserID:    rejectedBy,
	})
	return err
}

func (s *auditService) LogExecuted(ctx context.Context, actionID string, result map[string]interface{}) error {
	_, err := s.Log(ctx, AuditEvent{
		ActionID:  actionID,
		EventType: models.AuditExecuted,
		Details:   map[string]interface{}{"result": result},
	})
	return err
}

func (s *auditService) LogFailed(ctx context.Context, actionID, message string) error {
	_, err := s.Log(ctx, AuditEvent{
		ActionID:  actionID,
		EventType: models.AuditFailed,
		Details:   map[string]interface{}{"error": message},
	})
	return err
}

func (s *auditService) LogSystem(ctx context.Context, message string, details map[string]interface{}) error {
	merged := make(map[string]interface{}, len(details)+1)
	for key, value := range details {
		merged[key] = value
	}
	merged["message"] = message

	_, err := s.Log(ctx, AuditEvent{EventType: models.AuditSystem, Details: merged, UserID: "system"})
	return err
}

func (s *auditService) ByAction(ctx context.Context, actionID string) ([]models.AuditLogEntry, error) {
	entries, _, err := s.repo.List(ctx, repository.AuditFilter{ActionID: actionID, PageSize: 500})
	return entries, err
}

func (s *auditService) List(ctx context.Context, filter repository.AuditFilter) ([]models.AuditLogEntry, int64, error) {
	return s.repo.List(ctx, filter)
}

func (s *auditService) Recent(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.Recent(ctx, limit)
}

func (s *auditService) Today(ctx context.Context) ([]models.AuditLogEntry, error) {
	since := startOfDay(s.now())
	entries, _, err := s.repo.List(ctx, repository.AuditFilter{Since: &since, PageSize: 500})
	return entries, err
}

func (s *auditService) Stats(ctx context.Context) (dto.AuditStats, error) {
	byType, err := s.repo.CountByEventType(ctx, time.Time{})
	if err != nil {
		return dto.AuditStats{}, err
	}

	var total int64
	for _, count := range byType {
		total += count
	}

	now := s.now()
	today, err := s.repo.CountSince(ctx, startOfDay(now))
	if err != nil {
		return dto.AuditStats{}, err
	}
	week, err := s.repo.CountSince(ctx, startOfDay(now).AddDate(0, 0, -7))
	if err != nil {
		return dto.AuditStats{}, err
	}

	return dto.AuditStats{Total: total, ByEventType: byType, Today: today, ThisWeek: week}, nil
}

func (s *auditService) CountByEventType(ctx context.Context, since time.Time) (map[models.AuditEventType]int64, error) {
	return s.repo.CountByEventType(ctx, since)
}

// Prune deletes entries older than days. It is the only deletion in the data model.
func (s *auditService) Prune(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultAuditRetentionDays
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days)

	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Int("retention_days", days).Msg("pruned audit log")
	}
	return deleted, nil
}

// sanitizeDetails masks secrets so approval tokens never reach the log.
func sanitizeDetails(details map[string]interface{}) datatypes.JSONMap {
	sanitized := datatypes.JSONMap{}
	for key, value := range details {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "token") || strings.Contains(lower, "password") || strings.Contains(lower, "secret") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
