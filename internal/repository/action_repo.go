package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/marketing-agent/internal/models"
)

// TransitionFields carries the columns written alongside a status change.
type TransitionFields struct {
	At         time.Time
	ApprovedBy string
	Result     datatypes.JSON
	// ClaimToken, when set, restricts executed/failed transitions to the claim holder.
	ClaimToken string
}

// ActionRepository is the durable store for pending actions.
type ActionRepository interface {
	Create(ctx context.Context, action *models.PendingAction) error
	GetByID(ctx context.Context, id string) (*models.PendingAction, error)
	GetByToken(ctx context.Context, token string) (*models.PendingAction, error)
	ListByStatus(ctx context.Context, status models.ActionStatus, limit int) ([]models.PendingAction, error)
	ListPending(ctx context.Context) ([]models.PendingAction, error)
	ListRecent(ctx context.Context, limit int) ([]models.PendingAction, error)
	Transition(ctx context.Context, id string, from, to models.ActionStatus, fields TransitionFields) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) ([]string, error)
	Claim(ctx context.Context, id, token string, now time.Time) (bool, error)
	UpdatePayload(ctx context.Context, id string, payload datatypes.JSON) (bool, error)
	CountByStatus(ctx context.Context) (map[models.ActionStatus]int64, error)
}

type actionRepository struct {
	db *gorm.DB
}

// NewActionRepository constructs a repository backed by GORM.
func NewActionRepository(db *gorm.DB) ActionRepository {
	return &actionRepository{db: db}
}

func (r *actionRepository) Create(ctx context.Context, action *models.PendingAction) error {
	return storageError("create action", GetDB(ctx, r.db).Create(action).Error)
}

func (r *actionRepository) GetByID(ctx context.Context, id string) (*models.PendingAction, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *actionRepository) GetByToken(ctx context.Context, token string) (*models.PendingAction, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx, "approval_token = ?", token)
}

func (r *actionRepository) findOne(ctx context.Context, query string, arg interface{}) (*models.PendingAction, error) {
	var rows []models.PendingAction
	if err := GetDB(ctx, r.db).Where(query, arg).Limit(1).Find(&rows).Error; err != nil {
		return nil, storageError("find action", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *actionRepository) ListByStatus(ctx context.Context, status models.ActionStatus, limit int) ([]models.PendingAction, error) {
	query := GetDB(ctx, r.db).Where("status = ?", status).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var actions []models.PendingAction
	if err := query.Find(&actions).Error; err != nil {
		return nil, storageError("list actions by status", err)
	}
	return actions, nil
}

func (r *actionRepository) ListPending(ctx context.Context) ([]models.PendingAction, error) {
	return r.ListByStatus(ctx, models.StatusPending, 0)
}

func (r *actionRepository) ListRecent(ctx context.Context, limit int) ([]models.PendingAction, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	var actions []models.PendingAction
	if err := GetDB(ctx, r.db).Order("created_at DESC").Limit(limit).Find(&actions).Error; err != nil {
		return nil, storageError("list recent actions", err)
	}
	return actions, nil
}

func (r *actionRepository) Transition(ctx context.Context, id string, from, to models.ActionStatus, fields TransitionFields) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	at := fields.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	updates := map[string]interface{}{"status": to, "updated_at": at}
	switch to {
	case models.StatusApproved:
		updates["approved_at"] = at
		updates["approved_by"] = fields.ApprovedBy
	case models.StatusExecuted, models.StatusFailed:
		updates["executed_at"] = at
		updates["execution_result"] = fields.Result
	}

	query := GetDB(ctx, r.db).Model(&models.PendingAction{}).Where("id = ? AND status = ?", id, from)
	if fields.ClaimToken != "" {
		query = query.Where("claim_token = ?", fields.ClaimToken)
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return false, storageError("transition action", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ExpireDue moves every overdue pending action to expired, one guarded update per row,
// and returns the ids that this call actually expired.
func (r *actionRepository) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	var candidates []string
	if err := GetDB(ctx, r.db).
		Model(&models.PendingAction{}).
		Where("status = ? AND expires_at < ?", models.StatusPending, now).
		Order("expires_at ASC").
		Pluck("id", &candidates).Error; err != nil {
		return nil, storageError("select due actions", err)
	}

	expired := make([]string, 0, len(candidates))
	for _, id := range candidates {
		result := GetDB(ctx, r.db).
			Model(&models.PendingAction{}).
			Where("id = ? AND status = ? AND expires_at < ?", id, models.StatusPending, now).
			Updates(map[string]interface{}{"status": models.StatusExpired, "updated_at": now})
		if result.Error != nil {
			return expired, storageError("expire action", result.Error)
		}
		if result.RowsAffected > 0 {
			expired = append(expired, id)
		}
	}

	return expired, nil
}

func (r *actionRepository) Claim(ctx context.Context, id, token string, now time.Time) (bool, error) {
	result := GetDB(ctx, r.db).
		Model(&models.PendingAction{}).
		Where("id = ? AND status = ? AND claimed_at IS NULL", id, models.StatusApproved).
		Updates(map[string]interface{}{"claimed_at": now, "claim_token": token, "updated_at": now})
	if result.Error != nil {
		return false, storageError("claim action", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *actionRepository) UpdatePayload(ctx context.Context, id string, payload datatypes.JSON) (bool, error) {
	result := GetDB(ctx, r.db).
		Model(&models.PendingAction{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]interface{}{"payload": payload, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return false, storageError("update action payload", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *actionRepository) CountByStatus(ctx context.Context) (map[models.ActionStatus]int64, error) {
	type row struct {
		Status models.ActionStatus
		Count  int64
	}

	var rows []row
	if err := GetDB(ctx, r.db).
		Model(&models.PendingAction{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, storageError("count actions", err)
	}

	counts := make(map[models.ActionStatus]int64, len(models.ActionStatuses))
	for _, status := range models.ActionStatuses {
		counts[status] = 0
	}
	for _, item := range rows {
		counts[item.Status] = item.Count
	}
	return counts, nil
}
