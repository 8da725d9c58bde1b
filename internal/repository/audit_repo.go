package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/marketing-agent/internal/models"
)

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	ActionID  string
	EventType models.AuditEventType
	Since     *time.Time
	Until     *time.Time
	Page      int
	PageSize  int
}

// AuditRepository appends and queries audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, filter AuditFilter) ([]models.AuditLogEntry, int64, error)
	Recent(ctx context.Context, limit int) ([]models.AuditLogEntry, error)
	CountByEventType(ctx context.Context, since time.Time) (map[models.AuditEventType]int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository constructs a repository backed by GORM.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return storageError("create audit entry", GetDB(ctx, r.db).Create(entry).Error)
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]models.AuditLogEntry, int64, error) {
	query := GetDB(ctx, r.db).Model(&models.AuditLogEntry{})
	if filter.ActionID != "" {
		query = query.Where("action_id = ?", filter.ActionID)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.Since != nil {
		query = query.Where("occurred_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("occurred_at < ?", *filter.Until)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storageError("count audit entries", err)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 50
	}

	var entries []models.AuditLogEntry
	if err := query.Order("occurred_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error; err != nil {
		return nil, 0, storageError("list audit entries", err)
	}
	return entries, total, nil
}

func (r *auditRepository) Recent(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	entries, _, err := r.List(ctx, AuditFilter{PageSize: limit})
	return entries, err
}

// CountByEventType groups entries by type. A zero since counts the whole log.
func (r *auditRepository) CountByEventType(ctx context.Context, since time.Time) (map[models.AuditEventType]int64, error) {
	type row struct {
		EventType models.AuditEventType
		Count     int64
	}

	query := GetDB(ctx, r.db).Model(&models.AuditLogEntry{})
	if !since.IsZero() {
		query = query.Where("occurred_at >= ?", since)
	}

	var rows []row
	if err := query.
		Select("event_type, COUNT(*) AS count").
		Group("event_type").
		Scan(&rows).Error; err != nil {
		return nil, storageError("count audit entries by type", err)
	}

	counts := make(map[models.AuditEventType]int64, len(rows))
	for _, item := range rows {
		counts[item.EventType] = item.Count
	}
	return counts, nil
}

func (r *auditRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).
		Model(&models.AuditLogEntry{}).
		Where("occurred_at >= ?", since).
		Count(&count).Error; err != nil {
		return 0, storageError("count recent audit entries", err)
	}
	return count, nil
}

func (r *auditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := GetDB(ctx, r.db).Where("occurred_at < ?", cutoff).Delete(&models.AuditLogEntry{})
	if result.Error != nil {
		return 0, storageError("prune audit entries", result.Error)
	}
	return result.RowsAffected, nil
}
