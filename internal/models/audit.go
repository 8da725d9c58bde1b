package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEventType classifies audit log entries.
type AuditEventType string

const (
	AuditCreated  AuditEventType = "created"
	AuditApproved AuditEventType = "approved"
	AuditRejected AuditEventType = "rejected"
	AuditExecuted AuditEventType = "executed"
	AuditFailed   AuditEventType = "failed"
	AuditSystem   AuditEventType = "system"
)

// AuditEventTypes lists every audit event type.
var AuditEventTypes = []AuditEventType{AuditCreated, AuditApproved, AuditRejected, AuditExecuted, AuditFailed, AuditSystem}

// AuditLogEntry is an immutable record of something that happened to an action or the system.
type AuditLogEntry struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Timestamp time.Time         `gorm:"column:occurred_at;index;not null" json:"timestamp"`
	ActionID  *string           `gorm:"size:36;index" json:"action_id,omitempty"`
	EventType AuditEventType    `gorm:"size:16;index;not null" json:"event_type"`
	Details   datatypes.JSONMap `gorm:"type:json" json:"details"`
	UserID    string            `gorm:"size:128" json:"user_id,omitempty"`
}

// TableName pins the audit table name.
func (AuditLogEntry) TableName() string {
	return "audit_log"
}
