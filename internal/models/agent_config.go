package models

import (
	"time"

	"gorm.io/datatypes"
)

// DefaultAgentConfigID is the primary key of the single configuration row.
const DefaultAgentConfigID = "default"

// BudgetSettings holds spend limits in minor currency units.
type BudgetSettings struct {
	Total          int64  `json:"total" validate:"gte=0"`
	Period         string `json:"period" validate:"omitempty,oneof=monthly weekly"`
	DailyLimit     int64  `json:"daily_limit" validate:"gte=0"`
	AlertThreshold int    `json:"alert_threshold" validate:"gte=0,lte=100"`
}

// ApprovalSettings controls which actions need a human decision.
type ApprovalSettings struct {
	RequiredFor      []ActionType `json:"required_for"`
	AutoApproveBelow int64        `json:"auto_approve_below" validate:"gte=0"`
	TimeoutHours     int          `json:"timeout_hours" validate:"gte=0,lte=720"`
	Email            string       `json:"email" validate:"omitempty,email"`
}

// NotificationSettings toggles the outgoing emails.
type NotificationSettings struct {
	DailyReport   bool `json:"daily_report"`
	WeeklyReport  bool `json:"weekly_report"`
	InstantAlerts bool `json:"instant_alerts"`
}

// StrategySettings steers the suggestion source.
type StrategySettings struct {
	TargetAudience     string   `json:"target_audience"`
	Tone               string   `json:"tone"`
	Topics             []string `json:"topics"`
	PostFrequency      int      `json:"post_frequency"`
	PreferredPostTimes []string `json:"preferred_post_times"`
}

// AgentConfig is the live, operator-editable configuration of the agent.
type AgentConfig struct {
	ID            string                                   `gorm:"primaryKey;size:32" json:"id"`
	Name          string                                   `gorm:"size:128" json:"name"`
	PageID        string                                   `gorm:"size:64" json:"page_id"`
	AdAccountID   string                                   `gorm:"size:64" json:"ad_account_id"`
	Budget        datatypes.JSONType[BudgetSettings]       `gorm:"type:json" json:"budget"`
	Approval      datatypes.JSONType[ApprovalSettings]     `gorm:"type:json" json:"approval"`
	Notifications datatypes.JSONType[NotificationSettings] `gorm:"type:json" json:"notifications"`
	Strategy      datatypes.JSONType[StrategySettings]     `gorm:"type:json" json:"strategy"`
	CreatedAt     time.Time                                `json:"created_at"`
	UpdatedAt     time.Time                                `json:"updated_at"`
}

// TableName pins the configuration table name.
func (AgentConfig) TableName() string {
	return "agent_config"
}

// DefaultRequiredApprovals is the require-approval set used when none is configured.
var DefaultRequiredApprovals = []ActionType{ActionCreatePost, ActionCreateCampaign, ActionBoostPost, ActionAdjustBudget}

// RequiresApproval decides whether an action of the given type and amount must wait for a human.
// amount is expressed in minor units.
func (c AgentConfig) RequiresApproval(actionType ActionType, amount int64) bool {
	approval := c.Approval.Data()
	required := false
	for _, candidate := range approval.RequiredFor {
		if candidate == actionType {
			required = true
			break
		}
	}
	if !required {
		return false
	}
	if approval.AutoApproveBelow <= 0 {
		return true
	}
	return amount >= approval.AutoApproveBelow
}

// TimeoutHours returns the approval window, defaulting to 24 hours.
func (c AgentConfig) TimeoutHours() int {
	if hours := c.Approval.Data().TimeoutHours; hours > 0 {
		return hours
	}
	return 24
}
