package dto

import (
	"time"

	"github.com/noah-isme/marketing-agent/internal/models"
)

// AuditStats aggregates the audit log.
type AuditStats struct {
	Total       int64                           `json:"total"`
	ByEventType map[models.AuditEventType]int64 `json:"by_event_type"`
	Today       int64                           `json:"today"`
	ThisWeek    int64                           `json:"this_week"`
}

// AgentSummary identifies the configured agent.
type AgentSummary struct {
	Name       string `json:"name"`
	PageID     string `json:"page_id"`
	Configured bool   `json:"configured"`
}

// DashboardResponse is the overview rendered on the dashboard home page.
type DashboardResponse struct {
	Agent            AgentSummary                  `json:"agent"`
	Budget           BudgetStatus                  `json:"budget"`
	Goals            []GoalProgress                `json:"goals"`
	PendingApprovals []ActionResponse              `json:"pending_approvals"`
	RecentActions    []ActionResponse              `json:"recent_actions"`
	RecentLogs       []models.AuditLogEntry        `json:"recent_logs"`
	ActionStats      map[models.ActionStatus]int64 `json:"action_stats"`
	GeneratedAt      time.Time                     `json:"generated_at"`
}

// DashboardStats combines the action, audit and budget aggregates.
type DashboardStats struct {
	Actions map[models.ActionStatus]int64 `json:"actions"`
	Audit   AuditStats                    `json:"audit"`
	Budget  BudgetStatus                  `json:"budget"`
}

// Report is the content of the daily and weekly summary emails.
type Report struct {
	Title   string           `json:"title"`
	From    time.Time        `json:"from"`
	To      time.Time        `json:"to"`
	Events  map[string]int64 `json:"events"`
	Spent   int64            `json:"spent"`
	Budget  BudgetStatus     `json:"budget"`
	Goals   []GoalProgress   `json:"goals"`
	Pending int              `json:"pending"`
}

// AgentStatus reports the scheduler and backlog state.
type AgentStatus struct {
	Configured bool                          `json:"configured"`
	Jobs       []JobInfo                     `json:"jobs"`
	Actions    map[models.ActionStatus]int64 `json:"actions"`
}

// JobInfo describes one scheduled job.
type JobInfo struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	NextRun time.Time `json:"next_run,omitempty"`
	PrevRun time.Time `json:"prev_run,omitempty"`
}
