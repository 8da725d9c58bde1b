package models

import "time"

// GoalType is the metric a goal tracks.
type GoalType string

const (
	GoalLeads       GoalType = "leads"
	GoalReach       GoalType = "reach"
	GoalEngagement  GoalType = "engagement"
	GoalFollowers   GoalType = "followers"
	GoalConversions GoalType = "conversions"
)

// GoalPeriod is the window a goal resets on.
type GoalPeriod string

const (
	PeriodDaily   GoalPeriod = "daily"
	PeriodWeekly  GoalPeriod = "weekly"
	PeriodMonthly GoalPeriod = "monthly"
)

// GoalPriority orders goals on the dashboard.
type GoalPriority string

const (
	PriorityHigh   GoalPriority = "high"
	PriorityMedium GoalPriority = "medium"
	PriorityLow    GoalPriority = "low"
)

// Goal is a marketing target tracked against the current period.
type Goal struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	Type      GoalType     `gorm:"size:16;not null" json:"type"`
	Target    int64        `gorm:"not null" json:"target"`
	Current   int64        `gorm:"not null;default:0" json:"current"`
	Period    GoalPeriod   `gorm:"size:16;index;not null" json:"period"`
	Priority  GoalPriority `gorm:"size:16;not null" json:"priority"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
