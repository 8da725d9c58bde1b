package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActionType enumerates the closed set of actions the agent can propose.
type ActionType string

const (
	ActionCreatePost      ActionType = "create_post"
	ActionBoostPost       ActionType = "boost_post"
	ActionCreateCampaign  ActionType = "create_campaign"
	ActionAdjustBudget    ActionType = "adjust_budget"
	ActionPauseCampaign   ActionType = "pause_campaign"
	ActionResumeCampaign  ActionType = "resume_campaign"
	ActionCreateAd        ActionType = "create_ad"
	ActionModifyTargeting ActionType = "modify_targeting"
)

// ActionTypes lists every supported action type in display order.
var ActionTypes = []ActionType{
	ActionCreatePost,
	ActionBoostPost,
	ActionCreateCampaign,
	ActionAdjustBudget,
	ActionPauseCampaign,
	ActionResumeCampaign,
	ActionCreateAd,
	ActionModifyTargeting,
}

var actionTypeNames = map[ActionType]string{
	ActionCreatePost:      "New post",
	ActionBoostPost:       "Boost post",
	ActionCreateCampaign:  "New campaign",
	ActionAdjustBudget:    "Budget adjustment",
	ActionPauseCampaign:   "Pause campaign",
	ActionResumeCampaign:  "Resume campaign",
	ActionCreateAd:        "New ad",
	ActionModifyTargeting: "Targeting change",
}

// Valid reports whether the type belongs to the supported set.
func (t ActionType) Valid() bool {
	_, ok := actionTypeNames[t]
	return ok
}

// DisplayName returns the human readable label used by emails and the dashboard.
func (t ActionType) DisplayName() string {
	if name, ok := actionTypeNames[t]; ok {
		return name
	}
	return string(t)
}

// ActionStatus is the lifecycle state of a pending action.
type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusApproved ActionStatus = "approved"
	StatusRejected ActionStatus = "rejected"
	StatusExpired  ActionStatus = "expired"
	StatusExecuted ActionStatus = "executed"
	StatusFailed   ActionStatus = "failed"
)

// ActionStatuses lists every lifecycle state.
var ActionStatuses = []ActionStatus{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusExpired,
	StatusExecuted,
	StatusFailed,
}

var allowedTransitions = map[ActionStatus][]ActionStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved: {StatusExecuted, StatusFailed},
}

// Valid reports whether the status is a known lifecycle state.
func (s ActionStatus) Valid() bool {
	for _, status := range ActionStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s ActionStatus) Terminal() bool {
	return s.Valid() && len(allowedTransitions[s]) == 0
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Confidence captures how sure the suggestion source was about an action.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether the confidence level is supported.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	default:
		return false
	}
}

// PendingAction is a proposed side effect awaiting, or past, human approval.
//
// Rows are never deleted. Status only moves forward along the transition
// table and every move is a conditional update guarded by the prior status.
type PendingAction struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	ApprovalToken   string         `gorm:"size:64;uniqueIndex;not null" json:"-"`
	Type            ActionType     `gorm:"size:32;index;not null" json:"type"`
	Payload         datatypes.JSON `gorm:"type:json" json:"payload"`
	Reasoning       string         `gorm:"type:text" json:"reasoning"`
	ExpectedImpact  string         `gorm:"type:text" json:"expected_impact"`
	Confidence      Confidence     `gorm:"size:16" json:"confidence"`
	Status          ActionStatus   `gorm:"size:16;index;not null" json:"status"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
	ExpiresAt       time.Time      `gorm:"index" json:"expires_at"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	ApprovedBy      string         `gorm:"size:128" json:"approved_by,omitempty"`
	ExecutedAt      *time.Time     `json:"executed_at,omitempty"`
	ExecutionResult datatypes.JSON `gorm:"type:json" json:"execution_result,omitempty"`
	ClaimedAt       *time.Time     `json:"-"`
	ClaimToken      string         `gorm:"size:64" json:"-"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// TableName pins the table name used by every storage engine.
func (PendingAction) TableName() string {
	return "pending_actions"
}

// IsExpired reports whether the approval deadline has passed at now.
func (a PendingAction) IsExpired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
