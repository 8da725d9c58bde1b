package dto

import "github.com/noah-isme/marketing-agent/internal/models"

// GoalRequest creates a goal.
type GoalRequest struct {
	Type     models.GoalType     `json:"type" validate:"required,oneof=leads reach engagement followers conversions"`
	Target   int64               `json:"target" validate:"gt=0"`
	Current  int64               `json:"current" validate:"gte=0"`
	Period   models.GoalPeriod   `json:"period" validate:"required,oneof=daily weekly monthly"`
	Priority models.GoalPriority `json:"priority" validate:"omitempty,oneof=high medium low"`
}

// GoalUpdateRequest patches a goal. Nil fields are left untouched.
type GoalUpdateRequest struct {
	Type     *models.GoalType     `json:"type" validate:"omitempty,oneof=leads reach engagement followers conversions"`
	Target   *int64               `json:"target" validate:"omitempty,gt=0"`
	Current  *int64               `json:"current" validate:"omitempty,gte=0"`
	Period   *models.GoalPeriod   `json:"period" validate:"omitempty,oneof=daily weekly monthly"`
	Priority *models.GoalPriority `json:"priority" validate:"omitempty,oneof=high medium low"`
}

// GoalProgress is a goal with its progress against the current period.
type GoalProgress struct {
	models.Goal
	Percent  int  `json:"percent"`
	Expected int  `json:"expected"`
	OnTrack  bool `json:"on_track"`
}
