package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// ErrUnknownActionType is returned when a payload is decoded for a type outside the supported set.
var ErrUnknownActionType = errors.New("unknown action type")

// Payload is the typed body of a pending action. There is one variant per ActionType.
type Payload interface {
	ActionType() ActionType
}

// CreatePostPayload publishes a page post.
type CreatePostPayload struct {
	Content       string `json:"content" validate:"required"`
	ImageURL      string `json:"image_url,omitempty"`
	Link          string `json:"link,omitempty"`
	ScheduledTime string `json:"scheduled_time,omitempty"`
}

// BoostPostPayload promotes an existing post. Budget is in major currency units.
type BoostPostPayload struct {
	PostID    string                 `json:"post_id" validate:"required"`
	Budget    float64                `json:"budget" validate:"gt=0"`
	Duration  int                    `json:"duration" validate:"gte=1"`
	Targeting map[string]interface{} `json:"targeting,omitempty"`
}

// CreateCampaignPayload creates a new campaign in a paused state.
type CreateCampaignPayload struct {
	Name        string                 `json:"name" validate:"required"`
	Objective   string                 `json:"objective" validate:"required"`
	DailyBudget float64                `json:"daily_budget,omitempty"`
	Targeting   map[string]interface{} `json:"targeting,omitempty"`
}

// AdjustBudgetPayload changes the daily budget of a campaign.
type AdjustBudgetPayload struct {
	CampaignID    string  `json:"campaign_id" validate:"required"`
	CurrentBudget float64 `json:"current_budget"`
	NewBudget     float64 `json:"new_budget" validate:"gt=0"`
	Reason        string  `json:"reason,omitempty"`
}

// PauseCampaignPayload pauses a running campaign.
type PauseCampaignPayload struct {
	CampaignID string `json:"campaign_id" validate:"required"`
	Reason     string `json:"reason,omitempty"`
}

// ResumeCampaignPayload re-activates a paused campaign.
type ResumeCampaignPayload struct {
	CampaignID string `json:"campaign_id" validate:"required"`
	Reason     string `json:"reason,omitempty"`
}

// CreateAdPayload creates an ad inside an ad set.
type CreateAdPayload struct {
	AdSetID  string                 `json:"ad_set_id"`
	Name     string                 `json:"name"`
	Creative map[string]interface{} `json:"creative,omitempty"`
}

// ModifyTargetingPayload replaces the targeting spec of a campaign.
type ModifyTargetingPayload struct {
	CampaignID string                 `json:"campaign_id"`
	Targeting  map[string]interface{} `json:"targeting,omitempty"`
}

func (CreatePostPayload) ActionType() ActionType      { return ActionCreatePost }
func (BoostPostPayload) ActionType() ActionType       { return ActionBoostPost }
func (CreateCampaignPayload) ActionType() ActionType  { return ActionCreateCampaign }
func (AdjustBudgetPayload) ActionType() ActionType    { return ActionAdjustBudget }
func (PauseCampaignPayload) ActionType() ActionType   { return ActionPauseCampaign }
func (ResumeCampaignPayload) ActionType() ActionType  { return ActionResumeCampaign }
func (CreateAdPayload) ActionType() ActionType        { return ActionCreateAd }
func (ModifyTargetingPayload) ActionType() ActionType { return ActionModifyTargeting }

// EncodePayload serialises a payload for storage.
func EncodePayload(payload Payload) (datatypes.JSON, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload must not be nil")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", payload.ActionType(), err)
	}
	return datatypes.JSON(data), nil
}

// DecodePayload restores the typed payload stored for an action of the given type.
func DecodePayload(actionType ActionType, raw []byte) (Payload, error) {
	var target Payload
	switch actionType {
	case ActionCreatePost:
		target = &CreatePostPayload{}
	case ActionBoostPost:
		target = &BoostPostPayload{}
	case ActionCreateCampaign:
		target = &CreateCampaignPayload{}
	case ActionAdjustBudget:
		target = &AdjustBudgetPayload{}
	case ActionPauseCampaign:
		target = &PauseCampaignPayload{}
	case ActionResumeCampaign:
		target = &ResumeCampaignPayload{}
	case ActionCreateAd:
		target = &CreateAdPayload{}
	case ActionModifyTargeting:
		target = &ModifyTargetingPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, actionType)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", actionType, err)
		}
	}

	return dereference(target), nil
}

func dereference(payload Payload) Payload {
	switch p := payload.(type) {
	case *CreatePostPayload:
		return *p
	case *BoostPostPayload:
		return *p
	case *CreateCampaignPayload:
		return *p
	case *AdjustBudgetPayload:
		return *p
	case *PauseCampaignPayload:
		return *p
	case *ResumeCampaignPayload:
		return *p
	case *CreateAdPayload:
		return *p
	case *ModifyTargetingPayload:
		return *p
	default:
		return payload
	}
}

// Decode returns the typed payload of the action.
func (a PendingAction) Decode() (Payload, error) {
	return DecodePayload(a.Type, a.Payload)
}

// PayloadAmount returns the spend, in major units, that approving the payload commits to.
func PayloadAmount(payload Payload) float64 {
	switch p := payload.(type) {
	case BoostPostPayload:
		return p.Budget
	case CreateCampaignPayload:
		return p.DailyBudget
	case AdjustBudgetPayload:
		return p.NewBudget
	default:
		return 0
	}
}

// DescribePayload renders a one-line summary of the payload for humans.
func DescribePayload(payload Payload) string {
	switch p := payload.(type) {
	case CreatePostPayload:
		return truncate(p.Content, 120)
	case BoostPostPayload:
		return fmt.Sprintf("Boost post %s with %.2f for %d days", p.PostID, p.Budget, p.Duration)
	case CreateCampaignPayload:
		return fmt.Sprintf("Campaign %q (%s)", p.Name, p.Objective)
	case AdjustBudgetPayload:
		return fmt.Sprintf("Campaign %s budget %.2f -> %.2f", p.CampaignID, p.CurrentBudget, p.NewBudget)
	case PauseCampaignPayload:
		return fmt.Sprintf("Pause campaign %s", p.CampaignID)
	case ResumeCampaignPayload:
		return fmt.Sprintf("Resume campaign %s", p.CampaignID)
	case CreateAdPayload:
		return fmt.Sprintf("Ad %q in ad set %s", p.Name, p.AdSetID)
	case ModifyTargetingPayload:
		return fmt.Sprintf("Retarget campaign %s", p.CampaignID)
	default:
		return ""
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
