package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/marketing-agent/internal/models"
)

// ActionResponse is the serialized representation of a pending action.
type ActionResponse struct {
	ID              string              `json:"id"`
	Type            models.ActionType   `json:"type"`
	TypeName        string              `json:"type_name"`
	Payload         json.RawMessage     `json:"payload"`
	PayloadSummary  string              `json:"payload_summary"`
	Reasoning       string              `json:"reasoning"`
	ExpectedImpact  string              `json:"expected_impact"`
	Confidence      models.Confidence   `json:"confidence"`
	Status          models.ActionStatus `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	ExpiresAt       time.Time           `json:"expires_at"`
	ApprovedAt      *time.Time          `json:"approved_at,omitempty"`
	ApprovedBy      string              `json:"approved_by,omitempty"`
	ExecutedAt      *time.Time          `json:"executed_at,omitempty"`
	ExecutionResult json.RawMessage     `json:"execution_result,omitempty"`
}

// NewActionResponse converts a model into a DTO.
func NewActionResponse(action models.PendingAction) ActionResponse {
	summary := ""
	if payload, err := action.Decode(); err == nil {
		summary = models.DescribePayload(payload)
	}

	response := ActionResponse{
		ID:             action.ID,
		Type:           action.Type,
		TypeName:       action.Type.DisplayName(),
		Payload:        json.RawMessage(action.Payload),
		PayloadSummary: summary,
		Reasoning:      action.Reasoning,
		ExpectedImpact: action.ExpectedImpact,
		Confidence:     action.Confidence,
		Status:         action.Status,
		CreatedAt:      action.CreatedAt,
		ExpiresAt:      action.ExpiresAt,
		ApprovedAt:     action.ApprovedAt,
		ApprovedBy:     action.ApprovedBy,
		ExecutedAt:     action.ExecutedAt,
	}
	if len(response.Payload) == 0 {
		response.Payload = json.RawMessage("{}")
	}
	if len(action.ExecutionResult) > 0 {
		response.ExecutionResult = json.RawMessage(action.ExecutionResult)
	}
	return response
}

// NewActionResponseSlice converts a slice of models into DTOs.
func NewActionResponseSlice(actions []models.PendingAction) []ActionResponse {
	out := make([]ActionResponse, 0, len(actions))
	for _, action := range actions {
		out = append(out, NewActionResponse(action))
	}
	return out
}

// DecisionRequest carries the optional reason given on the dashboard.
type DecisionRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// EditPostRequest replaces the content of a create_post action before approving it.
type EditPostRequest struct {
	Content string `json:"content" form:"content" validate:"required,max=5000"`
}

// ActionLinks are the email links that drive the approval webhook.
type ActionLinks struct {
	Approve string `json:"approve"`
	Reject  string `json:"reject"`
	Edit    string `json:"edit,omitempty"`
	View    string `json:"view"`
}

// ExecutionResponse reports the outcome of executing one action.
type ExecutionResponse struct {
	ActionID string                 `json:"action_id"`
	Type     models.ActionType      `json:"type"`
	Success  bool                   `json:"success"`
	Skipped  bool                   `json:"skipped,omitempty"`
	Result   map[string]interface{} `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// BatchResponse summarises a backlog run.
type BatchResponse struct {
	Processed  int                 `json:"processed"`
	Successful int                 `json:"successful"`
	Failed     int                 `json:"failed"`
	Skipped    int                 `json:"skipped"`
	Results    []ExecutionResponse `json:"results"`
}

// DecisionResponse is returned by the dashboard approve and reject endpoints.
type DecisionResponse struct {
	Action    ActionResponse     `json:"action"`
	Execution *ExecutionResponse `json:"execution,omitempty"`
}
