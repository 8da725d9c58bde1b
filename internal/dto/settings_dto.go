package dto

import "github.com/noah-isme/marketing-agent/internal/models"

// SettingsUpdateRequest merges into the agent configuration. Nil sections are left untouched.
type SettingsUpdateRequest struct {
	Name          *string                      `json:"name" validate:"omitempty,max=128"`
	PageID        *string                      `json:"page_id" validate:"omitempty,max=64"`
	AdAccountID   *string                      `json:"ad_account_id" validate:"omitempty,max=64"`
	Budget        *models.BudgetSettings       `json:"budget"`
	Approval      *models.ApprovalSettings     `json:"approval"`
	Notifications *models.NotificationSettings `json:"notifications"`
	Strategy      *models.StrategySettings     `json:"strategy"`
}

// SettingsResponse is the serialized agent configuration.
type SettingsResponse struct {
	Name          string                      `json:"name"`
	PageID        string                      `json:"page_id"`
	AdAccountID   string                      `json:"ad_account_id"`
	Budget        models.BudgetSettings       `json:"budget"`
	Approval      models.ApprovalSettings     `json:"approval"`
	Notifications models.NotificationSettings `json:"notifications"`
	Strategy      models.StrategySettings     `json:"strategy"`
}

// NewSettingsResponse flattens the JSON sections of the configuration row.
func NewSettingsResponse(cfg models.AgentConfig) SettingsResponse {
	return SettingsResponse{
		Name:          cfg.Name,
		PageID:        cfg.PageID,
		AdAccountID:   cfg.AdAccountID,
		Budget:        cfg.Budget.Data(),
		Approval:      cfg.Approval.Data(),
		Notifications: cfg.Notifications.Data(),
		Strategy:      cfg.Strategy.Data(),
	}
}
