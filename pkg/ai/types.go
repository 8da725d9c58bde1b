package ai

import (
	"context"
	"errors"
	"time"
)

// ErrNoSuggestion is returned whenever the model reply cannot be decoded into a valid suggestion.
var ErrNoSuggestion = errors.New("no suggestion produced")

// PostBrief is the context handed to the model when drafting a post.
type PostBrief struct {
	AgentName      string
	TargetAudience string
	Tone           string
	Topics         []string
	PostTimes      []string
	RecentPosts    []string
	Now            time.Time
}

// PostSuggestion is a drafted page post.
type PostSuggestion struct {
	Content        string   `json:"content"`
	Reasoning      string   `json:"reasoning"`
	ExpectedImpact string   `json:"expectedImpact"`
	SuggestedTime  string   `json:"suggestedTime"`
	Hashtags       []string `json:"hashtags"`
	Confidence     string   `json:"confidence"`
}

// CampaignSnapshot is the campaign performance shown to the model. Money is in major units.
type CampaignSnapshot struct {
	CampaignID  string  `json:"campaignId"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	DailyBudget float64 `json:"dailyBudget"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
}

// BudgetBrief is the context handed to the model when optimising budgets. Money is in major units.
type BudgetBrief struct {
	MonthlyBudget float64
	MonthlySpent  float64
	DailyLimit    float64
	TodaySpent    float64
	Campaigns     []CampaignSnapshot
}

// BudgetSuggestion is one recommended budget change.
type BudgetSuggestion struct {
	CampaignID    string  `json:"campaignId"`
	Action        string  `json:"action"`
	CurrentBudget float64 `json:"currentBudget"`
	NewBudget     float64 `json:"newBudget"`
	Reason        string  `json:"reason"`
	Confidence    string  `json:"confidence"`
}

// Suggester produces structured marketing suggestions.
type Suggester interface {
	SuggestPost(ctx context.Context, brief PostBrief) (PostSuggestion, error)
	SuggestBudget(ctx context.Context, brief BudgetBrief) ([]BudgetSuggestion, error)
}
