package adplatform

import "time"

// PostRequest describes a page post. ImageURL switches the request to a photo post.
type PostRequest struct {
	Message       string
	Link          string
	ImageURL      string
	ScheduledTime *time.Time
}

// PostResult identifies the created post.
type PostResult struct {
	PostID string `json:"post_id"`
}

// CampaignRequest describes a new campaign. DailyBudget is in minor units.
type CampaignRequest struct {
	Name                string
	Objective           string
	Status              string
	DailyBudget         int64
	SpecialAdCategories []string
}

// CampaignResult identifies the created campaign.
type CampaignResult struct {
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
}

// CampaignUpdate holds the mutable campaign fields. Nil or empty fields are left untouched.
type CampaignUpdate struct {
	Status      string
	DailyBudget *int64
}

// UpdateResult reports the outcome of a campaign update.
type UpdateResult struct {
	CampaignID string `json:"campaign_id"`
	Success    bool   `json:"success"`
}

// BoostRequest promotes an existing post. Budget is the lifetime budget in minor units.
type BoostRequest struct {
	PostID       string
	Budget       int64
	DurationDays int
	Targeting    map[string]interface{}
}

// BoostResult lists the objects created to run the promotion.
type BoostResult struct {
	CampaignID string `json:"campaign_id"`
	AdSetID    string `json:"ad_set_id"`
	AdID       string `json:"ad_id"`
}

// CampaignPerformance summarises a campaign over a date range.
type CampaignPerformance struct {
	CampaignID  string  `json:"campaign_id"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	DailyBudget int64   `json:"daily_budget"`
	Impressions int64   `json:"impressions"`
	Reach       int64   `json:"reach"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
}

const (
	StatusActive = "ACTIVE"
	StatusPaused = "PAUSED"
)
