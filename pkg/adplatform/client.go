package adplatform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"
)

// ErrNotConfigured is returned when a call needs an identifier that was not configured.
var ErrNotConfigured = errors.New("ad platform identifier not configured")

// APIError is the error envelope returned by the Graph API.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error %d (%s, code %d): %s", e.StatusCode, e.Type, e.Code, e.Message)
}

// Config configures the Graph API client.
type Config struct {
	BaseURL     string
	APIVersion  string
	AccessToken string
	PageID      string
	AdAccountID string
	Timeout     time.Duration
	Logger      zerolog.Logger
	HTTPClient  *http.Client
}

// Client talks to the advertising Graph API.
type Client struct {
	http   *http.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// New builds a client. The HTTP transport is instrumented with OpenTelemetry.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, fmt.Errorf("ad platform access token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{
		http:   httpClient,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/marketing-agent/pkg/adplatform"),
		logger: cfg.Logger.With().Str("component", "adplatform").Logger(),
	}, nil
}

// CreatePost publishes a post on the configured page.
func (c *Client) CreatePost(ctx context.Context, req PostRequest) (PostResult, error) {
	if c.cfg.PageID == "" {
		return PostResult{}, fmt.Errorf("%w: page id", ErrNotConfigured)
	}

	form := url.Values{}
	edge := "feed"
	if req.ImageURL != "" {
		edge = "photos"
		form.Set("url", req.ImageURL)
		form.Set("caption", req.Message)
	} else {
		form.Set("message", req.Message)
		if req.Link != "" {
			form.Set("link", req.Link)
		}
	}
	if req.ScheduledTime != nil && req.ScheduledTime.After(time.Now()) {
		form.Set("published", "false")
		form.Set("scheduled_publish_time", strconv.FormatInt(req.ScheduledTime.Unix(), 10))
	}

	var resp struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := c.post(ctx, "adplatform.create_post", c.cfg.PageID+"/"+edge, form, &resp); err != nil {
		return PostResult{}, err
	}

	postID := resp.PostID
	if postID == "" {
		postID = resp.ID
	}
	if postID == "" {
		return PostResult{}, fmt.Errorf("post created but no id returned")
	}
	return PostResult{PostID: postID}, nil
}

// CreateCampaign creates a campaign in the configured ad account.
func (c *Client) CreateCampaign(ctx context.Context, req CampaignRequest) (CampaignResult, error) {
	account, err := c.adAccount()
	if err != nil {
		return CampaignResult{}, err
	}

	status := req.Status
	if status == "" {
		status = StatusPaused
	}
	categories := req.SpecialAdCategories
	if len(categories) == 0 {
		categories = []string{"NONE"}
	}
	encodedCategories, err := json.Marshal(categories)
	if err != nil {
		return CampaignResult{}, err
	}

	form := url.Values{}
	form.Set("name", req.Name)
	form.Set("objective", req.Objective)
	form.Set("status", status)
	form.Set("special_ad_categories", string(encodedCategories))
	if req.DailyBudget > 0 {
		form.Set("daily_budget", strconv.FormatInt(req.DailyBudget, 10))
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "adplatform.create_campaign", account+"/campaigns", form, &resp); err != nil {
		return CampaignResult{}, err
	}
	return CampaignResult{CampaignID: resp.ID, Status: status}, nil
}

// UpdateCampaign changes status and/or daily budget of a campaign.
func (c *Client) UpdateCampaign(ctx context.Context, campaignID string, update CampaignUpdate) (UpdateResult, error) {
	if strings.TrimSpace(campaignID) == "" {
		return UpdateResult{}, fmt.Errorf("campaign id is required")
	}

	form := url.Values{}
	if update.Status != "" {
		form.Set("status", update.Status)
	}
	if update.DailyBudget != nil {
		form.Set("daily_budget", strconv.FormatInt(*update.DailyBudget, 10))
	}
	if len(form) == 0 {
		return UpdateResult{}, fmt.Errorf("campaign update has no fields")
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, "adplatform.update_campaign", campaignID, form, &resp); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{CampaignID: campaignID, Success: resp.Success}, nil
}

// BoostPost promotes an existing post by creating a campaign, an ad set, a creative and an ad.
func (c *Client) BoostPost(ctx context.Context, req BoostRequest) (BoostResult, error) {
	account, err := c.adAccount()
	if err != nil {
		return BoostResult{}, err
	}
	if req.PostID == "" || req.Budget <= 0 {
		return BoostResult{}, fmt.Errorf("boost requires a post id and a positive budget")
	}
	days := req.DurationDays
	if days <= 0 {
		days = 1
	}

	campaign, err := c.CreateCampaign(ctx, CampaignRequest{
		Name:      "Boost " + req.PostID,
		Objective: "OUTCOME_ENGAGEMENT",
		Status:    StatusActive,
	})
	if err != nil {
		return BoostResult{}, fmt.Errorf("boost campaign: %w", err)
	}

	targeting := req.Targeting
	if len(targeting) == 0 {
		targeting = map[string]interface{}{"geo_locations": map[string]interface{}{"countries": []string{"CZ"}}}
	}
	encodedTargeting, err := json.Marshal(targeting)
	if err != nil {
		return BoostResult{}, err
	}

	adSetForm := url.Values{}
	adSetForm.Set("name", "Boost "+req.PostID+" ad set")
	adSetForm.Set("campaign_id", campaign.CampaignID)
	adSetForm.Set("lifetime_budget", strconv.FormatInt(req.Budget, 10))
	adSetForm.Set("end_time", strconv.FormatInt(time.Now().Add(time.Duration(days)*24*time.Hour).Unix(), 10))
	adSetForm.Set("billing_event", "IMPRESSIONS")
	adSetForm.Set("optimization_goal", "POST_ENGAGEMENT")
	adSetForm.Set("bid_strategy", "LOWEST_COST_WITHOUT_CAP")
	adSetForm.Set("targeting", string(encodedTargeting))
	adSetForm.Set("status", StatusActive)

	var adSet struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "adplatform.create_ad_set", account+"/adsets", adSetForm, &adSet); err != nil {
		return BoostResult{}, fmt.Errorf("boost ad set: %w", err)
	}

	creativeForm := url.Values{}
	creativeForm.Set("object_story_id", c.objectStoryID(req.PostID))
	var creative struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "adplatform.create_creative", account+"/adcreatives", creativeForm, &creative); err != nil {
		return BoostResult{}, fmt.Errorf("boost creative: %w", err)
	}

	adForm := url.Values{}
	adForm.Set("name", "Boost "+req.PostID)
	adForm.Set("adset_id", adSet.ID)
	adForm.Set("creative", fmt.Sprintf(`{"creative_id":"%s"}`, creative.ID))
	adForm.Set("status", StatusActive)
	var ad struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "adplatform.create_ad", account+"/ads", adForm, &ad); err != nil {
		return BoostResult{}, fmt.Errorf("boost ad: %w", err)
	}

	return BoostResult{CampaignID: campaign.CampaignID, AdSetID: adSet.ID, AdID: ad.ID}, nil
}

// CampaignInsights returns performance figures of every campaign for [since, until].
func (c *Client) CampaignInsights(ctx context.Context, since, until time.Time) ([]CampaignPerformance, error) {
	account, err := c.adAccount()
	if err != nil {
		return nil, err
	}

	timeRange := fmt.Sprintf(`{"since":"%s","until":"%s"}`, since.Format("2006-01-02"), until.Format("2006-01-02"))
	query := url.Values{}
	query.Set("fields", "id,name,status,daily_budget,insights.time_range("+timeRange+"){impressions,reach,clicks,spend,ctr,cpc}")
	query.Set("limit", "100")

	var resp struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Status      string `json:"status"`
			DailyBudget string `json:"daily_budget"`
			Insights    struct {
				Data []struct {
					Impressions string `json:"impressions"`
					Reach       string `json:"reach"`
					Clicks      string `json:"clicks"`
					Spend       string `json:"spend"`
					CTR         string `json:"ctr"`
					CPC         string `json:"cpc"`
				} `json:"data"`
			} `json:"insights"`
		} `json:"data"`
	}
	if err := c.get(ctx, "adplatform.campaign_insights", account+"/campaigns", query, &resp); err != nil {
		return nil, err
	}

	results := make([]CampaignPerformance, 0, len(resp.Data))
	for _, item := range resp.Data {
		perf := CampaignPerformance{
			CampaignID:  item.ID,
			Name:        item.Name,
			Status:      item.Status,
			DailyBudget: parseInt(item.DailyBudget),
		}
		if len(item.Insights.Data) > 0 {
			insight := item.Insights.Data[0]
			perf.Impressions = parseInt(insight.Impressions)
			perf.Reach = parseInt(insight.Reach)
			perf.Clicks = parseInt(insight.Clicks)
			perf.Spend = parseFloat(insight.Spend)
			perf.CTR = parseFloat(insight.CTR)
			perf.CPC = parseFloat(insight.CPC)
		}
		results = append(results, perf)
	}
	return results, nil
}

func (c *Client) adAccount() (string, error) {
	account := strings.TrimSpace(c.cfg.AdAccountID)
	if account == "" {
		return "", fmt.Errorf("%w: ad account id", ErrNotConfigured)
	}
	if !strings.HasPrefix(account, "act_") {
		account = "act_" + account
	}
	return account, nil
}

func (c *Client) objectStoryID(postID string) string {
	if strings.Contains(postID, "_") || c.cfg.PageID == "" {
		return postID
	}
	return c.cfg.PageID + "_" + postID
}

func (c *Client) post(ctx context.Context, op, path string, form url.Values, out interface{}) error {
	form.Set("access_token", c.cfg.AccessToken)
	return c.do(ctx, op, http.MethodPost, path, strings.NewReader(form.Encode()), out)
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	query.Set("access_token", c.cfg.AccessToken)
	return c.do(ctx, op, http.MethodGet, path+"?"+query.Encode(), nil, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("http.method", method)))
	defer span.End()

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + c.cfg.APIVersion + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != nil {
			apiErr = envelope.Error
			apiErr.StatusCode = resp.StatusCode
		}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Message)
		c.logger.Warn().Str("op", op).Int("status", resp.StatusCode).Str("error", apiErr.Message).Msg("ad platform request failed")
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func parseInt(value string) int64 {
	parsed, _ := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	return parsed
}

func parseFloat(value string) float64 {
	parsed, _ := strconv.ParseFloat(strings.TrimSpace(value), 64)
	return parsed
}
