package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/repository"
	"github.com/noah-isme/marketing-agent/pkg/adplatform"
	"github.com/noah-isme/marketing-agent/pkg/ai"
)

// AutoApprover is recorded as the approver of actions below the approval threshold.
const AutoApprover = "auto-approve"

// InsightsSource reports campaign performance for budget suggestions.
type InsightsSource interface {
	CampaignInsights(ctx context.Context, since, until time.Time) ([]adplatform.CampaignPerformance, error)
}

// SuggestionService turns model suggestions into queued actions and applies the auto-approve policy.
type SuggestionService interface {
	Submit(ctx context.Context, req QueueRequest) (models.PendingAction, error)
	GeneratePost(ctx context.Context) (*models.PendingAction, error)
	GenerateBudget(ctx context.Context) ([]models.PendingAction, error)
}

// SuggestionDependencies groups the collaborators of the suggestion service.
type SuggestionDependencies struct {
	Suggester ai.Suggester
	Insights  InsightsSource
	Approvals ApprovalService
	Budget    BudgetService
	Configs   repository.ConfigRepository
}

type suggestionService struct {
	suggester ai.Suggester
	insights  InsightsSource
	approvals ApprovalService
	budget    BudgetService
	configs   repository.ConfigRepository
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewSuggestionService constructs the suggestion service. Insights may be nil.
func NewSuggestionService(deps SuggestionDependencies, logger zerolog.Logger) SuggestionService {
	return &suggestionService{
		suggester: deps.Suggester,
		insights:  deps.Insights,
		approvals: deps.Approvals,
		budget:    deps.Budget,
		configs:   deps.Configs,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "suggestion_service").Logger(),
		now:       time.Now,
	}
}

// Submit queues req and, when the configured policy does not require a human, approves it immediately.
func (s *suggestionService) Submit(ctx context.Context, req QueueRequest) (models.PendingAction, error) {
	if req.Payload == nil {
		return models.PendingAction{}, fmt.Errorf("%w: payload is required", ErrInvalidAction)
	}

	amount := models.ToMinorUnits(models.PayloadAmount(req.Payload))
	required, err := s.approvals.RequiresApproval(ctx, req.Payload.ActionType(), amount)
	if err != nil {
		return models.PendingAction{}, err
	}

	action, err := s.approvals.Queue(ctx, req)
	if err != nil {
		return models.PendingAction{}, err
	}
	if required {
		return action, nil
	}

	approved, err := s.approvals.ApproveByID(ctx, action.ID, AutoApprover)
	if err != nil {
		s.logger.Warn().Err(err).Str("action_id", action.ID).Msg("auto-approval failed, action left pending")
		return action, nil
	}
	s.logger.Info().Str("action_id", action.ID).Str("type", string(action.Type)).Msg("action auto-approved")
	return approved, nil
}

// GeneratePost asks the model for a post and queues it. It returns nil when the model produced nothing usable.
func (s *suggestionService) GeneratePost(ctx context.Context) (*models.PendingAction, error) {
	if s.suggester == nil {
		return nil, nil
	}
	cfg, err := s.requireConfig(ctx)
	if err != nil {
		return nil, err
	}

	strategy := cfg.Strategy.Data()
	now := s.now()
	suggestion, err := s.suggester.SuggestPost(ctx, ai.PostBrief{
		AgentName:      cfg.Name,
		TargetAudience: strategy.TargetAudience,
		Tone:           strategy.Tone,
		Topics:         strategy.Topics,
		PostTimes:      strategy.PreferredPostTimes,
		RecentPosts:    s.recentPosts(ctx),
		Now:            now,
	})
	if err != nil {
		if errors.Is(err, ai.ErrNoSuggestion) {
			s.logger.Info().Err(err).Msg("no post suggestion produced")
			return nil, nil
		}
		return nil, err
	}

	content := stripHTML(s.sanitizer, suggestion.Content)
	if content == "" {
		s.logger.Info().Msg("post suggestion empty after sanitization")
		return nil, nil
	}
	if tags := hashtags(suggestion.Hashtags); tags != "" {
		content += "\n\n" + tags
	}

	action, err := s.Submit(ctx, QueueRequest{
		Payload: models.CreatePostPayload{
			Content:       content,
			ScheduledTime: scheduleAt(suggestion.SuggestedTime, now),
		},
		Reasoning:      stripHTML(s.sanitizer, suggestion.Reasoning),
		ExpectedImpact: stripHTML(s.sanitizer, suggestion.ExpectedImpact),
		Confidence:     confidenceOf(suggestion.Confidence),
	})
	if err != nil {
		return nil, err
	}
	return &action, nil
}

// GenerateBudget asks the model for budget changes across the campaigns and queues each one.
func (s *suggestionService) GenerateBudget(ctx context.Context) ([]models.PendingAction, error) {
	if s.suggester == nil || s.insights == nil {
		return nil, nil
	}
	cfg, err := s.requireConfig(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	campaigns, err := s.insights.CampaignInsights(ctx, now.AddDate(0, 0, -7), now)
	if err != nil {
		return nil, fmt.Errorf("load campaign insights: %w", err)
	}
	if len(campaigns) == 0 {
		return nil, nil
	}

	budget := cfg.Budget.Data()
	status, err := s.budget.Status(ctx, budget.Total, budget.DailyLimit)
	if err != nil {
		return nil, err
	}

	brief := ai.BudgetBrief{
		MonthlyBudget: majorUnits(status.Monthly.Limit),
		MonthlySpent:  majorUnits(status.Monthly.Spent),
		DailyLimit:    majorUnits(status.Daily.Limit),
		TodaySpent:    majorUnits(status.Daily.Spent),
		Campaigns:     make([]ai.CampaignSnapshot, 0, len(campaigns)),
	}
	for _, campaign := range campaigns {
		brief.Campaigns = append(brief.Campaigns, ai.CampaignSnapshot{
			CampaignID:  campaign.CampaignID,
			Name:        campaign.Name,
			Status:      campaign.Status,
			DailyBudget: majorUnits(campaign.DailyBudget),
			Impressions: campaign.Impressions,
			Clicks:      campaign.Clicks,
			Spend:       campaign.Spend,
			CTR:         campaign.CTR,
			CPC:         campaign.CPC,
		})
	}

	suggestions, err := s.suggester.SuggestBudget(ctx, brief)
	if err != nil {
		if errors.Is(err, ai.ErrNoSuggestion) {
			s.logger.Info().Err(err).Msg("no budget suggestion produced")
			return nil, nil
		}
		return nil, err
	}

	queued := make([]models.PendingAction, 0, len(suggestions))
	for _, suggestion := range suggestions {
		payload := budgetPayload(suggestion)
		if payload == nil {
			s.logger.Debug().Str("campaign_id", suggestion.CampaignID).Str("action", suggestion.Action).Msg("skipping unusable budget suggestion")
			continue
		}

		action, err := s.Submit(ctx, QueueRequest{
			Payload:        payload,
			Reasoning:      stripHTML(s.sanitizer, suggestion.Reason),
			ExpectedImpact: "Better use of the campaign budget",
			Confidence:     confidenceOf(suggestion.Confidence),
		})
		if err != nil {
			if errors.Is(err, ErrInvalidAction) {
				s.logger.Warn().Err(err).Str("campaign_id", suggestion.CampaignID).Msg("budget suggestion rejected")
				continue
			}
			return queued, err
		}
		queued = append(queued, action)
	}
	return queued, nil
}

func (s *suggestionService) recentPosts(ctx context.Context) []string {
	recent, err := s.approvals.ListRecent(ctx, 50)
	if err != nil {
		s.logger.Warn().Err(err).Msg("recent posts unavailable for prompt")
		return nil
	}

	posts := make([]string, 0, 5)
	for _, action := range recent {
		if action.Type != models.ActionCreatePost {
			continue
		}
		payload, err := action.Decode()
		if err != nil {
			continue
		}
		posts = append(posts, payload.(models.CreatePostPayload).Content)
		if len(posts) == 5 {
			break
		}
	}
	return posts
}

func (s *suggestionService) requireConfig(ctx context.Context) (*models.AgentConfig, error) {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigMissing
	}
	return cfg, nil
}

func budgetPayload(suggestion ai.BudgetSuggestion) models.Payload {
	if strings.TrimSpace(suggestion.CampaignID) == "" {
		return nil
	}
	switch suggestion.Action {
	case "increase", "decrease":
		if suggestion.NewBudget <= 0 || suggestion.NewBudget == suggestion.CurrentBudget {
			return nil
		}
		return models.AdjustBudgetPayload{
			CampaignID:    suggestion.CampaignID,
			CurrentBudget: suggestion.CurrentBudget,
			NewBudget:     suggestion.NewBudget,
			Reason:        suggestion.Reason,
		}
	case "pause":
		return models.PauseCampaignPayload{CampaignID: suggestion.CampaignID, Reason: suggestion.Reason}
	case "resume":
		return models.ResumeCampaignPayload{CampaignID: suggestion.CampaignID, Reason: suggestion.Reason}
	default:
		return nil
	}
}

// stripHTML removes markup and leaves plain text. Entities are decoded again since the
// ad platform expects raw text.
func stripHTML(policy *bluemonday.Policy, value string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(value)))
}

func confidenceOf(value string) models.Confidence {
	confidence := models.Confidence(strings.ToLower(strings.TrimSpace(value)))
	if confidence.Valid() {
		return confidence
	}
	return models.ConfidenceMedium
}

func hashtags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" || strings.ContainsAny(tag, " \t\n") {
			continue
		}
		out = append(out, "#"+tag)
	}
	return strings.Join(out, " ")
}

// scheduleAt turns an HH:MM suggestion into today's timestamp when it is at least ten minutes ahead.
func scheduleAt(clock string, now time.Time) string {
	if clock == "" {
		return ""
	}
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return ""
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if at.Before(now.Add(10 * time.Minute)) {
		return ""
	}
	return at.UTC().Format(time.RFC3339)
}

func majorUnits(minor int64) float64 {
	return models.FromMinorUnits(minor).InexactFloat64()
}
