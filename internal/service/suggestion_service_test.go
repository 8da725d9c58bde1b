package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/pkg/adplatform"
	"github.com/noah-isme/marketing-agent/pkg/ai"
)

type suggesterStub struct {
	post       ai.PostSuggestion
	postErr    error
	budget     []ai.BudgetSuggestion
	budgetErr  error
	postBrief  ai.PostBrief
	budgetSeen ai.BudgetBrief
}

func (s *suggesterStub) SuggestPost(ctx context.Context, brief ai.PostBrief) (ai.PostSuggestion, error) {
	s.postBrief = brief
	return s.post, s.postErr
}

func (s *suggesterStub) SuggestBudget(ctx context.Context, brief ai.BudgetBrief) ([]ai.BudgetSuggestion, error) {
	s.budgetSeen = brief
	return s.budget, s.budgetErr
}

type insightsStub struct {
	campaigns []adplatform.CampaignPerformance
}

func (i insightsStub) CampaignInsights(ctx context.Context, since, until time.Time) ([]adplatform.CampaignPerformance, error) {
	return i.campaigns, nil
}

func newSuggestionFixture(t *testing.T, suggester *suggesterStub, insights InsightsSource) (*approvalFixture, SuggestionService) {
	t.Helper()
	f := newApprovalFixture(t)
	budget := NewBudgetService(f.store.budgets, testLogger())
	budget.(*budgetService).now = f.clock.Now

	svc := NewSuggestionService(SuggestionDependencies{
		Suggester: suggester,
		Insights:  insights,
		Approvals: f.service,
		Budget:    budget,
		Configs:   f.store.configs,
	}, testLogger())
	svc.(*suggestionService).now = f.clock.Now
	return f, svc
}

func TestSuggestionSubmitAutoApprovesWhenNotRequired(t *testing.T) {
	f, svc := newSuggestionFixture(t, &suggesterStub{}, nil)

	action, err := svc.Submit(context.Background(), QueueRequest{Payload: models.PauseCampaignPayload{CampaignID: "cmp-1"}})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, action.Status)
	require.Equal(t, AutoApprover, action.ApprovedBy)

	entries := f.store.auditEntries(t, action.ID)
	require.Len(t, entries, 2)
	require.Equal(t, models.AuditApproved, entries[0].EventType)
}

func TestSuggestionSubmitKeepsRequiredPending(t *testing.T) {
	_, svc := newSuggestionFixture(t, &suggesterStub{}, nil)

	action, err := svc.Submit(context.Background(), QueueRequest{Payload: models.CreatePostPayload{Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, action.Status)
}

func TestSuggestionGeneratePost(t *testing.T) {
	suggester := &suggesterStub{post: ai.PostSuggestion{
		Content:       "<p>Fresh <b>menu</b> &amp; drinks</p>",
		Reasoning:     "weekday lunch traffic",
		SuggestedTime: "12:30",
		Hashtags:      []string{"#lunch", "food", "two words"},
		Confidence:    "HIGH",
	}}
	f, svc := newSuggestionFixture(t, suggester, nil)
	f.queuePost(t)

	action, err := svc.GeneratePost(context.Background())
	require.NoError(t, err)
	require.NotNil(t, action)
	require.Equal(t, models.ConfidenceHigh, action.Confidence)
	require.Equal(t, "Test Agent", suggester.postBrief.AgentName)
	require.Equal(t, []string{"Spring sale starts today"}, suggester.postBrief.RecentPosts)

	payload, err := action.Decode()
	require.NoError(t, err)
	post := payload.(models.CreatePostPayload)
	require.Equal(t, "Fresh menu & drinks\n\n#lunch #food", post.Content)
	require.Equal(t, "2025-03-10T12:30:00Z", post.ScheduledTime)
}

func TestSuggestionGeneratePostNoSuggestion(t *testing.T) {
	suggester := &suggesterStub{postErr: ai.ErrNoSuggestion}
	_, svc := newSuggestionFixture(t, suggester, nil)

	action, err := svc.GeneratePost(context.Background())
	require.NoError(t, err)
	require.Nil(t, action)

	suggester.postErr = errors.New("rate limited")
	_, err = svc.GeneratePost(context.Background())
	require.Error(t, err)
}

func TestSuggestionGenerateBudget(t *testing.T) {
	suggester := &suggesterStub{budget: []ai.BudgetSuggestion{
		{CampaignID: "cmp-1", Action: "increase", CurrentBudget: 10, NewBudget: 15, Reason: "strong CTR"},
		{CampaignID: "cmp-2", Action: "pause", Reason: "no clicks"},
		{CampaignID: "cmp-3", Action: "maintain"},
		{CampaignID: "", Action: "pause"},
	}}
	insights := insightsStub{campaigns: []adplatform.CampaignPerformance{
		{CampaignID: "cmp-1", Name: "Spring", DailyBudget: 1000, Clicks: 120},
		{CampaignID: "cmp-2", Name: "Winter", DailyBudget: 500},
	}}
	_, svc := newSuggestionFixture(t, suggester, insights)

	queued, err := svc.GenerateBudget(context.Background())
	require.NoError(t, err)
	require.Len(t, queued, 2)

	require.Equal(t, models.ActionAdjustBudget, queued[0].Type)
	require.Equal(t, models.StatusPending, queued[0].Status)
	require.Equal(t, models.ActionPauseCampaign, queued[1].Type)
	require.Equal(t, models.StatusApproved, queued[1].Status)

	require.Len(t, suggester.budgetSeen.Campaigns, 2)
	require.InDelta(t, 10.0, suggester.budgetSeen.Campaigns[0].DailyBudget, 0.001)
	require.InDelta(t, 1000.0, suggester.budgetSeen.MonthlyBudget, 0.001)
}

func TestScheduleAt(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	require.Equal(t, "2025-03-10T18:00:00Z", scheduleAt("18:00", now))
	require.Empty(t, scheduleAt("09:05", now))
	require.Empty(t, scheduleAt("noon", now))
	require.Empty(t, scheduleAt("", now))
}

func TestStripHTML(t *testing.T) {
	policy := bluemonday.StrictPolicy()
	require.Equal(t, "Tom & Jerry", stripHTML(policy, "<i>Tom</i> &amp; Jerry"))
	require.Equal(t, "", stripHTML(policy, "<script>alert(1)</script>"))
}
