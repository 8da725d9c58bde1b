package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agent",
		Subsystem: "ai",
		Name:      "suggestion_duration_seconds",
		Help:      "Duration of AI suggestion requests",
	}, []string{"model", "kind"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Subsystem: "ai",
		Name:      "suggestion_failures_total",
		Help:      "Number of AI suggestion requests that produced no usable suggestion",
	}, []string{"model", "kind"})
)

// OpenAIConfig defines configuration options for the OpenAI suggester.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAISuggester implements Suggester against the OpenAI chat completion API.
type OpenAISuggester struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAISuggester builds a suggester using the provided configuration.
func NewOpenAISuggester(cfg OpenAIConfig) (*OpenAISuggester, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 800
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAISuggester{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/marketing-agent/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "ai_suggester").Logger(),
	}, nil
}

// SuggestPost drafts a page post for the brief.
func (s *OpenAISuggester) SuggestPost(ctx context.Context, brief PostBrief) (PostSuggestion, error) {
	content, err := s.complete(ctx, "post", systemPrompt(brief.AgentName), postPrompt(brief))
	if err != nil {
		return PostSuggestion{}, err
	}

	suggestion, err := ParsePostSuggestion(content)
	if err != nil {
		aiFailures.WithLabelValues(s.cfg.Model, "post").Inc()
		s.logger.Warn().Err(err).Msg("discarding post suggestion")
		return PostSuggestion{}, err
	}
	return suggestion, nil
}

// SuggestBudget asks for budget changes across the given campaigns.
func (s *OpenAISuggester) SuggestBudget(ctx context.Context, brief BudgetBrief) ([]BudgetSuggestion, error) {
	if len(brief.Campaigns) == 0 {
		return nil, nil
	}

	content, err := s.complete(ctx, "budget", systemPrompt(""), budgetPrompt(brief))
	if err != nil {
		return nil, err
	}

	suggestions, err := ParseBudgetSuggestions(content)
	if err != nil {
		aiFailures.WithLabelValues(s.cfg.Model, "budget").Inc()
		s.logger.Warn().Err(err).Msg("discarding budget suggestions")
		return nil, err
	}
	return suggestions, nil
}

func (s *OpenAISuggester) complete(parent context.Context, kind, system, user string) (string, error) {
	ctx, span := s.tracer.Start(parent, "openai.suggest", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
		attribute.String("kind", kind),
	))
	defer span.End()

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	aiDuration.WithLabelValues(s.cfg.Model, kind).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(s.cfg.Model, kind).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai %s suggestion: %w", kind, err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: no choices returned from openai", ErrNoSuggestion)
		aiFailures.WithLabelValues(s.cfg.Model, kind).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.Int("usage.total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}

func systemPrompt(agentName string) string {
	if strings.TrimSpace(agentName) == "" {
		agentName = "the marketing agent"
	}
	return "You are " + agentName + ", an assistant that manages a business page and its ad campaigns. " +
		"Every reply is a single JSON object that matches the requested format exactly. Do not add commentary."
}

func postPrompt(brief PostBrief) string {
	now := brief.Now
	if now.IsZero() {
		now = time.Now()
	}

	builder := strings.Builder{}
	builder.WriteString("# Task\nDraft one page post that is relevant for today.\n")
	builder.WriteString("\n## Date\n")
	builder.WriteString(now.Format("Monday, 2 January 2006"))
	builder.WriteString("\n\n## Audience\n")
	builder.WriteString(orDefault(brief.TargetAudience, "General"))
	builder.WriteString("\n\n## Tone\n")
	builder.WriteString(orDefault(brief.Tone, "Professional"))
	builder.WriteString("\n\n## Topics\n")
	builder.WriteString(orDefault(strings.Join(brief.Topics, ", "), "General"))
	if len(brief.PostTimes) > 0 {
		builder.WriteString("\n\n## Preferred posting times\n")
		builder.WriteString(strings.Join(brief.PostTimes, ", "))
	}
	if len(brief.RecentPosts) > 0 {
		builder.WriteString("\n\n## Recent posts (avoid repeating)\n")
		for i, post := range brief.RecentPosts {
			builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, clip(post, 100)))
		}
	}
	builder.WriteString("\n\n## Reply format\n")
	builder.WriteString(`{"content": "post text, max 500 characters", "reasoning": "why this post", "expectedImpact": "expected effect", "suggestedTime": "HH:MM", "hashtags": ["tag"], "confidence": "high|medium|low"}`)
	return builder.String()
}

func budgetPrompt(brief BudgetBrief) string {
	campaigns, _ := json.Marshal(brief.Campaigns)

	builder := strings.Builder{}
	builder.WriteString("# Task\nRecommend daily budget changes for the campaigns below.\n")
	builder.WriteString(fmt.Sprintf("\n## Budget\nMonthly budget: %.2f\nSpent this month: %.2f\nDaily limit: %.2f\nSpent today: %.2f\n",
		brief.MonthlyBudget, brief.MonthlySpent, brief.DailyLimit, brief.TodaySpent))
	builder.WriteString("\n## Campaigns\n")
	builder.Write(campaigns)
	builder.WriteString("\n\n## Reply format\n")
	builder.WriteString(`{"suggestions": [{"campaignId": "id", "action": "increase|decrease|pause|resume", "currentBudget": 0, "newBudget": 0, "reason": "why", "confidence": "high|medium|low"}]}`)
	return builder.String()
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func clip(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}
