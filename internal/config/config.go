package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/datatypes"

	"github.com/noah-isme/marketing-agent/internal/models"
)

// Job names understood by the scheduler.
const (
	JobExpireActions      = "expire_actions"
	JobProcessApproved    = "process_approved"
	JobContentSuggestion  = "content_suggestion"
	JobBudgetOptimization = "budget_optimization"
	JobDailyReport        = "daily_report"
	JobWeeklyReport       = "weekly_report"
	JobRetention          = "retention"
)

var defaultJobSpecs = map[string]string{
	JobExpireActions:      "0 * * * *",
	JobProcessApproved:    "*/5 * * * *",
	JobContentSuggestion:  "0 8 * * *",
	JobBudgetOptimization: "0 20 * * *",
	JobDailyReport:        "0 21 * * *",
	JobWeeklyReport:       "0 18 * * 0",
	JobRetention:          "30 3 * * *",
}

// Config holds runtime configuration values for the agent service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	LogLevel    string
	BaseURL     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	// EventsChannel prefixes the redis channel and nats subject for lifecycle events.
	EventsChannel string
	JWTSecret     string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	AdPlatformBaseURL    string
	AdPlatformAPIVersion string
	AdPlatformToken      string
	AdPlatformTimeout    time.Duration
	PageID               string
	AdAccountID          string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	MediaMaxSizeMB         int

	OTelEndpoint        string
	DashboardCacheTTL   time.Duration
	EventsPingInterval  time.Duration
	WebhookRateLimit    int
	JobSpecs            map[string]string
	SchedulerRunOnStart bool
	SchedulerLockTTL    time.Duration
	ExecutionClaimTTL   time.Duration
	AuditRetentionDays  int
	BudgetRetentionDays int

	Seed AgentSeed
}

// AgentSeed is the configuration written on first start when no agent configuration exists.
// Money values are in major units.
type AgentSeed struct {
	Name             string
	ApprovalEmail    string
	TotalBudget      float64
	DailyLimit       float64
	AlertThreshold   int
	TimeoutHours     int
	RequireApproval  []models.ActionType
	AutoApproveBelow float64
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// AgentConfig converts the seed values into the stored configuration shape.
func (c Config) AgentConfig() models.AgentConfig {
	required := c.Seed.RequireApproval
	if len(required) == 0 {
		required = append([]models.ActionType(nil), models.DefaultRequiredApprovals...)
	}

	cfg := models.AgentConfig{
		ID:          models.DefaultAgentConfigID,
		Name:        c.Seed.Name,
		PageID:      c.PageID,
		AdAccountID: c.AdAccountID,
	}
	cfg.Budget = datatypes.NewJSONType(models.BudgetSettings{
		Total:          models.ToMinorUnits(c.Seed.TotalBudget),
		Period:         "monthly",
		DailyLimit:     models.ToMinorUnits(c.Seed.DailyLimit),
		AlertThreshold: c.Seed.AlertThreshold,
	})
	cfg.Approval = datatypes.NewJSONType(models.ApprovalSettings{
		RequiredFor:      required,
		AutoApproveBelow: models.ToMinorUnits(c.Seed.AutoApproveBelow),
		TimeoutHours:     c.Seed.TimeoutHours,
		Email:            c.Seed.ApprovalEmail,
	})
	cfg.Notifications = datatypes.NewJSONType(models.NotificationSettings{
		DailyReport:   true,
		WeeklyReport:  true,
		InstantAlerts: true,
	})
	cfg.Strategy = datatypes.NewJSONType(models.StrategySettings{
		Tone:          "friendly",
		PostFrequency: 1,
	})
	return cfg
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AGENT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Marketing Agent")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("database.url", "sqlite://marketing-agent.db")
	v.SetDefault("events.channel", "marketing-agent")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("adplatform.base_url", "https://graph.facebook.com")
	v.SetDefault("adplatform.api_version", "v19.0")
	v.SetDefault("adplatform.timeout", "30s")
	v.SetDefault("cloudinary.folder", "marketing-agent/posts")
	v.SetDefault("media.max_size_mb", 8)
	v.SetDefault("dashboard.cache_ttl", "30s")
	v.SetDefault("events.ping_interval", "30s")
	v.SetDefault("webhook.rate_limit", 30)
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("scheduler.lock_ttl", "10m")
	v.SetDefault("executor.claim_ttl", "30m")
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("budget.retention_days", 365)
	v.SetDefault("agent.name", "Marketing Agent")
	v.SetDefault("agent.total_budget", 1000)
	v.SetDefault("agent.daily_limit", 100)
	v.SetDefault("agent.alert_threshold", 80)
	v.SetDefault("agent.timeout_hours", 24)
	v.SetDefault("agent.auto_approve_below", 0)
	for name, spec := range defaultJobSpecs {
		v.SetDefault("jobs."+name, spec)
	}

	durations := map[string]time.Duration{}
	for _, key := range []string{"adplatform.timeout", "dashboard.cache_ttl", "events.ping_interval", "scheduler.lock_ttl", "executor.claim_ttl"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	required, err := parseActionTypes(v.GetString("agent.require_approval"))
	if err != nil {
		return Config{}, err
	}

	jobs := make(map[string]string, len(defaultJobSpecs))
	for name := range defaultJobSpecs {
		jobs[name] = strings.TrimSpace(v.GetString("jobs." + name))
	}

	cfg := Config{
		AppName:       v.GetString("app.name"),
		AppEnv:        v.GetString("app.env"),
		AppPort:       v.GetString("app.port"),
		LogLevel:      strings.ToLower(v.GetString("log.level")),
		BaseURL:       strings.TrimRight(v.GetString("base_url"), "/"),
		DatabaseURL:   v.GetString("database.url"),
		RedisURL:      v.GetString("redis.url"),
		NATSURL:       v.GetString("nats.url"),
		EventsChannel: v.GetString("events.channel"),
		JWTSecret:     v.GetString("jwt.secret"),

		SMTPHost:     v.GetString("smtp.host"),
		SMTPPort:     v.GetInt("smtp.port"),
		SMTPUsername: v.GetString("smtp.username"),
		SMTPPassword: v.GetString("smtp.password"),
		SMTPFrom:     v.GetString("smtp.from"),

		OpenAIAPIKey:  v.GetString("openai.api_key"),
		OpenAIModel:   v.GetString("openai.model"),
		OpenAIBaseURL: v.GetString("openai.base_url"),

		AdPlatformBaseURL:    v.GetString("adplatform.base_url"),
		AdPlatformAPIVersion: v.GetString("adplatform.api_version"),
		AdPlatformToken:      v.GetString("adplatform.access_token"),
		AdPlatformTimeout:    durations["adplatform.timeout"],
		PageID:               v.GetString("adplatform.page_id"),
		AdAccountID:          v.GetString("adplatform.ad_account_id"),

		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		MediaMaxSizeMB:         v.GetInt("media.max_size_mb"),

		OTelEndpoint:        v.GetString("otel.endpoint"),
		DashboardCacheTTL:   durations["dashboard.cache_ttl"],
		EventsPingInterval:  durations["events.ping_interval"],
		WebhookRateLimit:    v.GetInt("webhook.rate_limit"),
		JobSpecs:            jobs,
		SchedulerRunOnStart: v.GetBool("scheduler.run_on_start"),
		SchedulerLockTTL:    durations["scheduler.lock_ttl"],
		ExecutionClaimTTL:   durations["executor.claim_ttl"],
		AuditRetentionDays:  v.GetInt("audit.retention_days"),
		BudgetRetentionDays: v.GetInt("budget.retention_days"),

		Seed: AgentSeed{
			Name:             v.GetString("agent.name"),
			ApprovalEmail:    v.GetString("agent.approval_email"),
			TotalBudget:      v.GetFloat64("agent.total_budget"),
			DailyLimit:       v.GetFloat64("agent.daily_limit"),
			AlertThreshold:   v.GetInt("agent.alert_threshold"),
			TimeoutHours:     v.GetInt("agent.timeout_hours"),
			RequireApproval:  required,
			AutoApproveBelow: v.GetFloat64("agent.auto_approve_below"),
		},
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}
	if cfg.AuditRetentionDays <= 0 {
		cfg.AuditRetentionDays = 90
	}
	if cfg.BudgetRetentionDays <= 0 {
		cfg.BudgetRetentionDays = 365
	}
	if cfg.MediaMaxSizeMB <= 0 {
		cfg.MediaMaxSizeMB = 8
	}

	return cfg, nil
}

func parseActionTypes(raw string) ([]models.ActionType, error) {
	var out []models.ActionType
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed == "" {
			continue
		}
		actionType := models.ActionType(trimmed)
		if !actionType.Valid() {
			return nil, fmt.Errorf("invalid agent.require_approval entry %q", trimmed)
		}
		out = append(out, actionType)
	}
	return out, nil
}
