// Package app assembles the agent's services from configuration. Both the HTTP server and
// the operator CLI start from a Container.
package app

import (
	"context"
	"fmt"
	"net/smtp"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/marketing-agent/internal/config"
	"github.com/noah-isme/marketing-agent/internal/database"
	"github.com/noah-isme/marketing-agent/internal/handler"
	"github.com/noah-isme/marketing-agent/internal/repository"
	"github.com/noah-isme/marketing-agent/internal/scheduler"
	"github.com/noah-isme/marketing-agent/internal/service"
	"github.com/noah-isme/marketing-agent/pkg/adplatform"
	"github.com/noah-isme/marketing-agent/pkg/ai"
	cloud "github.com/noah-isme/marketing-agent/pkg/cloudinary"
	"github.com/noah-isme/marketing-agent/pkg/mailer"
)

// Container holds the connections and services of one agent process.
type Container struct {
	Config    config.Config
	Logger    zerolog.Logger
	DB        *gorm.DB
	Redis     *redis.Client
	NATS      *nats.Conn
	Validator *validator.Validate

	Audit       service.AuditService
	Budget      service.BudgetService
	Settings    service.SettingsService
	Notifier    service.Notifier
	Events      service.EventService
	Approvals   service.ApprovalService
	Executor    service.ExecutorService
	Dashboard   service.DashboardService
	Suggestions service.SuggestionService
	Scheduler   *scheduler.Scheduler
}

// New connects to storage, migrates it, seeds the agent configuration and builds every service.
// Jobs are registered on the scheduler but not started.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	c.DB = db

	if cfg.RedisURL != "" {
		if c.Redis, err = database.ConnectRedis(ctx, cfg.RedisURL); err != nil {
			c.Close()
			return nil, err
		}
	} else {
		logger.Warn().Msg("redis not configured, dashboard cache and job locks disabled")
	}

	if cfg.NATSURL != "" {
		if c.NATS, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName); err != nil {
			c.Close()
			return nil, err
		}
	}

	c.Validator = validator.New(validator.WithRequiredStructEnabled())

	actionRepo := repository.NewActionRepository(db)
	configRepo := repository.NewConfigRepository(db)
	txManager := repository.NewTransactionManager(db)

	c.Audit = service.NewAuditService(repository.NewAuditRepository(db), logger)
	c.Budget = service.NewBudgetService(repository.NewBudgetRepository(db), logger)
	c.Settings = service.NewSettingsService(configRepo, repository.NewGoalRepository(db), c.Audit, c.Validator, logger)

	created, err := c.Settings.SeedConfig(ctx, cfg.AgentConfig())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("seed agent configuration: %w", err)
	}
	if created {
		logger.Info().Str("agent", cfg.Seed.Name).Msg("agent configuration seeded")
	}

	c.Notifier = newNotifier(cfg, logger)
	c.Events = service.NewEventService(c.Redis, cfg.EventsChannel, c.NATS, logger)

	c.Approvals = service.NewApprovalService(service.ApprovalDependencies{
		Actions:   actionRepo,
		Configs:   configRepo,
		Tx:        txManager,
		Audit:     c.Audit,
		Notifier:  c.Notifier,
		Events:    c.Events,
		Validator: c.Validator,
		BaseURL:   cfg.BaseURL,
	}, logger)

	backend, insights, err := newAdBackend(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	media, err := newMediaService(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Executor = service.NewExecutorService(service.ExecutorDependencies{
		Actions:   actionRepo,
		Configs:   configRepo,
		Tx:        txManager,
		Approvals: c.Approvals,
		Budget:    c.Budget,
		Backend:   backend,
		Media:     media,
		Notifier:  c.Notifier,
		Events:    c.Events,
		ClaimTTL:  cfg.ExecutionClaimTTL,
	}, logger)

	c.Dashboard = service.NewDashboardService(service.DashboardDependencies{
		Approvals: c.Approvals,
		Audit:     c.Audit,
		Budget:    c.Budget,
		Settings:  c.Settings,
		Cache:     c.Redis,
		CacheTTL:  cfg.DashboardCacheTTL,
	}, logger)

	suggester, err := newSuggester(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Suggestions = service.NewSuggestionService(service.SuggestionDependencies{
		Suggester: suggester,
		Insights:  insights,
		Approvals: c.Approvals,
		Budget:    c.Budget,
		Configs:   configRepo,
	}, logger)

	c.Scheduler = scheduler.New(c.Redis, cfg.SchedulerLockTTL, logger)
	if err := scheduler.RegisterJobs(c.Scheduler, cfg.JobSpecs, scheduler.JobDependencies{
		Approvals:           c.Approvals,
		Executor:            c.Executor,
		Suggestions:         c.Suggestions,
		Budget:              c.Budget,
		Audit:               c.Audit,
		Settings:            c.Settings,
		Dashboard:           c.Dashboard,
		Notifier:            c.Notifier,
		AuditRetentionDays:  cfg.AuditRetentionDays,
		BudgetRetentionDays: cfg.BudgetRetentionDays,
	}); err != nil {
		c.Close()
		return nil, fmt.Errorf("register jobs: %w", err)
	}

	return c, nil
}

// HealthProbes checks the database and, when configured, redis.
func (c *Container) HealthProbes() map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if c.Redis != nil {
		probes["redis"] = func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		}
	}
	return probes
}

// Close releases the connections opened by New.
func (c *Container) Close() {
	database.CloseNATS(c.NATS)
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func newNotifier(cfg config.Config, logger zerolog.Logger) service.Notifier {
	smtpMailer := mailer.NewSMTP(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Logger:   logger,
	}, smtp.SendMail)
	if !smtpMailer.Enabled() {
		logger.Warn().Msg("smtp not configured, emails disabled")
		return nil
	}
	return service.NewEmailNotifier(smtpMailer, cfg.Seed.Name, logger)
}

// newAdBackend returns nil interfaces without an access token. Approved actions then fail
// with a configuration error instead of calling the platform.
func newAdBackend(cfg config.Config, logger zerolog.Logger) (service.AdBackend, service.InsightsSource, error) {
	if cfg.AdPlatformToken == "" {
		logger.Warn().Msg("ad platform token not configured, actions will fail on execution")
		return nil, nil, nil
	}
	client, err := adplatform.New(adplatform.Config{
		BaseURL:     cfg.AdPlatformBaseURL,
		APIVersion:  cfg.AdPlatformAPIVersion,
		AccessToken: cfg.AdPlatformToken,
		PageID:      cfg.PageID,
		AdAccountID: cfg.AdAccountID,
		Timeout:     cfg.AdPlatformTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create ad platform client: %w", err)
	}
	return client, client, nil
}

func newMediaService(cfg config.Config, logger zerolog.Logger) (service.MediaService, error) {
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if !cloudCfg.Enabled() {
		return nil, nil
	}
	uploader, err := cloud.New(cloudCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create cloudinary client: %w", err)
	}
	return service.NewMediaService(uploader, nil, cfg.MediaMaxSizeMB, logger), nil
}

func newSuggester(cfg config.Config, logger zerolog.Logger) (ai.Suggester, error) {
	if cfg.OpenAIAPIKey == "" {
		logger.Info().Msg("openai not configured, suggestion jobs disabled")
		return nil, nil
	}
	suggester, err := ai.NewOpenAISuggester(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return suggester, nil
}

// NewLogger builds the process logger at the configured level.
func NewLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()
}
