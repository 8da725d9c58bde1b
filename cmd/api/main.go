package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/app"
	"github.com/noah-isme/marketing-agent/internal/config"
	"github.com/noah-isme/marketing-agent/internal/handler"
	"github.com/noah-isme/marketing-agent/internal/middleware"
	"github.com/noah-isme/marketing-agent/internal/observability"
	"github.com/noah-isme/marketing-agent/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.AppName, cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("failed to initialise tracing: %v", err)
	}

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to start agent: %v", err)
	}
	defer container.Close()

	container.Events.Start(ctx)
	container.Scheduler.Start(ctx)
	if cfg.SchedulerRunOnStart {
		go container.Scheduler.RunAll(ctx)
	}

	server := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(server, middleware.Config{Logger: &logger})

	var jwtMiddleware fiber.Handler
	if cfg.JWTSecret != "" {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	} else {
		logger.Warn().Msg("dashboard API is not protected, set AGENT_JWT_SECRET to require tokens")
	}

	router.Register(server, cfg, router.Dependencies{
		WebhookHandler:   handler.NewWebhookHandler(container.Approvals, container.Executor, container.Dashboard, logger),
		ApprovalHandler:  handler.NewApprovalHandler(container.Approvals, container.Executor, container.Dashboard, container.Validator, logger),
		DashboardHandler: handler.NewDashboardHandler(container.Dashboard, logger),
		GoalHandler:      handler.NewGoalHandler(container.Settings, container.Dashboard, logger),
		SettingsHandler:  handler.NewSettingsHandler(container.Settings, container.Dashboard, logger),
		LogHandler:       handler.NewLogHandler(container.Audit, logger),
		AgentHandler:     handler.NewAgentHandler(container.Scheduler, container.Approvals, container.Settings, logger),
		EventHandler:     handler.NewEventHandler(container.Events, cfg.EventsPingInterval, logger),
		HealthProbes:     container.HealthProbes(),
		JWTMiddleware:    jwtMiddleware,
	})

	go func() {
		if err := server.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	waitForShutdown(server, container, shutdownTracing, logger)
}

func waitForShutdown(server *fiber.App, container *app.Container, shutdownTracing func(context.Context) error, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	container.Scheduler.Stop()
	if err := shutdownTracing(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to flush traces")
	}

	logger.Info().Msg("server stopped")
}
