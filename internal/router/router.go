package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/marketing-agent/internal/config"
	"github.com/noah-isme/marketing-agent/internal/handler"
	"github.com/noah-isme/marketing-agent/internal/middleware"
	"github.com/noah-isme/marketing-agent/internal/observability"
)

// Dependencies groups router dependencies for registration. Nil handlers are not mounted.
type Dependencies struct {
	WebhookHandler   *handler.WebhookHandler
	ApprovalHandler  *handler.ApprovalHandler
	DashboardHandler *handler.DashboardHandler
	GoalHandler      *handler.GoalHandler
	SettingsHandler  *handler.SettingsHandler
	LogHandler       *handler.LogHandler
	AgentHandler     *handler.AgentHandler
	EventHandler     *handler.EventHandler
	HealthProbes     map[string]handler.HealthProbe
	JWTMiddleware    fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Emailed approval links carry their own bearer token.
	if deps.WebhookHandler != nil {
		webhook := app.Group("/webhook", middleware.RateLimit("webhook", cfg.WebhookRateLimit, time.Minute))
		deps.WebhookHandler.Register(webhook)
	}

	api := app.Group("/api", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	// Role checks only apply when dashboard tokens are issued. Viewers keep read access everywhere.
	writers := middleware.Optional(deps.JWTMiddleware != nil, middleware.RequireRoleForWrites(middleware.RoleOwner, middleware.RoleAdmin))

	if deps.DashboardHandler != nil {
		deps.DashboardHandler.Register(api.Group("/dashboard", jwtMiddleware))
	}
	if deps.ApprovalHandler != nil {
		deps.ApprovalHandler.Register(api.Group("/approvals", jwtMiddleware, writers))
	}
	if deps.GoalHandler != nil {
		deps.GoalHandler.Register(api.Group("/goals", jwtMiddleware, writers))
	}
	if deps.SettingsHandler != nil {
		deps.SettingsHandler.Register(api.Group("/settings", jwtMiddleware, writers))
	}
	if deps.LogHandler != nil {
		deps.LogHandler.Register(api.Group("/logs", jwtMiddleware))
	}
	if deps.AgentHandler != nil {
		deps.AgentHandler.Register(api.Group("/agent", jwtMiddleware, writers))
	}
	if deps.EventHandler != nil {
		deps.EventHandler.Register(api.Group("/events", jwtMiddleware))
	}
}
