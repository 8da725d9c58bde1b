package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/scheduler"
	"github.com/noah-isme/marketing-agent/internal/service"
	"github.com/noah-isme/marketing-agent/internal/utils"
)

// JobRunner is the scheduler surface used by the agent endpoints.
type JobRunner interface {
	List() []dto.JobInfo
	RunNow(ctx context.Context, name string) error
}

// AgentHandler reports the scheduler state and triggers jobs on demand.
type AgentHandler struct {
	jobs      JobRunner
	approvals service.ApprovalService
	settings  service.SettingsService
	logger    zerolog.Logger
}

// NewAgentHandler constructs an agent handler.
func NewAgentHandler(jobs JobRunner, approvals service.ApprovalService, settings service.SettingsService, logger zerolog.Logger) *AgentHandler {
	return &AgentHandler{
		jobs:      jobs,
		approvals: approvals,
		settings:  settings,
		logger:    logger.With().Str("component", "agent_handler").Logger(),
	}
}

// Register binds agent routes.
func (h *AgentHandler) Register(router fiber.Router) {
	router.Get("/status", h.status)
	router.Post("/jobs/:name/run", h.run)
}

func (h *AgentHandler) status(c *fiber.Ctx) error {
	ctx := requestContext(c)

	status := dto.AgentStatus{Jobs: h.jobs.List()}
	if _, err := h.settings.GetConfig(ctx); err == nil {
		status.Configured = true
	} else if !errors.Is(err, service.ErrConfigMissing) {
		return sendServiceError(c, h.logger, err, "failed to load agent status")
	}

	counts, err := h.approvals.Stats(ctx)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load agent status")
	}
	status.Actions = counts

	return utils.SendSuccess(c, "agent status retrieved", status)
}

func (h *AgentHandler) run(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.jobs.RunNow(requestContext(c), name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		return sendServiceError(c, h.logger, err, "job run failed")
	}

	requestLogger(h.logger, c).Info().Str("job", name).Msg("job triggered manually")
	return utils.SendSuccess(c, "job completed", fiber.Map{"job": name})
}
