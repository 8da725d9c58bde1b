package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/service"
	"github.com/noah-isme/marketing-agent/internal/utils"
)

type goalProgressRequest struct {
	Current int64 `json:"current"`
}

// GoalHandler manages marketing goals.
type GoalHandler struct {
	service   service.SettingsService
	dashboard service.DashboardService
	logger    zerolog.Logger
}

// NewGoalHandler constructs a goal handler. dashboard may be nil.
func NewGoalHandler(svc service.SettingsService, dashboard service.DashboardService, logger zerolog.Logger) *GoalHandler {
	return &GoalHandler{
		service:   svc,
		dashboard: dashboard,
		logger:    logger.With().Str("component", "goal_handler").Logger(),
	}
}

// Register binds goal routes.
func (h *GoalHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.create)
	router.Post("/reset/:period", h.reset)
	router.Put("/:id", h.update)
	router.Patch("/:id/progress", h.progress)
	router.Delete("/:id", h.delete)
}

func (h *GoalHandler) list(c *fiber.Ctx) error {
	goals, err := h.service.ListGoals(requestContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to list goals")
	}
	return utils.SendSuccess(c, "goals retrieved", goals)
}

func (h *GoalHandler) create(c *fiber.Ctx) error {
	var req dto.GoalRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	goal, err := h.service.CreateGoal(requestContext(c), req)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to create goal")
	}
	h.invalidate(c)
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "goal created", goal)
}

func (h *GoalHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.GoalUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	goal, err := h.service.UpdateGoal(requestContext(c), id, req)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update goal")
	}
	h.invalidate(c)
	return utils.SendSuccess(c, "goal updated", goal)
}

func (h *GoalHandler) progress(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req goalProgressRequest
	if err := c.BodyParser(&req); err != nil || req.Current < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "current must be a non-negative number")
	}

	goal, err := h.service.UpdateGoalProgress(requestContext(c), id, req.Current)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update goal progress")
	}
	h.invalidate(c)
	return utils.SendSuccess(c, "goal progress updated", goal)
}

func (h *GoalHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteGoal(requestContext(c), id); err != nil {
		return sendServiceError(c, h.logger, err, "failed to delete goal")
	}
	h.invalidate(c)
	return utils.SendSuccess(c, "goal deleted", nil)
}

func (h *GoalHandler) reset(c *fiber.Ctx) error {
	period := models.GoalPeriod(c.Params("period"))
	switch period {
	case models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly:
	default:
		return utils.SendError(c, fiber.StatusBadRequest, "invalid period")
	}

	count, err := h.service.ResetGoalPeriod(requestContext(c), period)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to reset goals")
	}
	h.invalidate(c)
	return utils.SendSuccess(c, "goals reset", fiber.Map{"reset": count})
}

func (h *GoalHandler) invalidate(c *fiber.Ctx) {
	if h.dashboard != nil {
		h.dashboard.Invalidate(requestContext(c))
	}
}
