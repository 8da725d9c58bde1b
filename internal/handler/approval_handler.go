package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/service"
	"github.com/noah-isme/marketing-agent/internal/utils"
)

// ApprovalHandler exposes the approval queue to the dashboard.
type ApprovalHandler struct {
	approvals service.ApprovalService
	executor  service.ExecutorService
	dashboard service.DashboardService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewApprovalHandler constructs an approval handler. dashboard may be nil.
func NewApprovalHandler(approvals service.ApprovalService, executor service.ExecutorService, dashboard service.DashboardService, validate *validator.Validate, logger zerolog.Logger) *ApprovalHandler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &ApprovalHandler{
		approvals: approvals,
		executor:  executor,
		dashboard: dashboard,
		validator: validate,
		logger:    logger.With().Str("component", "approval_handler").Logger(),
	}
}

// Register binds approval routes.
func (h *ApprovalHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/:id", h.get)
	router.Post("/:id/approve", h.approve)
	router.Post("/:id/reject", h.reject)
	router.Post("/:id/execute", h.execute)
}

func (h *ApprovalHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	ctx := requestContext(c)
	status := models.ActionStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))

	var actions []models.PendingAction
	switch {
	case status == "" || status == models.StatusPending:
		actions, err = h.approvals.ListPending(ctx)
	case status.Valid():
		actions, err = h.approvals.ListByStatus(ctx, status, limit)
	default:
		return utils.SendError(c, fiber.StatusBadRequest, "invalid status")
	}
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to list actions")
	}

	return utils.SendSuccess(c, "actions retrieved", dto.NewActionResponseSlice(actions))
}

func (h *ApprovalHandler) get(c *fiber.Ctx) error {
	action, err := h.approvals.GetByID(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load action")
	}
	if action == nil {
		return utils.SendError(c, fiber.StatusNotFound, service.ErrNotFound.Error())
	}
	return utils.SendSuccess(c, "action retrieved", dto.NewActionResponse(*action))
}

func (h *ApprovalHandler) approve(c *fiber.Ctx) error {
	ctx := requestContext(c)
	action, err := h.approvals.ApproveByID(ctx, c.Params("id"), actorFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to approve action")
	}
	h.invalidate(c)

	response := dto.DecisionResponse{Action: dto.NewActionResponse(action)}
	outcome, err := h.executor.Execute(ctx, action)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Str("action_id", action.ID).Msg("immediate execution failed")
		return utils.SendSuccess(c, "action approved, execution deferred", response)
	}
	response.Execution = &outcome
	if refreshed, err := h.approvals.GetByID(ctx, action.ID); err == nil && refreshed != nil {
		response.Action = dto.NewActionResponse(*refreshed)
	}

	return utils.SendSuccess(c, "action approved", response)
}

func (h *ApprovalHandler) reject(c *fiber.Ctx) error {
	var req dto.DecisionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}
	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	action, err := h.approvals.RejectByID(requestContext(c), c.Params("id"), actorFromContext(c), strings.TrimSpace(req.Reason))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to reject action")
	}
	h.invalidate(c)

	return utils.SendSuccess(c, "action rejected", dto.DecisionResponse{Action: dto.NewActionResponse(action)})
}

func (h *ApprovalHandler) execute(c *fiber.Ctx) error {
	outcome, err := h.executor.ExecuteByID(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to execute action")
	}
	if outcome.Skipped {
		return utils.SendError(c, fiber.StatusConflict, "action is not awaiting execution")
	}
	h.invalidate(c)
	return utils.SendSuccess(c, "action processed", outcome)
}

func (h *ApprovalHandler) invalidate(c *fiber.Ctx) {
	if h.dashboard != nil {
		h.dashboard.Invalidate(requestContext(c))
	}
}
