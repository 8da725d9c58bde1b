package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/service"
	"github.com/noah-isme/marketing-agent/internal/utils"
)

// DashboardHandler serves the aggregated dashboard views.
type DashboardHandler struct {
	service service.DashboardService
	logger  zerolog.Logger
}

// NewDashboardHandler constructs a dashboard handler.
func NewDashboardHandler(svc service.DashboardService, logger zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: svc,
		logger:  logger.With().Str("component", "dashboard_handler").Logger(),
	}
}

// Register binds dashboard routes.
func (h *DashboardHandler) Register(router fiber.Router) {
	router.Get("/", h.overview)
	router.Get("/stats", h.stats)
	router.Get("/chart/:type", h.chart)
	router.Get("/report/:period", h.report)
}

func (h *DashboardHandler) overview(c *fiber.Ctx) error {
	overview, err := h.service.Overview(requestContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load dashboard")
	}
	return utils.SendSuccess(c, "dashboard retrieved", overview)
}

func (h *DashboardHandler) stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(requestContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load stats")
	}
	return utils.SendSuccess(c, "stats retrieved", stats)
}

func (h *DashboardHandler) chart(c *fiber.Ctx) error {
	days, err := parseQueryInt(c, "days")
	if err != nil || days < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid days")
	}

	points, err := h.service.Chart(requestContext(c), c.Params("type"), days)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load chart")
	}
	return utils.SendSuccess(c, "chart retrieved", points)
}

func (h *DashboardHandler) report(c *fiber.Ctx) error {
	period := models.GoalPeriod(c.Params("period"))
	if period != models.PeriodDaily && period != models.PeriodWeekly {
		return utils.SendError(c, fiber.StatusBadRequest, "period must be daily or weekly")
	}

	report, err := h.service.Report(requestContext(c), period)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to build report")
	}
	return utils.SendSuccess(c, "report retrieved", report)
}
