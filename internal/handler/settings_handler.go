package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/service"
	"github.com/noah-isme/marketing-agent/internal/utils"
)

// SettingsHandler reads and updates the agent configuration.
type SettingsHandler struct {
	service   service.SettingsService
	dashboard service.DashboardService
	logger    zerolog.Logger
}

// NewSettingsHandler constructs a settings handler. dashboard may be nil.
func NewSettingsHandler(svc service.SettingsService, dashboard service.DashboardService, logger zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{
		service:   svc,
		dashboard: dashboard,
		logger:    logger.With().Str("component", "settings_handler").Logger(),
	}
}

// Register binds settings routes.
func (h *SettingsHandler) Register(router fiber.Router) {
	router.Get("/", h.get)
	router.Put("/", h.update)
}

func (h *SettingsHandler) get(c *fiber.Ctx) error {
	cfg, err := h.service.GetConfig(requestContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load settings")
	}
	return utils.SendSuccess(c, "settings retrieved", dto.NewSettingsResponse(cfg))
}

func (h *SettingsHandler) update(c *fiber.Ctx) error {
	var req dto.SettingsUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	cfg, err := h.service.UpdateConfig(requestContext(c), req)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to update settings")
	}
	if h.dashboard != nil {
		h.dashboard.Invalidate(requestContext(c))
	}

	requestLogger(h.logger, c).Info().Msg("agent settings updated")
	return utils.SendSuccess(c, "settings updated", dto.NewSettingsResponse(cfg))
}
