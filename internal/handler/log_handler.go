package handler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/repository"
	"github.com/noah-isme/marketing-agent/internal/service"
	"github.com/noah-isme/marketing-agent/internal/utils"
)

const (
	defaultLogPageSize = 50
	maxLogPageSize     = 500
)

// LogHandler exposes the audit log.
type LogHandler struct {
	service service.AuditService
	logger  zerolog.Logger
}

// NewLogHandler constructs a log handler.
func NewLogHandler(svc service.AuditService, logger zerolog.Logger) *LogHandler {
	return &LogHandler{
		service: svc,
		logger:  logger.With().Str("component", "log_handler").Logger(),
	}
}

// Register binds audit log routes.
func (h *LogHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/stats", h.stats)
	router.Get("/actions/:id", h.byAction)
}

// list returns the latest entries when only limit is given, otherwise a filtered page.
func (h *LogHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	filter, err := parseAuditFilter(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := requestContext(c)
	if isRecentQuery(filter) {
		if limit > maxLogPageSize {
			limit = maxLogPageSize
		}
		entries, err := h.service.Recent(ctx, limit)
		if err != nil {
			return sendServiceError(c, h.logger, err, "failed to load logs")
		}
		return utils.SendSuccess(c, "logs retrieved", entries)
	}

	if filter.Page == 0 {
		filter.Page = 1
	}
	switch {
	case filter.PageSize == 0:
		filter.PageSize = defaultLogPageSize
	case filter.PageSize > maxLogPageSize:
		filter.PageSize = maxLogPageSize
	}

	entries, total, err := h.service.List(ctx, filter)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load logs")
	}
	return utils.OK(c, entries, "logs retrieved", utils.PageMeta{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Total:    total,
	})
}

func (h *LogHandler) stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(requestContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load log stats")
	}
	return utils.SendSuccess(c, "log stats retrieved", stats)
}

func (h *LogHandler) byAction(c *fiber.Ctx) error {
	entries, err := h.service.ByAction(requestContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load action history")
	}
	return utils.SendSuccess(c, "action history retrieved", entries)
}

func parseAuditFilter(c *fiber.Ctx) (repository.AuditFilter, error) {
	page, err := parseQueryInt(c, "page")
	if err != nil || page < 0 {
		return repository.AuditFilter{}, errors.New("invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil || pageSize < 0 {
		return repository.AuditFilter{}, errors.New("invalid page_size")
	}

	filter := repository.AuditFilter{
		ActionID: strings.TrimSpace(c.Query("action_id")),
		Page:     page,
		PageSize: pageSize,
	}

	if raw := strings.TrimSpace(c.Query("event_type")); raw != "" {
		eventType := models.AuditEventType(strings.ToLower(raw))
		known := false
		for _, candidate := range models.AuditEventTypes {
			if candidate == eventType {
				known = true
				break
			}
		}
		if !known {
			return repository.AuditFilter{}, errors.New("invalid event_type")
		}
		filter.EventType = eventType
	}

	for key, target := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return repository.AuditFilter{}, fmt.Errorf("invalid %s timestamp", key)
		}
		*target = &parsed
	}

	return filter, nil
}

func isRecentQuery(filter repository.AuditFilter) bool {
	return filter.ActionID == "" && filter.EventType == "" && filter.Since == nil && filter.Until == nil && filter.Page == 0 && filter.PageSize == 0
}
