package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/middleware"
	"github.com/noah-isme/marketing-agent/internal/service"
	"github.com/noah-isme/marketing-agent/internal/utils"
)

// dashboardActor is recorded as approver when the dashboard is used without a JWT subject.
const dashboardActor = "dashboard"

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	raw := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(parsed), nil
}

// actorFromContext names the dashboard user for the audit log.
func actorFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_id"); v != nil {
		switch id := v.(type) {
		case uint:
			return "user:" + strconv.FormatUint(uint64(id), 10)
		case string:
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				return "user:" + trimmed
			}
		}
	}
	return dashboardActor
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// statusForError maps service errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrGoalNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrAlreadyDecided):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrExpired):
		return fiber.StatusGone
	case errors.Is(err, service.ErrConfigMissing):
		return fiber.StatusPreconditionFailed
	case errors.Is(err, service.ErrBackendNotConfigured):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, service.ErrEditNotAllowed),
		errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, service.ErrUnknownChart),
		isValidationError(err):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// sendServiceError logs server-side failures and hides their details from the client.
func sendServiceError(c *fiber.Ctx, logger zerolog.Logger, err error, message string) error {
	status := statusForError(err)
	if status == fiber.StatusInternalServerError {
		requestLogger(logger, c).Error().Err(err).Msg(message)
		return utils.SendError(c, status, message)
	}
	return utils.SendError(c, status, err.Error())
}
