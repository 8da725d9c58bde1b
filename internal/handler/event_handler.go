package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/middleware"
	"github.com/noah-isme/marketing-agent/internal/service"
)

// EventHandler streams action lifecycle events to dashboard clients over a websocket.
type EventHandler struct {
	service      service.EventService
	logger       zerolog.Logger
	pingInterval time.Duration
}

// NewEventHandler constructs an event handler. pingInterval defaults to 30s.
func NewEventHandler(svc service.EventService, pingInterval time.Duration, logger zerolog.Logger) *EventHandler {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &EventHandler{
		service:      svc,
		logger:       logger.With().Str("component", "event_handler").Logger(),
		pingInterval: pingInterval,
	}
}

// Register binds the websocket upgrade route.
func (h *EventHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("correlation_id", middleware.GetCorrelationID(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *EventHandler) handleConnection(conn *websocket.Conn) {
	logger := h.logger
	if correlation, ok := conn.Locals("correlation_id").(string); ok && correlation != "" {
		logger = logger.With().Str("correlation_id", correlation).Logger()
	}

	events, cleanup := h.service.Subscribe()
	defer cleanup()

	// The reader only exists to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	logger.Info().Msg("event websocket connected")
	defer logger.Info().Msg("event websocket disconnected")

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("failed to write lifecycle event")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
