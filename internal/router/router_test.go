package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marketing-agent/internal/config"
	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/handler"
	"github.com/noah-isme/marketing-agent/internal/middleware"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/service"
)

type settingsStub struct {
	service.SettingsService
}

func (settingsStub) GetConfig(ctx context.Context) (models.AgentConfig, error) {
	return models.AgentConfig{ID: models.DefaultAgentConfigID, Name: "Agent"}, nil
}

func (settingsStub) UpdateConfig(ctx context.Context, req dto.SettingsUpdateRequest) (models.AgentConfig, error) {
	return models.AgentConfig{ID: models.DefaultAgentConfigID, Name: "Agent"}, nil
}

const secret = "router-secret"

func newApp(t *testing.T, withJWT bool) *fiber.App {
	t.Helper()
	cfg := config.Config{AppName: "marketing-agent", JWTSecret: secret, WebhookRateLimit: 2}

	deps := Dependencies{
		SettingsHandler: handler.NewSettingsHandler(settingsStub{}, nil, zerolog.Nop()),
	}
	if withJWT {
		deps.JWTMiddleware = middleware.JWTProtected(secret)
	}

	app := fiber.New()
	Register(app, cfg, deps)
	return app
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "someone", "role": role}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthIsPublicAndTagged(t *testing.T) {
	app := newApp(t, true)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "marketing-agent", resp.Header.Get("X-Application"))
}

func TestMetricsEndpoint(t *testing.T) {
	app := newApp(t, false)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSettingsRequireTokenAndOwnerForWrites(t *testing.T) {
	app := newApp(t, true)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.Header.Set("Authorization", bearer(t, middleware.RoleViewer))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPut, "/api/settings", nil)
	req.Header.Set("Authorization", bearer(t, middleware.RoleViewer))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSettingsOpenWithoutJWT(t *testing.T) {
	app := newApp(t, false)

	req := httptest.NewRequest(http.MethodPut, "/api/settings", nil)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.NotEqual(t, http.StatusForbidden, resp.StatusCode)
	require.NotEqual(t, http.StatusUnauthorized, resp.StatusCode)
}
