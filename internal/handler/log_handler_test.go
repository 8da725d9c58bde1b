package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/handler"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/repository"
	"github.com/noah-isme/marketing-agent/internal/service"
	"github.com/noah-isme/marketing-agent/internal/utils"
)

type auditStub struct {
	service.AuditService

	entries     []models.AuditLogEntry
	recentLimit int
	filter      *repository.AuditFilter
}

func (a *auditStub) Recent(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	a.recentLimit = limit
	return a.entries, nil
}

func (a *auditStub) List(ctx context.Context, filter repository.AuditFilter) ([]models.AuditLogEntry, int64, error) {
	a.filter = &filter
	return a.entries, int64(len(a.entries)), nil
}

func (a *auditStub) ByAction(ctx context.Context, actionID string) ([]models.AuditLogEntry, error) {
	var out []models.AuditLogEntry
	for _, entry := range a.entries {
		if entry.ActionID != nil && *entry.ActionID == actionID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (a *auditStub) Stats(ctx context.Context) (dto.AuditStats, error) {
	return dto.AuditStats{Total: int64(len(a.entries))}, nil
}

func newLogApp(stub *auditStub) *fiber.App {
	app := fiber.New()
	handler.NewLogHandler(stub, zerolog.Nop()).Register(app.Group("/api/logs"))
	return app
}

func TestLogHandlerRecent(t *testing.T) {
	actionID := "a-1"
	stub := &auditStub{entries: []models.AuditLogEntry{
		{ID: 1, Timestamp: time.Now().UTC(), ActionID: &actionID, EventType: models.AuditApproved, UserID: "email"},
	}}
	app := newLogApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/logs?limit=1000", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 500, stub.recentLimit)
	require.Nil(t, stub.filter)

	var entries []models.AuditLogEntry
	require.NoError(t, json.Unmarshal(decodeResponse(t, resp).Data, &entries))
	require.Len(t, entries, 1)
	require.Equal(t, models.AuditApproved, entries[0].EventType)
}

func TestLogHandlerFilteredPage(t *testing.T) {
	stub := &auditStub{}
	app := newLogApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/logs?event_type=FAILED&since=2026-10-01T00:00:00Z&page_size=900", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, stub.filter)
	require.Equal(t, models.AuditFailed, stub.filter.EventType)
	require.Equal(t, 1, stub.filter.Page)
	require.Equal(t, 500, stub.filter.PageSize)
	require.NotNil(t, stub.filter.Since)
	require.Equal(t, 2026, stub.filter.Since.Year())

	var meta utils.PageMeta
	require.NoError(t, json.Unmarshal(decodeResponse(t, resp).Meta, &meta))
	require.Equal(t, 1, meta.Page)
	require.Equal(t, 500, meta.PageSize)
}

func TestLogHandlerRejectsBadFilters(t *testing.T) {
	app := newLogApp(&auditStub{})

	for _, path := range []string{
		"/api/logs?limit=-1",
		"/api/logs?event_type=deleted",
		"/api/logs?since=yesterday",
		"/api/logs?page=x",
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestLogHandlerActionHistory(t *testing.T) {
	first, second := "a-1", "a-2"
	stub := &auditStub{entries: []models.AuditLogEntry{
		{ID: 1, ActionID: &first, EventType: models.AuditCreated},
		{ID: 2, ActionID: &second, EventType: models.AuditCreated},
		{ID: 3, ActionID: &first, EventType: models.AuditExecuted},
	}}
	app := newLogApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/logs/actions/a-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []models.AuditLogEntry
	require.NoError(t, json.Unmarshal(decodeResponse(t, resp).Data, &entries))
	require.Len(t, entries, 2)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/logs/stats", nil))
	require.NoError(t, err)
	var stats dto.AuditStats
	require.NoError(t, json.Unmarshal(decodeResponse(t, resp).Data, &stats))
	require.Equal(t, int64(3), stats.Total)
}
