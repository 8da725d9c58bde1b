package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/handler"
	"github.com/noah-isme/marketing-agent/internal/service"
)

func newDashboardApp(stub *dashboardStub) *fiber.App {
	app := fiber.New()
	handler.NewDashboardHandler(stub, zerolog.Nop()).Register(app.Group("/api/dashboard"))
	return app
}

func TestDashboardHandlerOverview(t *testing.T) {
	stub := &dashboardStub{overview: dto.DashboardResponse{
		Agent:  dto.AgentSummary{Name: "Bakery agent", Configured: true},
		Budget: dto.BudgetStatus{Monthly: dto.BudgetWindow{Limit: 100000, Spent: 25000, Remaining: 75000, PercentUsed: 25}},
	}}
	app := newDashboardApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var overview dto.DashboardResponse
	require.NoError(t, json.Unmarshal(decodeResponse(t, resp).Data, &overview))
	require.Equal(t, "Bakery agent", overview.Agent.Name)
	require.Equal(t, 25, overview.Budget.Monthly.PercentUsed)
}

func TestDashboardHandlerChart(t *testing.T) {
	stub := &dashboardStub{points: []dto.ChartPoint{{Date: "2026-10-01", Value: 1200}}}
	app := newDashboardApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/dashboard/chart/spending?days=14", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "spending", stub.chartKind)
	require.Equal(t, 14, stub.chartDays)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/dashboard/chart/spending?days=-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	stub.err = service.ErrUnknownChart
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/dashboard/chart/weather", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDashboardHandlerReportPeriods(t *testing.T) {
	stub := &dashboardStub{report: dto.Report{Title: "Daily report", Spent: 900}}
	app := newDashboardApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/dashboard/report/daily", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report dto.Report
	require.NoError(t, json.Unmarshal(decodeResponse(t, resp).Data, &report))
	require.Equal(t, int64(900), report.Spent)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/dashboard/report/monthly", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDashboardHandlerHidesInternalErrors(t *testing.T) {
	stub := &dashboardStub{err: errors.New("connection refused")}
	app := newDashboardApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "failed to load stats", decodeResponse(t, resp).Message)
}
