package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/handler"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/service"
)

func newApprovalApp(approvals *approvalStub, executor *executorStub, dashboard *dashboardStub, userID interface{}) *fiber.App {
	app := fiber.New()
	if userID != nil {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("user_id", userID)
			return c.Next()
		})
	}
	// A typed nil stub would be a non-nil interface.
	var dash service.DashboardService
	if dashboard != nil {
		dash = dashboard
	}
	handler.NewApprovalHandler(approvals, executor, dash, nil, zerolog.Nop()).Register(app.Group("/api/approvals"))
	return app
}

func TestApprovalHandlerListDefaultsToPending(t *testing.T) {
	approvals := newApprovalStub(map[string]models.PendingAction{
		"t1": postAction(t, "a-1", models.StatusPending),
		"t2": postAction(t, "a-2", models.StatusExecuted),
	})
	app := newApprovalApp(approvals, &executorStub{}, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/approvals", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []dto.ActionResponse
	require.NoError(t, json.Unmarshal(decodeResponse(t, resp).Data, &items))
	require.Len(t, items, 1)
	require.Equal(t, "a-1", items[0].ID)
	require.Equal(t, "New post", items[0].TypeName)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/approvals?status=executed&limit=5", nil))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(decodeResponse(t, resp).Data, &items))
	require.Len(t, items, 1)
	require.Equal(t, "a-2", items[0].ID)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/approvals?status=bogus", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApprovalHandlerGet(t *testing.T) {
	approvals := newApprovalStub(map[string]models.PendingAction{"t1": postAction(t, "a-1", models.StatusPending)})
	app := newApprovalApp(approvals, &executorStub{}, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/approvals/a-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/approvals/missing", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApprovalHandlerApproveExecutesAndRecordsUser(t *testing.T) {
	approvals := newApprovalStub(map[string]models.PendingAction{"t1": postAction(t, "a-1", models.StatusPending)})
	executor := &executorStub{approvals: approvals, outcome: dto.ExecutionResponse{Success: true, Result: map[string]interface{}{"post_id": "p-1"}}}
	dashboard := &dashboardStub{}
	app := newApprovalApp(approvals, executor, dashboard, "owner@example.com")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/approvals/a-1/approve", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision dto.DecisionResponse
	require.NoError(t, json.Unmarshal(decodeResponse(t, resp).Data, &decision))
	require.NotNil(t, decision.Execution)
	require.True(t, decision.Execution.Success)
	require.Equal(t, models.StatusExecuted, decision.Action.Status)

	require.Equal(t, "user:owner@example.com", approvals.approver)
	require.Equal(t, 1, dashboard.invalidated)
}

func TestApprovalHandlerApproveDefersOnExecutionError(t *testing.T) {
	approvals := newApprovalStub(map[string]models.PendingAction{"t1": postAction(t, "a-1", models.StatusPending)})
	executor := &executorStub{err: errors.New("storage offline")}
	app := newApprovalApp(approvals, executor, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/approvals/a-1/approve", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeResponse(t, resp)
	require.Equal(t, "action approved, execution deferred", body.Message)
	require.Equal(t, "dashboard", approvals.approver)
}

func TestApprovalHandlerApproveConflicts(t *testing.T) {
	approvals := newApprovalStub(map[string]models.PendingAction{"t1": postAction(t, "a-1", models.StatusRejected)})
	app := newApprovalApp(approvals, &executorStub{}, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/approvals/a-1/approve", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/approvals/missing/approve", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApprovalHandlerRejectWithReason(t *testing.T) {
	approvals := newApprovalStub(map[string]models.PendingAction{"t1": postAction(t, "a-1", models.StatusPending)})
	executor := &executorStub{}
	app := newApprovalApp(approvals, executor, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/approvals/a-1/reject", strings.NewReader(`{"reason":"  off brand  "}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "off brand", approvals.reason)
	require.Empty(t, executor.executed)

	long := `{"reason":"` + strings.Repeat("x", 501) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/api/approvals/a-1/reject", strings.NewReader(long))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApprovalHandlerExecute(t *testing.T) {
	approvals := newApprovalStub(map[string]models.PendingAction{
		"t1": postAction(t, "a-1", models.StatusApproved),
		"t2": postAction(t, "a-2", models.StatusPending),
	})
	executor := &executorStub{approvals: approvals, outcome: dto.ExecutionResponse{Success: true}}
	app := newApprovalApp(approvals, executor, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/approvals/a-1/execute", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/approvals/a-2/execute", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/approvals/nope/execute", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
