package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
}

func decodeResponse(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

func postAction(t *testing.T, id string, status models.ActionStatus) models.PendingAction {
	t.Helper()
	payload, err := models.EncodePayload(models.CreatePostPayload{Content: "Hello followers"})
	require.NoError(t, err)
	now := time.Now().UTC()
	return models.PendingAction{
		ID:         id,
		Type:       models.ActionCreatePost,
		Payload:    payload,
		Reasoning:  "Keep the page active",
		Confidence: models.ConfidenceHigh,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(24 * time.Hour),
	}
}

// approvalStub serves a fixed set of actions keyed by id and by token. Methods a test
// does not expect panic through the nil embedded interface.
type approvalStub struct {
	service.ApprovalService

	mu       sync.Mutex
	byID     map[string]models.PendingAction
	byToken  map[string]string
	err      error
	approver string
	reason   string
	edited   string
}

func newApprovalStub(actions map[string]models.PendingAction) *approvalStub {
	stub := &approvalStub{byID: map[string]models.PendingAction{}, byToken: map[string]string{}}
	for token, action := range actions {
		stub.byID[action.ID] = action
		stub.byToken[token] = action.ID
	}
	return stub
}

func (s *approvalStub) decide(id string, status models.ActionStatus, by string) (models.PendingAction, error) {
	if s.err != nil {
		return models.PendingAction{}, s.err
	}
	action, ok := s.byID[id]
	if !ok {
		return models.PendingAction{}, service.ErrNotFound
	}
	if action.Status != models.StatusPending {
		return models.PendingAction{}, service.ErrAlreadyDecided
	}
	action.Status = status
	action.ApprovedBy = by
	s.byID[id] = action
	s.approver = by
	return action, nil
}

func (s *approvalStub) Approve(ctx context.Context, token, approvedBy string) (models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decide(s.byToken[token], models.StatusApproved, approvedBy)
}

func (s *approvalStub) ApproveByID(ctx context.Context, id, approvedBy string) (models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decide(id, models.StatusApproved, approvedBy)
}

func (s *approvalStub) Reject(ctx context.Context, token, rejectedBy, reason string) (models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = reason
	return s.decide(s.byToken[token], models.StatusRejected, rejectedBy)
}

func (s *approvalStub) RejectByID(ctx context.Context, id, rejectedBy, reason string) (models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = reason
	return s.decide(id, models.StatusRejected, rejectedBy)
}

func (s *approvalStub) EditAndApprove(ctx context.Context, token, content, approvedBy string) (models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, err := s.decide(s.byToken[token], models.StatusApproved, approvedBy)
	if err != nil {
		return action, err
	}
	s.edited = content
	return action, nil
}

func (s *approvalStub) GetByID(ctx context.Context, id string) (*models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &action, nil
}

func (s *approvalStub) GetByToken(ctx context.Context, token string) (*models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.byID[s.byToken[token]]
	if !ok {
		return nil, nil
	}
	return &action, nil
}

func (s *approvalStub) ListPending(ctx context.Context) ([]models.PendingAction, error) {
	return s.filter(models.StatusPending), nil
}

func (s *approvalStub) ListByStatus(ctx context.Context, status models.ActionStatus, limit int) ([]models.PendingAction, error) {
	return s.filter(status), nil
}

func (s *approvalStub) filter(status models.ActionStatus) []models.PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PendingAction
	for _, action := range s.byID {
		if action.Status == status {
			out = append(out, action)
		}
	}
	return out
}

func (s *approvalStub) Stats(ctx context.Context) (map[models.ActionStatus]int64, error) {
	counts := map[models.ActionStatus]int64{}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, action := range s.byID {
		counts[action.Status]++
	}
	return counts, nil
}

func (s *approvalStub) Links(action models.PendingAction) dto.ActionLinks {
	return dto.ActionLinks{
		Approve: "https://agent.example.com/webhook/approve/tok",
		Reject:  "https://agent.example.com/webhook/reject/tok",
		Edit:    "https://agent.example.com/webhook/edit/tok",
		View:    "https://agent.example.com/webhook/view/tok",
	}
}

// executorStub marks executed actions on the approval stub so handlers can refresh them.
type executorStub struct {
	approvals *approvalStub
	outcome   dto.ExecutionResponse
	err       error
	executed  []string
}

func (e *executorStub) Execute(ctx context.Context, action models.PendingAction) (dto.ExecutionResponse, error) {
	if e.err != nil {
		return dto.ExecutionResponse{}, e.err
	}
	e.executed = append(e.executed, action.ID)
	outcome := e.outcome
	outcome.ActionID = action.ID
	outcome.Type = action.Type
	if e.approvals != nil && outcome.Success {
		e.approvals.mu.Lock()
		stored := e.approvals.byID[action.ID]
		stored.Status = models.StatusExecuted
		e.approvals.byID[action.ID] = stored
		e.approvals.mu.Unlock()
	}
	return outcome, nil
}

func (e *executorStub) ExecuteByID(ctx context.Context, id string) (dto.ExecutionResponse, error) {
	if e.approvals != nil {
		action, _ := e.approvals.GetByID(ctx, id)
		if action == nil {
			return dto.ExecutionResponse{}, service.ErrNotFound
		}
		if action.Status != models.StatusApproved {
			return dto.ExecutionResponse{ActionID: id, Skipped: true}, nil
		}
		return e.Execute(ctx, *action)
	}
	return e.outcome, e.err
}

func (e *executorStub) ProcessApprovedActions(ctx context.Context) (dto.BatchResponse, error) {
	return dto.BatchResponse{}, nil
}

type dashboardStub struct {
	overview    dto.DashboardResponse
	stats       dto.DashboardStats
	points      []dto.ChartPoint
	report      dto.Report
	err         error
	chartKind   string
	chartDays   int
	invalidated int
}

func (d *dashboardStub) Overview(ctx context.Context) (dto.DashboardResponse, error) {
	return d.overview, d.err
}

func (d *dashboardStub) Stats(ctx context.Context) (dto.DashboardStats, error) {
	return d.stats, d.err
}

func (d *dashboardStub) Chart(ctx context.Context, kind string, days int) ([]dto.ChartPoint, error) {
	d.chartKind = kind
	d.chartDays = days
	return d.points, d.err
}

func (d *dashboardStub) Report(ctx context.Context, period models.GoalPeriod) (dto.Report, error) {
	return d.report, d.err
}

func (d *dashboardStub) Invalidate(ctx context.Context) {
	d.invalidated++
}
