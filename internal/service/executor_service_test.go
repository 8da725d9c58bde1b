package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/repository"
	"github.com/noah-isme/marketing-agent/pkg/adplatform"
)

type executorFixture struct {
	*approvalFixture
	backend  *backendStub
	budget   BudgetService
	deps     ExecutorDependencies
	executor ExecutorService
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	f := newApprovalFixture(t)

	budget := NewBudgetService(f.store.budgets, testLogger())
	budget.(*budgetService).now = f.clock.Now

	backend := &backendStub{}
	fixture := &executorFixture{approvalFixture: f, backend: backend, budget: budget}
	fixture.deps = ExecutorDependencies{
		Actions:   f.store.actions,
		Configs:   f.store.configs,
		Tx:        f.store.tx,
		Approvals: f.service,
		Budget:    budget,
		Backend:   backend,
		Notifier:  f.notifier,
		Events:    f.events,
		ClaimTTL:  10 * time.Minute,
	}
	fixture.executor = fixture.rebuild(nil)
	return fixture
}

// rebuild replaces the executor after mutate adjusts its dependencies.
func (f *executorFixture) rebuild(mutate func(deps *ExecutorDependencies)) ExecutorService {
	deps := f.deps
	if mutate != nil {
		mutate(&deps)
	}
	executor := NewExecutorService(deps, testLogger())
	executor.(*executorService).now = f.clock.Now
	f.executor = executor
	return executor
}

// unreliableApprovals loses the first failures calls to MarkExecuted.
type unreliableApprovals struct {
	ApprovalService
	failures int
}

func (a *unreliableApprovals) MarkExecuted(ctx context.Context, id, claimToken string, result map[string]interface{}) error {
	if a.failures > 0 {
		a.failures--
		return repository.ErrStorageUnavailable
	}
	return a.ApprovalService.MarkExecuted(ctx, id, claimToken, result)
}

func (f *executorFixture) approved(t *testing.T, payload models.Payload) models.PendingAction {
	t.Helper()
	action, err := f.service.Queue(context.Background(), QueueRequest{Payload: payload})
	require.NoError(t, err)
	approved, err := f.service.ApproveByID(context.Background(), action.ID, "owner")
	require.NoError(t, err)
	return approved
}

func TestExecutorExecutesApprovedPost(t *testing.T) {
	f := newExecutorFixture(t)
	action := f.approved(t, models.CreatePostPayload{Content: "hello", ScheduledTime: "2025-03-11T10:00:00Z"})

	response, err := f.executor.Execute(context.Background(), action)
	require.NoError(t, err)
	require.True(t, response.Success)
	require.Equal(t, "post-1", response.Result["post_id"])

	require.Len(t, f.backend.posts, 1)
	require.NotNil(t, f.backend.posts[0].ScheduledTime)

	stored, err := f.service.GetByID(context.Background(), action.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusExecuted, stored.Status)
	require.Len(t, f.notifier.confirmations, 1)
}

func TestExecutorSkipsNonApproved(t *testing.T) {
	f := newExecutorFixture(t)
	action, err := f.service.Queue(context.Background(), QueueRequest{Payload: models.CreatePostPayload{Content: "hello"}})
	require.NoError(t, err)

	response, err := f.executor.Execute(context.Background(), action)
	require.NoError(t, err)
	require.True(t, response.Skipped)
	require.Empty(t, f.backend.posts)
}

func TestExecutorRunsActionOnce(t *testing.T) {
	f := newExecutorFixture(t)
	action := f.approved(t, models.PauseCampaignPayload{CampaignID: "cmp-1"})

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.executor.Execute(context.Background(), action)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, f.backend.updates, 1)
	require.Equal(t, adplatform.StatusPaused, f.backend.updates["cmp-1"].Status)

	stored, err := f.service.GetByID(context.Background(), action.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusExecuted, stored.Status)
}

func TestExecutorRecordsBackendFailure(t *testing.T) {
	f := newExecutorFixture(t)
	f.backend.err = errors.New("graph api: token expired")
	action := f.approved(t, models.ResumeCampaignPayload{CampaignID: "cmp-2"})

	response, err := f.executor.Execute(context.Background(), action)
	require.NoError(t, err)
	require.False(t, response.Success)
	require.Contains(t, response.Error, "token expired")

	stored, err := f.service.GetByID(context.Background(), action.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, stored.Status)
	require.Contains(t, string(stored.ExecutionResult), "token expired")
}

func TestExecutorUnimplementedTypesFail(t *testing.T) {
	f := newExecutorFixture(t)
	action := f.approved(t, models.CreateAdPayload{AdSetID: "as-1", Name: "ad"})

	response, err := f.executor.Execute(context.Background(), action)
	require.NoError(t, err)
	require.Contains(t, response.Error, ErrNotImplemented.Error())

	stored, err := f.service.GetByID(context.Background(), action.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, stored.Status)
}

func TestExecutorBoostRecordsSpend(t *testing.T) {
	f := newExecutorFixture(t)
	action := f.approved(t, models.BoostPostPayload{PostID: "p-9", Budget: 25, Duration: 3})

	response, err := f.executor.Execute(context.Background(), action)
	require.NoError(t, err)
	require.True(t, response.Success)

	require.Len(t, f.backend.boosts, 1)
	require.Equal(t, int64(2500), f.backend.boosts[0].Budget)

	spent, err := f.budget.DailyTotal(context.Background(), f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, int64(2500), spent)
}

func TestExecutorBoostOverDailyLimitFails(t *testing.T) {
	f := newExecutorFixture(t)
	_, err := f.budget.RecordSpending(context.Background(), SpendRecord{Amount: 9000, Description: "earlier"})
	require.NoError(t, err)

	action := f.approved(t, models.BoostPostPayload{PostID: "p-9", Budget: 20, Duration: 1})

	response, err := f.executor.Execute(context.Background(), action)
	require.NoError(t, err)
	require.False(t, response.Success)
	require.Contains(t, response.Error, ErrBudgetExceeded.Error())
	require.Empty(t, f.backend.boosts)

	spent, err := f.budget.DailyTotal(context.Background(), f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, int64(9000), spent)
}

func TestExecutorProcessApprovedActions(t *testing.T) {
	f := newExecutorFixture(t)

	first := f.approved(t, models.CreateCampaignPayload{Name: "Spring", Objective: "OUTCOME_TRAFFIC", DailyBudget: 10})
	f.clock.Advance(time.Minute)
	second := f.approved(t, models.AdjustBudgetPayload{CampaignID: "cmp-7", NewBudget: 15})
	f.clock.Advance(time.Minute)
	third := f.approved(t, models.ModifyTargetingPayload{CampaignID: "cmp-7"})
	f.clock.Advance(time.Minute)

	stale := f.approved(t, models.PauseCampaignPayload{CampaignID: "cmp-stale"})
	claimed, err := f.store.actions.Claim(context.Background(), stale.ID, "crashed-worker", f.clock.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	batch, err := f.executor.ProcessApprovedActions(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, batch.Processed)
	require.Equal(t, 2, batch.Successful)
	require.Equal(t, 1, batch.Failed)
	require.Equal(t, 1, batch.Skipped)

	require.Equal(t, first.ID, batch.Results[0].ActionID)
	require.Equal(t, second.ID, batch.Results[1].ActionID)
	require.Equal(t, third.ID, batch.Results[2].ActionID)

	require.Len(t, f.backend.campaigns, 1)
	require.Equal(t, adplatform.StatusPaused, f.backend.campaigns[0].Status)
	require.Equal(t, []string{"NONE"}, f.backend.campaigns[0].SpecialAdCategories)
	require.Equal(t, int64(1500), *f.backend.updates["cmp-7"].DailyBudget)

	stored, err := f.service.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, stored.Status)

	again, err := f.executor.ProcessApprovedActions(context.Background())
	require.NoError(t, err)
	require.Zero(t, again.Processed)
}

func TestExecutorFailsStaleClaimAfterLostOutcome(t *testing.T) {
	f := newExecutorFixture(t)
	f.rebuild(func(deps *ExecutorDependencies) {
		deps.Approvals = &unreliableApprovals{ApprovalService: f.service, failures: 1}
	})
	action := f.approved(t, models.PauseCampaignPayload{CampaignID: "cmp-3"})

	_, err := f.executor.Execute(context.Background(), action)
	require.ErrorIs(t, err, repository.ErrStorageUnavailable)
	require.Len(t, f.backend.updates, 1)

	// Within the claim TTL the execution may still be running.
	batch, err := f.executor.ProcessApprovedActions(context.Background())
	require.NoError(t, err)
	require.Zero(t, batch.Processed)
	require.Equal(t, 1, batch.Skipped)

	f.clock.Advance(11 * time.Minute)
	batch, err = f.executor.ProcessApprovedActions(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, batch.Processed)
	require.Equal(t, 1, batch.Failed)
	require.Equal(t, outcomeUnknown, batch.Results[0].Error)

	stored, err := f.service.GetByID(context.Background(), action.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, stored.Status)
	require.Contains(t, string(stored.ExecutionResult), outcomeUnknown)
	require.Len(t, f.backend.updates, 1)

	failures := 0
	for _, entry := range f.store.auditEntries(t, action.ID) {
		if entry.EventType == models.AuditFailed {
			failures++
		}
	}
	require.Equal(t, 1, failures)

	batch, err = f.executor.ProcessApprovedActions(context.Background())
	require.NoError(t, err)
	require.Zero(t, batch.Processed)
	require.Zero(t, batch.Skipped)
}

func TestExecutorWithoutConfigLeavesActionApproved(t *testing.T) {
	f := newExecutorFixture(t)
	action := f.approved(t, models.BoostPostPayload{PostID: "p-1", Budget: 10, Duration: 1})
	require.NoError(t, f.store.db.Where("id = ?", models.DefaultAgentConfigID).Delete(&models.AgentConfig{}).Error)

	_, err := f.executor.Execute(context.Background(), action)
	require.ErrorIs(t, err, ErrConfigMissing)
	require.Empty(t, f.backend.boosts)

	stored, err := f.service.GetByID(context.Background(), action.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, stored.Status)
	require.Nil(t, stored.ClaimedAt)

	f.store.seedConfig(t, nil)
	response, err := f.executor.Execute(context.Background(), *stored)
	require.NoError(t, err)
	require.True(t, response.Success)
}

func TestExecutorWithoutBackendLeavesActionApproved(t *testing.T) {
	f := newExecutorFixture(t)
	f.rebuild(func(deps *ExecutorDependencies) { deps.Backend = nil })
	action := f.approved(t, models.PauseCampaignPayload{CampaignID: "cmp-4"})

	_, err := f.executor.Execute(context.Background(), action)
	require.ErrorIs(t, err, ErrBackendNotConfigured)

	_, err = f.executor.ProcessApprovedActions(context.Background())
	require.ErrorIs(t, err, ErrBackendNotConfigured)

	stored, err := f.service.GetByID(context.Background(), action.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, stored.Status)
	require.Nil(t, stored.ClaimedAt)
}
