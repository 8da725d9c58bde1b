package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/marketing-agent/internal/dto"
	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/repository"
	"github.com/noah-isme/marketing-agent/pkg/adplatform"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type testStore struct {
	db      *gorm.DB
	actions repository.ActionRepository
	audits  repository.AuditRepository
	budgets repository.BudgetRepository
	configs repository.ConfigRepository
	goals   repository.GoalRepository
	tx      repository.TransactionManager
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.PendingAction{},
		&models.AuditLogEntry{},
		&models.BudgetEntry{},
		&models.AgentConfig{},
		&models.Goal{},
	))

	return &testStore{
		db:      db,
		actions: repository.NewActionRepository(db),
		audits:  repository.NewAuditRepository(db),
		budgets: repository.NewBudgetRepository(db),
		configs: repository.NewConfigRepository(db),
		goals:   repository.NewGoalRepository(db),
		tx:      repository.NewTransactionManager(db),
	}
}

func (s *testStore) seedConfig(t *testing.T, mutate func(cfg *models.AgentConfig)) models.AgentConfig {
	t.Helper()
	cfg := models.AgentConfig{
		ID:     models.DefaultAgentConfigID,
		Name:   "Test Agent",
		PageID: "page-1",
		Budget: datatypes.NewJSONType(models.BudgetSettings{
			Total:          100000,
			Period:         "monthly",
			DailyLimit:     10000,
			AlertThreshold: 80,
		}),
		Approval: datatypes.NewJSONType(models.ApprovalSettings{
			RequiredFor:  models.DefaultRequiredApprovals,
			TimeoutHours: 24,
			Email:        "owner@example.com",
		}),
		Notifications: datatypes.NewJSONType(models.NotificationSettings{InstantAlerts: true}),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, s.configs.Save(context.Background(), &cfg))
	return cfg
}

func (s *testStore) auditEntries(t *testing.T, actionID string) []models.AuditLogEntry {
	t.Helper()
	entries, _, err := s.audits.List(context.Background(), repository.AuditFilter{ActionID: actionID, PageSize: 100})
	require.NoError(t, err)
	return entries
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type notifierStub struct {
	mu            sync.Mutex
	approvals     []string
	confirmations []dto.ExecutionResponse
	alerts        []dto.BudgetStatus
	reports       []dto.Report
	err           error
}

func (n *notifierStub) ApprovalRequest(ctx context.Context, to string, action models.PendingAction, links dto.ActionLinks) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approvals = append(n.approvals, action.ID)
	return n.err
}

func (n *notifierStub) Confirmation(ctx context.Context, to string, action models.PendingAction, outcome dto.ExecutionResponse) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, outcome)
	return n.err
}

func (n *notifierStub) BudgetAlert(ctx context.Context, to string, status dto.BudgetStatus, threshold int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, status)
	return n.err
}

func (n *notifierStub) DailyReport(ctx context.Context, to string, report dto.Report) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, report)
	return n.err
}

func (n *notifierStub) WeeklyReport(ctx context.Context, to string, report dto.Report) error {
	return n.DailyReport(ctx, to, report)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.PendingAction
}

func (r *eventRecorder) Publish(ctx context.Context, action models.PendingAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, action)
}

func (r *eventRecorder) statuses() []models.ActionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses := make([]models.ActionStatus, 0, len(r.events))
	for _, event := range r.events {
		statuses = append(statuses, event.Status)
	}
	return statuses
}

type backendStub struct {
	mu        sync.Mutex
	posts     []adplatform.PostRequest
	campaigns []adplatform.CampaignRequest
	updates   map[string]adplatform.CampaignUpdate
	boosts    []adplatform.BoostRequest
	err       error
}

func (b *backendStub) CreatePost(ctx context.Context, req adplatform.PostRequest) (adplatform.PostResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return adplatform.PostResult{}, b.err
	}
	b.posts = append(b.posts, req)
	return adplatform.PostResult{PostID: fmt.Sprintf("post-%d", len(b.posts))}, nil
}

func (b *backendStub) CreateCampaign(ctx context.Context, req adplatform.CampaignRequest) (adplatform.CampaignResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return adplatform.CampaignResult{}, b.err
	}
	b.campaigns = append(b.campaigns, req)
	return adplatform.CampaignResult{CampaignID: "cmp-new", Status: req.Status}, nil
}

func (b *backendStub) UpdateCampaign(ctx context.Context, campaignID string, update adplatform.CampaignUpdate) (adplatform.UpdateResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return adplatform.UpdateResult{}, b.err
	}
	if b.updates == nil {
		b.updates = map[string]adplatform.CampaignUpdate{}
	}
	b.updates[campaignID] = update
	return adplatform.UpdateResult{CampaignID: campaignID, Success: true}, nil
}

func (b *backendStub) BoostPost(ctx context.Context, req adplatform.BoostRequest) (adplatform.BoostResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return adplatform.BoostResult{}, b.err
	}
	b.boosts = append(b.boosts, req)
	return adplatform.BoostResult{CampaignID: "cmp-boost", AdSetID: "adset-1", AdID: "ad-1"}, nil
}
