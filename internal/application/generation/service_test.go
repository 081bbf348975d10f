package generation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"namesmith-ai-api/internal/application/pricing"
	"namesmith-ai-api/internal/application/quota"
	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/repository"
	"namesmith-ai-api/internal/domain/service"
	"namesmith-ai-api/internal/infrastructure/messaging"
	"namesmith-ai-api/internal/infrastructure/persistence/postgres"
	apperrors "namesmith-ai-api/pkg/errors"
)

type fakeGate struct {
	mu       sync.Mutex
	err      error
	admitted []int64
}

func (g *fakeGate) Admit(_ context.Context, _ string, estimatedCents int64) (*quota.Admission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.admitted = append(g.admitted, estimatedCents)
	return &quota.Admission{EstimatedCents: estimatedCents}, nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	msgs []*messaging.DispatchMessage
}

func (d *fakeDispatcher) PublishDispatch(_ context.Context, m *messaging.DispatchMessage) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, m)
	return "1-0", nil
}

type fakeCanceller struct {
	mu  sync.Mutex
	ids []string
}

func (c *fakeCanceller) Publish(_ context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
	return 1, nil
}

type serviceFixture struct {
	svc        *Service
	sessions   *postgres.SessionRepository
	usage      *postgres.UsageRepository
	gate       *fakeGate
	dispatcher *fakeDispatcher
	canceller  *fakeCanceller
}

func newServiceFixture(t *testing.T, cfg *config.Config, adapters map[string]service.NameGenerator) *serviceFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	client := postgres.NewClientFromDB(db)
	require.NoError(t, client.AutoMigrate(context.Background()))

	sessions := postgres.NewSessionRepository(client)
	usage := postgres.NewUsageRepository(client)
	catalog := testCatalog()
	estimator := pricing.NewEstimator(catalog)
	manager := config.NewStaticManager(cfg)

	coordinator := NewCoordinator(catalog, &fakeResolver{adapters: adapters}, quota.NewUsageRecorder(usage, nil), estimator, manager)
	f := &serviceFixture{
		sessions:   sessions,
		usage:      usage,
		gate:       &fakeGate{},
		dispatcher: &fakeDispatcher{},
		canceller:  &fakeCanceller{},
	}
	f.svc = NewService(ServiceDeps{
		Coordinator: coordinator,
		Catalog:     catalog,
		Sessions:    sessions,
		Usage:       usage,
		Tx:          postgres.NewTxManager(client),
		Gate:        f.gate,
		Quoter:      estimator,
		Dispatcher:  f.dispatcher,
		Canceller:   f.canceller,
		Config:      manager,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.svc.Drain(ctx)
	})
	return f
}

func (f *serviceFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Drain(ctx))
}

func startInput(models ...string) StartInput {
	return StartInput{
		UserID:     "u1",
		ProjectID:  "proj",
		Prompt:     "Name my coffee startup",
		Models:     models,
		Mode:       "creative",
		Parameters: map[string]any{},
	}
}

func TestStartSessionRunsToCompletion(t *testing.T) {
	f := newServiceFixture(t, generationConfig(config.DispatchConcurrent), map[string]service.NameGenerator{
		"gpt-4":             succeed(names(5, "Brew"), 100, 50),
		"claude-3.5-sonnet": succeed(names(3, "Roast"), 100, 50),
	})
	ctx := context.Background()

	id, err := f.svc.StartSession(ctx, startInput("gpt-4", "claude-3.5-sonnet", "gpt-4"))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, f.gate.admitted, 1)
	assert.Positive(t, f.gate.admitted[0], "admission receives a cost estimate")

	f.drain(t)

	snap, err := f.svc.GetStatus(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, string(entity.SessionStatusCompleted), snap.Status)
	assert.Len(t, snap.Results, 2)
	assert.Equal(t, 8, snap.TotalNamesGenerated)
	assert.Equal(t, entity.ModelRunSucceeded, snap.PerModelMetrics["gpt-4"].Status)
	assert.True(t, snap.Terminal())

	stored, err := f.sessions.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusCompleted, stored.Status)
	assert.Equal(t, []string{"gpt-4", "claude-3.5-sonnet"}, stored.RequestedModels)

	records, err := f.usage.ListBySession(ctx, id)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestStartSessionValidation(t *testing.T) {
	f := newServiceFixture(t, generationConfig(config.DispatchSequential), nil)
	ctx := context.Background()

	cases := map[string]struct {
		in   StartInput
		want *apperrors.AppError
	}{
		"missing user":   {in: StartInput{Prompt: "x", Models: []string{"gpt-4"}}, want: apperrors.ErrUnauthorized},
		"blank prompt":   {in: StartInput{UserID: "u1", Prompt: "   ", Models: []string{"gpt-4"}}, want: apperrors.ErrInvalidParam},
		"long prompt":    {in: StartInput{UserID: "u1", Prompt: strings.Repeat("a", 2001), Models: []string{"gpt-4"}}, want: apperrors.ErrInvalidParam},
		"no models":      {in: StartInput{UserID: "u1", Prompt: "x"}, want: apperrors.ErrInvalidParam},
		"unknown model":  {in: StartInput{UserID: "u1", Prompt: "x", Models: []string{"gpt-9"}}, want: apperrors.ErrModelNotFound},
		"only blank ids": {in: StartInput{UserID: "u1", Prompt: "x", Models: []string{" ", ""}}, want: apperrors.ErrInvalidParam},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			id, err := f.svc.StartSession(ctx, tc.in)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, tc.want), "got %v", err)
			assert.Empty(t, id)
		})
	}
	assert.Empty(t, f.gate.admitted)
}

func TestStartSessionUsesDefaultModel(t *testing.T) {
	cfg := generationConfig(config.DispatchSequential)
	cfg.Generation.DefaultModel = "gpt-4"
	f := newServiceFixture(t, cfg, map[string]service.NameGenerator{
		"gpt-4": succeed([]string{"Brewly"}, 0, 0),
	})

	id, err := f.svc.StartSession(context.Background(), startInput())
	require.NoError(t, err)
	f.drain(t)

	stored, err := f.sessions.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4"}, stored.RequestedModels)
}

func TestStartSessionRejectedBeforeSessionExists(t *testing.T) {
	f := newServiceFixture(t, generationConfig(config.DispatchSequential), nil)
	f.gate.err = apperrors.ErrRateLimited.WithDetail("hourly limit reached: 50/50")
	ctx := context.Background()

	id, err := f.svc.StartSession(ctx, startInput("gpt-4"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrRateLimited))
	assert.Empty(t, id)

	page, err := f.sessions.ListByUser(ctx, "u1", nil, repository.NewPagination(1, 20))
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestStartSessionNoModelsAvailable(t *testing.T) {
	f := newServiceFixture(t, generationConfig(config.DispatchSequential), nil)
	ctx := context.Background()

	id, err := f.svc.StartSession(ctx, startInput("model-in-maintenance"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoModelsAvailable))
	require.NotEmpty(t, id)

	snap, err := f.svc.GetStatus(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, string(entity.SessionStatusFailed), snap.Status)
	assert.Nil(t, snap.StartedAt)
	assert.Empty(t, snap.Results)
	assert.Empty(t, f.gate.admitted, "refused sessions must not consume admission")
}

func TestGetStatusOwnerOnly(t *testing.T) {
	f := newServiceFixture(t, generationConfig(config.DispatchSequential), nil)
	ctx := context.Background()

	s := coffeeSession("gpt-4")
	require.NoError(t, f.sessions.Create(ctx, s))

	_, err := f.svc.GetStatus(ctx, "someone-else", s.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	snap, err := f.svc.GetStatus(ctx, "u1", s.ID)
	require.NoError(t, err)
	assert.Equal(t, string(entity.SessionStatusPending), snap.Status)
}

func TestGetStatusUnknownSession(t *testing.T) {
	f := newServiceFixture(t, generationConfig(config.DispatchSequential), nil)

	snap, err := f.svc.GetStatus(context.Background(), "u1", "missing")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, snap.Status)
	assert.False(t, snap.Found())
	assert.True(t, snap.Terminal())
}

func TestCancelSessionPreservesCompletedWork(t *testing.T) {
	started := make(chan string, 1)
	f := newServiceFixture(t, generationConfig(config.DispatchSequential), map[string]service.NameGenerator{
		"gpt-4":             succeed([]string{"Brewly", "BeanBurst"}, 0, 0),
		"claude-3.5-sonnet": blockUntilDone(started),
	})
	ctx := context.Background()

	id, err := f.svc.StartSession(ctx, startInput("gpt-4", "claude-3.5-sonnet"))
	require.NoError(t, err)
	<-started

	_, err = f.svc.CancelSession(ctx, "someone-else", id)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	ok, err := f.svc.CancelSession(ctx, "u1", id)
	require.NoError(t, err)
	assert.True(t, ok)
	f.drain(t)

	snap, err := f.svc.GetStatus(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, string(entity.SessionStatusCancelled), snap.Status)
	assert.Equal(t, map[string][]string{
		"gpt-4":             {"Brewly", "BeanBurst"},
		"claude-3.5-sonnet": nil,
	}, snap.Results)

	ok, err = f.svc.CancelSession(ctx, "u1", id)
	require.NoError(t, err)
	assert.False(t, ok, "terminal sessions cannot be cancelled")

	ok, err = f.svc.CancelSession(ctx, "u1", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelSessionRunningElsewhereBroadcasts(t *testing.T) {
	f := newServiceFixture(t, generationConfig(config.DispatchSequential), nil)
	ctx := context.Background()

	s := coffeeSession("gpt-4")
	require.NoError(t, s.Start(time.Now().UTC()))
	require.NoError(t, f.sessions.Create(ctx, s))

	ok, err := f.svc.CancelSession(ctx, "u1", s.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{s.ID}, f.canceller.ids)
}

func TestDeleteSessionRemovesUsage(t *testing.T) {
	f := newServiceFixture(t, generationConfig(config.DispatchSequential), map[string]service.NameGenerator{
		"gpt-4": succeed([]string{"Brewly"}, 10, 10),
	})
	ctx := context.Background()

	id, err := f.svc.StartSession(ctx, startInput("gpt-4"))
	require.NoError(t, err)
	f.drain(t)

	records, err := f.usage.ListBySession(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)

	err = f.svc.DeleteSession(ctx, "intruder", id)
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))

	require.NoError(t, f.svc.DeleteSession(ctx, "u1", id))

	snap, err := f.svc.GetStatus(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, snap.Status)
	records, err = f.usage.ListBySession(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, records)

	err = f.svc.DeleteSession(ctx, "u1", id)
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionNotFound))
}

func TestDeleteRunningSessionCancelsFirst(t *testing.T) {
	started := make(chan string, 1)
	f := newServiceFixture(t, generationConfig(config.DispatchSequential), map[string]service.NameGenerator{
		"gpt-4": blockUntilDone(started),
	})
	ctx := context.Background()

	id, err := f.svc.StartSession(ctx, startInput("gpt-4"))
	require.NoError(t, err)
	<-started

	require.NoError(t, f.svc.DeleteSession(ctx, "u1", id))
	f.drain(t)

	stored, err := f.sessions.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stored, "a cancelled run must not write the row back")
}

func TestAsyncDispatchRunsInWorker(t *testing.T) {
	cfg := generationConfig(config.DispatchSequential)
	cfg.Generation.AsyncDispatch = true
	f := newServiceFixture(t, cfg, map[string]service.NameGenerator{
		"gpt-4": succeed([]string{"Brewly"}, 0, 0),
	})
	ctx := context.Background()

	id, err := f.svc.StartSession(ctx, startInput("gpt-4"))
	require.NoError(t, err)
	require.Len(t, f.dispatcher.msgs, 1)
	assert.Equal(t, id, f.dispatcher.msgs[0].SessionID)
	assert.Equal(t, "u1", f.dispatcher.msgs[0].UserID)

	snap, err := f.svc.GetStatus(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, string(entity.SessionStatusPending), snap.Status)

	require.NoError(t, f.svc.RunDispatched(ctx, id))
	snap, err = f.svc.GetStatus(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, string(entity.SessionStatusCompleted), snap.Status)

	// 重复投递不会重新执行
	require.NoError(t, f.svc.RunDispatched(ctx, id))
	require.NoError(t, f.svc.RunDispatched(ctx, "missing"))
}

func TestRunDispatchedAbandonsExpiredRunningSession(t *testing.T) {
	cfg := generationConfig(config.DispatchSequential)
	cfg.Generation.SessionTimeout = 200 * time.Millisecond
	f := newServiceFixture(t, cfg, map[string]service.NameGenerator{
		"gpt-4": blockUntilDone(nil),
	})
	ctx := context.Background()

	s := coffeeSession("gpt-4", "claude-3.5-sonnet")
	started := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.Start(started))
	s.BeginModel("gpt-4", started)
	require.True(t, s.RecordSuccess("claude-3.5-sonnet", []string{"Roastery"}, entity.TokenUsage{}, 0, time.Second, started))
	require.NoError(t, f.sessions.Create(ctx, s))

	require.NoError(t, f.svc.RunDispatched(ctx, s.ID))

	stored, err := f.sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsTerminal(), "status %s", stored.Status)
	assert.Equal(t, entity.SessionStatusPartial, stored.Status)
	run, _ := stored.Run("gpt-4")
	assert.Equal(t, entity.FailureTimeout, run.ErrorKind)
	assert.Equal(t, []string{"Roastery"}, stored.Results()["claude-3.5-sonnet"])
}

func TestRunDispatchedResumesOnlyOpenModels(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	record := func(list []string) service.NameGenerator {
		return service.NameGeneratorFunc(func(_ context.Context, req service.GenerationRequest) (*service.GenerationResult, error) {
			mu.Lock()
			calls = append(calls, req.ModelID)
			mu.Unlock()
			return &service.GenerationResult{Names: list}, nil
		})
	}
	f := newServiceFixture(t, generationConfig(config.DispatchSequential), map[string]service.NameGenerator{
		"gpt-4":             record([]string{"Brewly"}),
		"claude-3.5-sonnet": record([]string{"Roastery"}),
	})
	ctx := context.Background()

	s := coffeeSession("gpt-4", "claude-3.5-sonnet")
	now := time.Now().UTC()
	require.NoError(t, s.Start(now))
	require.True(t, s.RecordSuccess("gpt-4", []string{"Beanly"}, entity.TokenUsage{}, 0, time.Second, now))
	s.BeginModel("claude-3.5-sonnet", now)
	require.NoError(t, f.sessions.Create(ctx, s))

	require.NoError(t, f.svc.RunDispatched(ctx, s.ID))

	stored, err := f.sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusCompleted, stored.Status)
	assert.Equal(t, map[string][]string{
		"gpt-4":             {"Beanly"},
		"claude-3.5-sonnet": {"Roastery"},
	}, stored.Results())
	assert.Equal(t, []string{"claude-3.5-sonnet"}, calls)
}

func TestListSessions(t *testing.T) {
	f := newServiceFixture(t, generationConfig(config.DispatchSequential), map[string]service.NameGenerator{
		"gpt-4": succeed([]string{"Brewly"}, 0, 0),
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.StartSession(ctx, startInput("gpt-4"))
		require.NoError(t, err)
	}
	f.drain(t)

	page, err := f.svc.ListSessions(ctx, "u1", &repository.SessionFilter{Status: entity.SessionStatusCompleted}, repository.NewPagination(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 2)
}
