package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mashov-bridge/internal/mashov"
	"github.com/noah-isme/mashov-bridge/internal/models"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
)

type fakeMashovClient struct {
	mu         sync.Mutex
	opts       models.EffectiveOptions
	state      mashov.AuthState
	authErr    error
	fetchErr   error
	result     *models.FetchResult
	authCalls  int
	fetchCalls int
	closed     int
	// gate, when set, holds FetchAll until closed. A client closed while
	// held returns empty lists, as cancelled upstream requests do.
	gate           chan struct{}
	entered        chan struct{}
	closedMidFetch bool
}

func (c *fakeMashovClient) Authenticate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authCalls++
	if c.authErr != nil {
		c.state = mashov.StateUnauthenticated
		return c.authErr
	}
	c.state = mashov.StateAuthenticated
	return nil
}

func (c *fakeMashovClient) FetchAll(context.Context) (*models.FetchResult, error) {
	c.mu.Lock()
	c.fetchCalls++
	gate, entered := c.gate, c.entered
	c.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gate != nil && c.closed > 0 {
		c.closedMidFetch = true
		return &models.FetchResult{
			Students: c.result.Students,
			BySlug:   map[string]models.StudentData{"dana_levi": {}},
			Holidays: []models.Holiday{},
		}, nil
	}
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return c.result, nil
}

func (c *fakeMashovClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	c.state = mashov.StateUnauthenticated
	return nil
}

func (c *fakeMashovClient) State() mashov.AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == "" {
		return mashov.StateUnauthenticated
	}
	return c.state
}

func (c *fakeMashovClient) SchoolID() int        { return 123456 }
func (c *fakeMashovClient) Year() int            { return 2024 }
func (c *fakeMashovClient) BreakerState() string { return "closed" }

func (c *fakeMashovClient) set(fn func(*fakeMashovClient)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

type clientFactoryStub struct {
	mu      sync.Mutex
	clients []*fakeMashovClient
	prepare func(*fakeMashovClient)
}

func (f *clientFactoryStub) build(_ models.InstanceDefinition, opts models.EffectiveOptions) (MashovClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeMashovClient{opts: opts, result: danaResult()}
	if f.prepare != nil {
		f.prepare(c)
	}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *clientFactoryStub) last() *fakeMashovClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[len(f.clients)-1]
}

type optionsStoreStub struct {
	stored   map[string]models.InstanceOptions
	upserted []models.InstanceOptions
}

func (s *optionsStoreStub) Get(_ context.Context, id string) (*models.InstanceOptions, error) {
	opts, ok := s.stored[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &opts, nil
}

func (s *optionsStoreStub) Upsert(_ context.Context, _ string, opts models.InstanceOptions) error {
	s.upserted = append(s.upserted, opts)
	return nil
}

func (s *optionsStoreStub) Delete(context.Context, string) error { return nil }

type runStoreStub struct {
	mu       sync.Mutex
	created  []models.RefreshRun
	finished []models.RefreshRun
}

func (s *runStoreStub) Create(_ context.Context, run *models.RefreshRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, *run)
	return nil
}

func (s *runStoreStub) Finish(_ context.Context, run *models.RefreshRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, *run)
	return nil
}

func (s *runStoreStub) Latest(_ context.Context, _ string) (*models.RefreshRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.finished) == 0 {
		return nil, sql.ErrNoRows
	}
	run := s.finished[len(s.finished)-1]
	return &run, nil
}

func (s *runStoreStub) List(context.Context, models.RefreshRunFilter) ([]models.RefreshRun, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RefreshRun(nil), s.finished...), len(s.finished), nil
}

type instanceFixture struct {
	svc     *InstanceService
	factory *clientFactoryStub
	clock   *fakeClock
	options *optionsStoreStub
	runs    *runStoreStub
}

func newInstanceFixture(t *testing.T, withStores bool) *instanceFixture {
	t.Helper()
	f := &instanceFixture{
		factory: &clientFactoryStub{},
		clock:   &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)},
	}
	var options InstanceOptionsStore
	var runs RefreshRunStore
	if withStores {
		f.options = &optionsStoreStub{stored: map[string]models.InstanceOptions{}}
		f.runs = &runStoreStub{}
		options, runs = f.options, f.runs
	}
	f.svc = NewInstanceService(f.factory.build, nil, options, runs, nil, nil, nil, InstanceServiceConfig{
		Now:       f.clock.Now,
		AfterFunc: f.clock.AfterFunc,
	})
	f.svc.Start(context.Background())
	t.Cleanup(func() { f.svc.Shutdown(context.Background()) })
	return f
}

func homeDefinition() models.InstanceDefinition {
	return models.InstanceDefinition{ID: "home", School: "123456", Username: "parent", Password: "secret"}
}

func TestInstanceSetupPublishesAndArmsSchedule(t *testing.T) {
	f := newInstanceFixture(t, true)

	require.NoError(t, f.svc.Setup(context.Background(), homeDefinition()))

	status, err := f.svc.Status("home")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceAvailable, status.State)
	assert.Equal(t, 123456, status.SchoolID)
	require.Len(t, status.Students, 1)
	assert.Equal(t, "dana_levi", status.Students[0].Slug)
	assert.NotNil(t, status.LastSuccessAt)

	sensors, err := f.svc.Sensors(context.Background(), "home")
	require.NoError(t, err)
	assert.Len(t, sensors, len(models.StudentKinds)+1)

	assert.Len(t, f.clock.active(), 2, "daily clock timer plus poll")
	require.Len(t, f.runs.finished, 1)
	assert.Equal(t, models.TriggerSetup, f.runs.finished[0].Trigger)
	assert.Equal(t, models.RefreshSucceeded, f.runs.finished[0].Status)
	assert.Equal(t, 3, f.runs.finished[0].Items)

	err = f.svc.Setup(context.Background(), homeDefinition())
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestInstanceSetupFailureMarksUnavailable(t *testing.T) {
	f := newInstanceFixture(t, false)
	f.factory.prepare = func(c *fakeMashovClient) {
		c.authErr = errors.New("mashov: login rejected (HTTP 401)")
	}

	err := f.svc.Setup(context.Background(), homeDefinition())
	require.Error(t, err)

	status, err := f.svc.Status("home")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceUnavailable, status.State)
	assert.Contains(t, status.Error, "login rejected")

	_, err = f.svc.Result("home")
	assert.ErrorIs(t, err, appErrors.ErrUnavailable)
	assert.NotEmpty(t, f.clock.active(), "schedule is armed so later cycles can recover")
}

func TestInstanceSetupValidatesDefinition(t *testing.T) {
	f := newInstanceFixture(t, false)
	err := f.svc.Setup(context.Background(), models.InstanceDefinition{ID: "home"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.svc.IDs())
}

func TestInstanceSetupAppliesStoredOptions(t *testing.T) {
	f := newInstanceFixture(t, true)
	interval := "interval"
	minutes := 30
	f.options.stored["home"] = models.InstanceOptions{ScheduleType: &interval, ScheduleInterval: &minutes}

	require.NoError(t, f.svc.Setup(context.Background(), homeDefinition()))
	status, _ := f.svc.Status("home")
	assert.Equal(t, models.ScheduleInterval, status.Options.Schedule.Type)
	timers := f.clock.active()
	require.Len(t, timers, 1)
	assert.Equal(t, 30*time.Minute, timers[0].delay)
}

func TestInstanceFailedRefreshKeepsLastResult(t *testing.T) {
	f := newInstanceFixture(t, false)
	require.NoError(t, f.svc.Setup(context.Background(), homeDefinition()))
	f.factory.last().set(func(c *fakeMashovClient) { c.fetchErr = errors.New("reauth failed") })

	outcomes, err := f.svc.RefreshNow(context.Background(), "home", true)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeFailed, outcomes[0].Status)
	assert.Equal(t, "reauth failed", outcomes[0].Error)

	status, _ := f.svc.Status("home")
	assert.Equal(t, models.InstanceUnavailable, status.State)
	result, err := f.svc.Result("home")
	require.NoError(t, err)
	assert.Len(t, result.Students, 1)
}

func TestInstanceRefreshNowAllInstances(t *testing.T) {
	f := newInstanceFixture(t, false)
	require.NoError(t, f.svc.Setup(context.Background(), homeDefinition()))
	second := homeDefinition()
	second.ID = "grandparents"
	require.NoError(t, f.svc.Setup(context.Background(), second))

	outcomes, err := f.svc.RefreshNow(context.Background(), "", true)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "grandparents", outcomes[0].InstanceID)
	assert.Equal(t, "home", outcomes[1].InstanceID)
	for _, o := range outcomes {
		assert.Equal(t, OutcomeSucceeded, o.Status)
	}
	for _, c := range f.factory.clients {
		assert.Equal(t, 2, c.fetchCalls)
		assert.Equal(t, 1, c.authCalls, "session is reused across cycles")
	}

	_, err = f.svc.RefreshNow(context.Background(), "missing", false)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestInstanceRefreshNowQueues(t *testing.T) {
	f := newInstanceFixture(t, false)
	require.NoError(t, f.svc.Setup(context.Background(), homeDefinition()))

	outcomes, err := f.svc.RefreshNow(context.Background(), "home", false)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Contains(t, []string{OutcomeQueued, OutcomeCoalesced}, outcomes[0].Status)
	require.Eventually(t, func() bool {
		c := f.factory.last()
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.fetchCalls == 2
	}, time.Second, time.Millisecond)
}

func TestInstanceReconfigure(t *testing.T) {
	f := newInstanceFixture(t, true)
	require.NoError(t, f.svc.Setup(context.Background(), homeDefinition()))
	first := f.factory.last()

	weekly := "weekly"
	status, err := f.svc.Reconfigure(context.Background(), "home", models.InstanceOptions{
		ScheduleType: &weekly,
		ScheduleDays: []int{0, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleWeekly, status.Options.Schedule.Type)
	assert.Len(t, f.clock.active(), 3, "two weekday timers plus poll")
	assert.Len(t, f.factory.clients, 1, "client kept when the window is unchanged")
	require.Len(t, f.options.upserted, 1)

	back := 14
	_, err = f.svc.Reconfigure(context.Background(), "home", models.InstanceOptions{HomeworkDaysBack: &back})
	require.NoError(t, err)
	require.Len(t, f.factory.clients, 2)
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 14, f.factory.last().opts.HomeworkDaysBack)
	assert.Equal(t, models.ScheduleWeekly, f.factory.last().opts.Schedule.Type, "earlier updates are retained")
}

func TestInstanceReconfigureWaitsForRunningCycle(t *testing.T) {
	f := newInstanceFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.svc.Setup(ctx, homeDefinition()))
	first := f.factory.last()
	gate := make(chan struct{})
	first.set(func(c *fakeMashovClient) {
		c.gate = gate
		c.entered = make(chan struct{}, 1)
	})

	_, err := f.svc.RefreshNow(ctx, "home", false)
	require.NoError(t, err)
	<-first.entered

	back := 14
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Reconfigure(ctx, "home", models.InstanceOptions{HomeworkDaysBack: &back})
		done <- err
	}()
	require.Eventually(t, func() bool {
		f.factory.mu.Lock()
		defer f.factory.mu.Unlock()
		return len(f.factory.clients) == 2
	}, time.Second, time.Millisecond)
	assert.Never(t, func() bool {
		first.mu.Lock()
		defer first.mu.Unlock()
		return first.closed > 0
	}, 50*time.Millisecond, time.Millisecond, "the old client stays open while its cycle runs")

	close(gate)
	require.NoError(t, <-done)

	first.mu.Lock()
	assert.Equal(t, 1, first.closed)
	assert.False(t, first.closedMidFetch)
	first.mu.Unlock()

	second := f.factory.last()
	require.Eventually(t, func() bool {
		second.mu.Lock()
		defer second.mu.Unlock()
		return second.fetchCalls == 1
	}, time.Second, time.Millisecond, "a cycle runs on the rebuilt client")

	status, err := f.svc.Status("home")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceAvailable, status.State)
	sensor, err := f.svc.Sensor(ctx, "home", "mashov_dana_levi_homework")
	require.NoError(t, err)
	assert.Equal(t, 2, sensor.State)
}

func TestInstanceReconfigureRefreshesWithNewClient(t *testing.T) {
	f := newInstanceFixture(t, false)
	require.NoError(t, f.svc.Setup(context.Background(), homeDefinition()))

	back := 14
	_, err := f.svc.Reconfigure(context.Background(), "home", models.InstanceOptions{HomeworkDaysBack: &back})
	require.NoError(t, err)

	second := f.factory.last()
	second.mu.Lock()
	defer second.mu.Unlock()
	assert.Equal(t, 1, second.fetchCalls, "the new window is fetched before Reconfigure returns")
}

func TestInstanceUnload(t *testing.T) {
	f := newInstanceFixture(t, false)
	require.NoError(t, f.svc.Setup(context.Background(), homeDefinition()))
	client := f.factory.last()

	require.NoError(t, f.svc.Unload(context.Background(), "home"))
	assert.Equal(t, 1, client.closed)
	assert.Empty(t, f.clock.active())
	_, err := f.svc.Sensors(context.Background(), "home")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.ErrorIs(t, f.svc.Unload(context.Background(), "home"), appErrors.ErrNotFound)
}

func TestInstanceDiagnosticsRedactsSecrets(t *testing.T) {
	f := newInstanceFixture(t, true)
	require.NoError(t, f.svc.Setup(context.Background(), homeDefinition()))

	diag, err := f.svc.Diagnostics(context.Background(), "home")
	require.NoError(t, err)
	assert.Equal(t, models.RedactedValue, diag.Definition.Username)
	assert.Equal(t, models.RedactedValue, diag.Definition.Password)
	assert.Equal(t, "123456", diag.Definition.School)
	assert.Equal(t, 3, diag.TotalItems)
	require.NotNil(t, diag.LastRun)
	assert.Equal(t, models.RefreshSucceeded, diag.LastRun.Status)
}

func TestInstanceRunsWithoutStore(t *testing.T) {
	f := newInstanceFixture(t, false)
	require.NoError(t, f.svc.Setup(context.Background(), homeDefinition()))

	runs, page, err := f.svc.Runs(context.Background(), models.RefreshRunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "home", runs[0].InstanceID)
}
