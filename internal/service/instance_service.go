package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/mashov-bridge/internal/mashov"
	"github.com/noah-isme/mashov-bridge/internal/models"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
	applog "github.com/noah-isme/mashov-bridge/pkg/logger"
)

// Outcome labels reported by RefreshNow.
const (
	OutcomeQueued    = "queued"
	OutcomeCoalesced = "coalesced"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// MashovClient is the upstream client an instance drives.
type MashovClient interface {
	Authenticate(ctx context.Context) error
	FetchAll(ctx context.Context) (*models.FetchResult, error)
	Close() error
	State() mashov.AuthState
	SchoolID() int
	Year() int
	BreakerState() string
}

// ClientFactory builds the upstream client of an instance.
type ClientFactory func(def models.InstanceDefinition, opts models.EffectiveOptions) (MashovClient, error)

// InstanceOptionsStore persists options edited at runtime. Get returns
// sql.ErrNoRows when nothing is stored.
type InstanceOptionsStore interface {
	Get(ctx context.Context, instanceID string) (*models.InstanceOptions, error)
	Upsert(ctx context.Context, instanceID string, opts models.InstanceOptions) error
	Delete(ctx context.Context, instanceID string) error
}

// RefreshRunStore records refresh history.
type RefreshRunStore interface {
	Create(ctx context.Context, run *models.RefreshRun) error
	Finish(ctx context.Context, run *models.RefreshRun) error
	Latest(ctx context.Context, instanceID string) (*models.RefreshRun, error)
	List(ctx context.Context, filter models.RefreshRunFilter) ([]models.RefreshRun, int, error)
}

// InstanceServiceConfig tunes the instance manager.
type InstanceServiceConfig struct {
	PollInterval   time.Duration
	RefreshTimeout time.Duration
	Workers        int
	Now            func() time.Time
	AfterFunc      TimerFactory
}

type instance struct {
	scheduler *RefreshScheduler

	mu            sync.RWMutex
	def           models.InstanceDefinition
	options       models.EffectiveOptions
	client        MashovClient
	state         models.InstanceState
	lastErr       string
	result        *models.FetchResult
	lastRefreshAt *time.Time
	lastSuccessAt *time.Time
	lastRun       *models.RefreshRun
}

func (i *instance) snapshot() (models.InstanceDefinition, models.EffectiveOptions, MashovClient) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.def, i.options, i.client
}

func (i *instance) status() models.InstanceStatus {
	i.mu.RLock()
	defer i.mu.RUnlock()
	st := models.InstanceStatus{
		ID:            i.def.ID,
		State:         i.state,
		Error:         i.lastErr,
		SchoolID:      i.client.SchoolID(),
		Year:          i.client.Year(),
		Students:      []models.StudentSummary{},
		LastRefreshAt: i.lastRefreshAt,
		LastSuccessAt: i.lastSuccessAt,
		Options:       i.options,
	}
	if i.result != nil {
		st.Students = append(st.Students, i.result.Students...)
	}
	return st
}

// InstanceService manages the lifecycle of every configured parent account:
// setup, scheduled and manual refreshes, reconfiguration and unload.
type InstanceService struct {
	factory     ClientFactory
	publisher   *StatePublisher
	options     InstanceOptionsStore
	runs        RefreshRunStore
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	coordinator *RefreshCoordinator
	cfg         InstanceServiceConfig
	now         func() time.Time

	mu        sync.RWMutex
	instances map[string]*instance
}

// NewInstanceService constructs the manager. options and runs may be nil
// when no database is configured.
func NewInstanceService(factory ClientFactory, publisher *StatePublisher, options InstanceOptionsStore, runs RefreshRunStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg InstanceServiceConfig) *InstanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if publisher == nil {
		publisher = NewStatePublisher(nil, nil, metrics, logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &InstanceService{
		factory:   factory,
		publisher: publisher,
		options:   options,
		runs:      runs,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       cfg.Now,
		instances: make(map[string]*instance),
	}
	s.coordinator = NewRefreshCoordinator(s.runRefresh, CoordinatorConfig{
		Workers: cfg.Workers,
		Timeout: cfg.RefreshTimeout,
		Logger:  logger,
	})
	return s
}

// Start launches the asynchronous refresh workers.
func (s *InstanceService) Start(ctx context.Context) {
	s.coordinator.Start(ctx)
}

// Setup registers an instance, runs its first refresh and arms its schedule.
// A failed first refresh leaves the instance registered and unavailable; the
// error is returned so the caller can surface it.
func (s *InstanceService) Setup(ctx context.Context, def models.InstanceDefinition) error {
	if err := s.validator.Struct(def); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instance definition")
	}
	def.Options = s.withStoredOptions(ctx, def.ID, def.Options)
	logger := s.logger.With(zap.String("instance", def.ID))
	opts := ResolveOptions(def, logger)

	client, err := s.factory(def, opts)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to build client")
	}

	inst := &instance{def: def, options: opts, client: client, state: models.InstanceStarting}
	inst.scheduler = NewRefreshScheduler(SchedulerConfig{
		InstanceID:   def.ID,
		PollInterval: s.cfg.PollInterval,
		Logger:       s.logger,
		Now:          s.cfg.Now,
		AfterFunc:    s.cfg.AfterFunc,
	}, func(trigger models.RefreshTrigger) {
		s.coordinator.Request(def.ID, trigger)
	})

	s.mu.Lock()
	if _, exists := s.instances[def.ID]; exists {
		s.mu.Unlock()
		_ = client.Close()
		return appErrors.Clone(appErrors.ErrConflict, "instance already configured")
	}
	s.instances[def.ID] = inst
	s.mu.Unlock()

	_, err = s.coordinator.Refresh(ctx, def.ID, models.TriggerSetup)
	inst.scheduler.Arm(opts.Schedule)
	if err != nil {
		logger.Error("instance setup failed", zap.Error(err))
		return err
	}
	logger.Info("instance ready", zap.Int("students", len(inst.status().Students)))
	return nil
}

// SetupAll sets up every definition. Failures are logged and do not stop
// the remaining instances. It returns the number of available instances.
func (s *InstanceService) SetupAll(ctx context.Context, defs []models.InstanceDefinition) int {
	ready := 0
	for _, def := range defs {
		if err := s.Setup(ctx, def); err != nil {
			s.logger.Warn("instance unavailable after setup", zap.String("instance", def.ID), zap.Error(err))
			continue
		}
		ready++
	}
	return ready
}

func (s *InstanceService) withStoredOptions(ctx context.Context, id string, options models.InstanceOptions) models.InstanceOptions {
	if s.options == nil {
		return options
	}
	stored, err := s.options.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load stored options", zap.String("instance", id), zap.Error(err))
		}
		return options
	}
	return MergeOptions(options, *stored)
}

func (s *InstanceService) get(id string) (*instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "instance not found")
	}
	return inst, nil
}

// runRefresh is the body of one refresh cycle. The coordinator guarantees
// it never runs twice concurrently for the same instance.
func (s *InstanceService) runRefresh(ctx context.Context, id string, trigger models.RefreshTrigger) error {
	inst, err := s.get(id)
	if err != nil {
		return err
	}
	_, opts, client := inst.snapshot()
	logger := s.logger.With(zap.String("instance", id), zap.String("trigger", string(trigger)))

	started := s.now()
	run := &models.RefreshRun{
		ID:         uuid.NewString(),
		InstanceID: id,
		Trigger:    trigger,
		Status:     models.RefreshRunning,
		StartedAt:  started,
	}
	if s.runs != nil {
		if err := s.runs.Create(ctx, run); err != nil {
			logger.Warn("failed to record refresh start", zap.Error(err))
		}
	}

	result, err := s.fetch(ctx, client)
	finished := s.now()
	run.FinishedAt = &finished

	if current, _ := s.get(id); current != inst {
		logger.Info("instance unloaded during refresh, discarding result")
		return appErrors.Clone(appErrors.ErrNotFound, "instance unloaded")
	}

	inst.mu.Lock()
	inst.lastRefreshAt = &finished
	if err != nil {
		msg := err.Error()
		run.Status = models.RefreshFailed
		run.Error = &msg
		inst.state = models.InstanceUnavailable
		inst.lastErr = msg
	} else {
		run.Status = models.RefreshSucceeded
		run.Students = len(result.Students)
		run.Items = result.TotalItems()
		inst.state = models.InstanceAvailable
		inst.lastErr = ""
		inst.result = result
		inst.lastSuccessAt = &finished
	}
	inst.lastRun = run
	inst.mu.Unlock()

	if err == nil {
		s.publisher.Publish(ctx, id, result, opts.MaxItemsInAttributes)
		logger.Info("refresh succeeded", zap.Int("students", run.Students), zap.Int("items", run.Items), zap.Duration("duration", finished.Sub(started)))
	} else {
		logger.Error("refresh failed", zap.Error(err), zap.Duration("duration", finished.Sub(started)))
	}

	if s.runs != nil {
		if ferr := s.runs.Finish(ctx, run); ferr != nil {
			logger.Warn("failed to record refresh result", zap.Error(ferr))
		}
	}
	s.metrics.ObserveRefresh(id, trigger, run.Status, finished.Sub(started))
	s.metrics.SetInstanceAvailable(id, err == nil)
	return err
}

func (s *InstanceService) fetch(ctx context.Context, client MashovClient) (*models.FetchResult, error) {
	if client.State() != mashov.StateAuthenticated {
		if err := client.Authenticate(ctx); err != nil {
			return nil, err
		}
	}
	return client.FetchAll(ctx)
}

// RefreshNow triggers a manual refresh of one instance, or of every instance
// when id is empty. With wait set it blocks until the cycles finish.
func (s *InstanceService) RefreshNow(ctx context.Context, id string, wait bool) ([]models.RefreshOutcome, error) {
	targets, err := s.targets(id)
	if err != nil {
		return nil, err
	}
	outcomes := make([]models.RefreshOutcome, len(targets))
	applog.WithRequest(ctx, s.logger).Info("manual refresh requested", zap.Strings("instances", targets), zap.Bool("wait", wait))

	if !wait {
		for i, target := range targets {
			status := OutcomeQueued
			if !s.coordinator.Request(target, models.TriggerManual) {
				status = OutcomeCoalesced
			}
			outcomes[i] = models.RefreshOutcome{InstanceID: target, Status: status}
		}
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			shared, err := s.coordinator.Refresh(gctx, target, models.TriggerManual)
			outcome := models.RefreshOutcome{InstanceID: target, Status: OutcomeSucceeded, Shared: shared}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				outcome.Status = OutcomeFailed
				outcome.Error = err.Error()
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (s *InstanceService) targets(id string) ([]string, error) {
	if id != "" {
		if _, err := s.get(id); err != nil {
			return nil, err
		}
		return []string{id}, nil
	}
	return s.IDs(), nil
}

// IDs returns the configured instance ids in order.
func (s *InstanceService) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Reconfigure applies new structured options, persists them and re-arms
// the schedule. The client is rebuilt when the homework window changes; the
// old client is closed only after any cycle still using it has finished,
// and a cycle on the new client runs before Reconfigure returns.
func (s *InstanceService) Reconfigure(ctx context.Context, id string, update models.InstanceOptions) (*models.InstanceStatus, error) {
	inst, err := s.get(id)
	if err != nil {
		return nil, err
	}
	def, current, _ := inst.snapshot()
	def.Options = MergeOptions(def.Options, update)
	opts := ResolveOptions(def, s.logger.With(zap.String("instance", id)))

	if s.options != nil {
		if err := s.options.Upsert(ctx, id, def.Options); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist options")
		}
	}

	var stale MashovClient
	if opts.HomeworkDaysBack != current.HomeworkDaysBack || opts.HomeworkDaysForward != current.HomeworkDaysForward {
		client, err := s.factory(def, opts)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to build client")
		}
		inst.mu.Lock()
		stale, inst.client = inst.client, client
		inst.mu.Unlock()
	}

	inst.mu.Lock()
	inst.def = def
	inst.options = opts
	inst.mu.Unlock()
	inst.scheduler.Arm(opts.Schedule)

	if stale != nil {
		s.replaceClient(ctx, id, stale)
	}
	s.logger.Info("instance reconfigured", zap.String("instance", id), zap.String("schedule", string(opts.Schedule.Type)))
	st := inst.status()
	return &st, nil
}

// replaceClient retires stale once no cycle uses it. A cycle in flight is
// joined rather than cancelled; when the joined cycle ran on stale, another
// one is queued for the new client.
func (s *InstanceService) replaceClient(ctx context.Context, id string, stale MashovClient) {
	logger := s.logger.With(zap.String("instance", id))
	shared, err := s.coordinator.Refresh(context.WithoutCancel(ctx), id, models.TriggerReconfigure)
	if err != nil {
		logger.Warn("refresh after client rebuild failed", zap.Error(err))
	}
	if cerr := stale.Close(); cerr != nil {
		logger.Warn("closing replaced client failed", zap.Error(cerr))
	}
	if shared {
		s.coordinator.Request(id, models.TriggerReconfigure)
	}
}

// Unload stops an instance and drops its published state.
func (s *InstanceService) Unload(ctx context.Context, id string) error {
	s.mu.Lock()
	inst, ok := s.instances[id]
	if ok {
		delete(s.instances, id)
	}
	s.mu.Unlock()
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "instance not found")
	}

	inst.scheduler.Stop()
	_, _, client := inst.snapshot()
	if err := client.Close(); err != nil {
		s.logger.Warn("closing client failed", zap.String("instance", id), zap.Error(err))
	}
	s.publisher.Clear(ctx, id)
	s.metrics.ForgetInstance(id)
	s.logger.Info("instance unloaded", zap.String("instance", id))
	return nil
}

// Shutdown stops every schedule and closes every client. Published state is kept.
func (s *InstanceService) Shutdown(ctx context.Context) {
	s.coordinator.Stop()
	s.mu.RLock()
	instances := make([]*instance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, inst := range instances {
		inst.scheduler.Stop()
		_, _, client := inst.snapshot()
		wg.Add(1)
		go func(c MashovClient) {
			defer wg.Done()
			_ = c.Close()
		}(client)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline reached before clients closed")
	}
}

// List returns the status of every instance ordered by id.
func (s *InstanceService) List() []models.InstanceStatus {
	out := make([]models.InstanceStatus, 0)
	for _, id := range s.IDs() {
		if inst, err := s.get(id); err == nil {
			out = append(out, inst.status())
		}
	}
	return out
}

// Status returns the status of one instance.
func (s *InstanceService) Status(id string) (*models.InstanceStatus, error) {
	inst, err := s.get(id)
	if err != nil {
		return nil, err
	}
	st := inst.status()
	return &st, nil
}

// Result returns the full, unbounded result of the last successful refresh.
func (s *InstanceService) Result(id string) (*models.FetchResult, error) {
	inst, err := s.get(id)
	if err != nil {
		return nil, err
	}
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	if inst.result == nil {
		msg := "no data fetched yet"
		if inst.lastErr != "" {
			msg = inst.lastErr
		}
		return nil, appErrors.Clone(appErrors.ErrUnavailable, msg)
	}
	return inst.result, nil
}

// StudentData returns the full data of one student of an instance.
func (s *InstanceService) StudentData(id, slug string) (models.StudentSummary, models.StudentData, error) {
	result, err := s.Result(id)
	if err != nil {
		return models.StudentSummary{}, models.StudentData{}, err
	}
	student, ok := result.Student(slug)
	if !ok {
		return models.StudentSummary{}, models.StudentData{}, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return student, result.BySlug[slug], nil
}

// Sensors returns the published bounded view of an instance.
func (s *InstanceService) Sensors(ctx context.Context, id string) ([]models.SensorState, error) {
	if _, err := s.get(id); err != nil {
		return nil, err
	}
	return s.publisher.Sensors(ctx, id)
}

// Sensor returns one published sensor of an instance.
func (s *InstanceService) Sensor(ctx context.Context, id, key string) (*models.SensorState, error) {
	if _, err := s.get(id); err != nil {
		return nil, err
	}
	return s.publisher.Sensor(ctx, id, key)
}

// Diagnostics returns the redacted definition, status and last run of an instance.
func (s *InstanceService) Diagnostics(ctx context.Context, id string) (*models.InstanceDiagnostics, error) {
	inst, err := s.get(id)
	if err != nil {
		return nil, err
	}
	def, _, _ := inst.snapshot()
	diag := &models.InstanceDiagnostics{
		Definition: def.Redacted(),
		Status:     inst.status(),
	}
	inst.mu.RLock()
	diag.TotalItems = inst.result.TotalItems()
	diag.LastRun = inst.lastRun
	inst.mu.RUnlock()

	if s.runs != nil {
		latest, err := s.runs.Latest(ctx, id)
		switch {
		case err == nil:
			diag.LastRun = latest
		case !errors.Is(err, sql.ErrNoRows):
			s.logger.Warn("failed to load last refresh run", zap.String("instance", id), zap.Error(err))
		}
	}
	return diag, nil
}

// Runs lists refresh history. Without a run store only the last in-memory run
// of each instance is returned.
func (s *InstanceService) Runs(ctx context.Context, filter models.RefreshRunFilter) ([]models.RefreshRun, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}
	if s.runs != nil {
		runs, total, err := s.runs.List(ctx, filter)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list refresh runs")
		}
		return runs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
	}

	runs := make([]models.RefreshRun, 0)
	for _, id := range s.IDs() {
		if filter.InstanceID != "" && filter.InstanceID != id {
			continue
		}
		inst, err := s.get(id)
		if err != nil {
			continue
		}
		inst.mu.RLock()
		last := inst.lastRun
		inst.mu.RUnlock()
		if last == nil || (filter.Status != nil && last.Status != *filter.Status) {
			continue
		}
		runs = append(runs, *last)
	}
	return runs, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: len(runs)}, nil
}

// NextRuns returns the pending scheduled refresh times of an instance.
func (s *InstanceService) NextRuns(id string) ([]time.Time, error) {
	inst, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return inst.scheduler.NextRuns(), nil
}
