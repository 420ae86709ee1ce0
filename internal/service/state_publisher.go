package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mashov-bridge/internal/models"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
)

// SensorKey builds the published key of a per-student sensor.
func SensorKey(slug string, kind models.DataKind) string {
	return "mashov_" + slug + "_" + string(kind)
}

// HolidaysSensorKey builds the published key of the shared holidays sensor.
func HolidaysSensorKey(instanceID string) string {
	return "mashov_" + instanceID + "_" + string(models.KindHolidays)
}

// BuildSensorStates turns a fetch result into bounded sensor states: one per
// student per kind plus one shared holidays sensor.
func BuildSensorStates(instanceID string, result *models.FetchResult, maxItems int, limiter *AttributeLimiter) []models.SensorState {
	if result == nil {
		return []models.SensorState{}
	}
	states := make([]models.SensorState, 0, len(result.Students)*len(models.StudentKinds)+1)
	for _, student := range result.Students {
		data := result.BySlug[student.Slug]
		for _, kind := range models.StudentKinds {
			total := data.Count(kind)
			states = append(states, models.SensorState{
				Key:         SensorKey(student.Slug, kind),
				InstanceID:  instanceID,
				Kind:        kind,
				State:       total,
				StudentName: student.Name,
				StudentID:   student.ID,
				StudentSlug: student.Slug,
				Year:        student.Year,
				LastUpdate:  result.FetchedAt,
				TotalItems:  total,
				Items:       limiter.Limit(data.Items(kind), maxItems),
			})
		}
	}
	states = append(states, models.SensorState{
		Key:        HolidaysSensorKey(instanceID),
		InstanceID: instanceID,
		Kind:       models.KindHolidays,
		State:      len(result.Holidays),
		LastUpdate: result.FetchedAt,
		TotalItems: len(result.Holidays),
		Items:      limiter.Limit(result.Holidays, maxItems),
	})
	return states
}

// StatePublisher keeps the latest bounded view of every instance in memory
// and writes it through to the state sink.
type StatePublisher struct {
	limiter *AttributeLimiter
	cache   *StateCacheService
	metrics *MetricsService
	logger  *zap.Logger

	mu     sync.RWMutex
	states map[string][]models.SensorState
}

// NewStatePublisher constructs a publisher. cache may be nil.
func NewStatePublisher(limiter *AttributeLimiter, cache *StateCacheService, metrics *MetricsService, logger *zap.Logger) *StatePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewAttributeLimiter(logger)
	}
	return &StatePublisher{
		limiter: limiter,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		states:  make(map[string][]models.SensorState),
	}
}

// Publish replaces the published view of an instance. Sink failures are
// logged and do not affect the in-memory view.
func (p *StatePublisher) Publish(ctx context.Context, instanceID string, result *models.FetchResult, maxItems int) []models.SensorState {
	states := BuildSensorStates(instanceID, result, maxItems, p.limiter)

	p.mu.Lock()
	p.states[instanceID] = states
	p.mu.Unlock()

	for _, s := range states {
		p.metrics.SetPublishedItems(instanceID, s.Key, len(s.Items))
	}

	start := time.Now()
	if err := p.cache.Store(ctx, instanceID, states); err != nil {
		p.logger.Warn("publishing to state sink failed", zap.String("instance", instanceID), zap.Error(err))
	} else {
		p.logger.Debug("state published", zap.String("instance", instanceID), zap.Int("sensors", len(states)), zap.Duration("duration", time.Since(start)))
	}
	return states
}

// Sensors returns the published view of an instance, falling back to the sink.
func (p *StatePublisher) Sensors(ctx context.Context, instanceID string) ([]models.SensorState, error) {
	p.mu.RLock()
	states, ok := p.states[instanceID]
	p.mu.RUnlock()
	if ok {
		return cloneStates(states), nil
	}

	stored, hit, err := p.cache.Load(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load published state")
	}
	if !hit {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no state published for instance")
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Key < stored[j].Key })
	return stored, nil
}

// Sensor returns one published sensor.
func (p *StatePublisher) Sensor(ctx context.Context, instanceID, key string) (*models.SensorState, error) {
	p.mu.RLock()
	states, ok := p.states[instanceID]
	p.mu.RUnlock()
	if ok {
		for _, s := range states {
			if s.Key == key {
				s := s
				return &s, nil
			}
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "sensor not found")
	}

	state, hit, err := p.cache.LoadSensor(ctx, instanceID, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sensor")
	}
	if !hit {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "sensor not found")
	}
	return state, nil
}

// Clear drops the published view of an instance.
func (p *StatePublisher) Clear(ctx context.Context, instanceID string) {
	p.mu.Lock()
	delete(p.states, instanceID)
	p.mu.Unlock()
	p.metrics.ForgetInstance(instanceID)
	if err := p.cache.Invalidate(ctx, instanceID); err != nil {
		p.logger.Warn("clearing state sink failed", zap.String("instance", instanceID), zap.Error(err))
	}
}

func cloneStates(states []models.SensorState) []models.SensorState {
	out := make([]models.SensorState, len(states))
	copy(out, states)
	return out
}
