package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mashov-bridge/internal/models"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
)

// StateRepository abstracts the external sink for published sensor states.
type StateRepository interface {
	Replace(ctx context.Context, instanceID string, states []models.SensorState) error
	List(ctx context.Context, instanceID string) ([]models.SensorState, error)
	Get(ctx context.Context, instanceID, sensorKey string) (*models.SensorState, error)
	Delete(ctx context.Context, instanceID string) error
}

// StateCacheService wraps the state sink with metrics and an on/off switch.
type StateCacheService struct {
	repo    StateRepository
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
}

// NewStateCacheService constructs the service.
func NewStateCacheService(repo StateRepository, metrics *MetricsService, logger *zap.Logger, enabled bool) *StateCacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateCacheService{repo: repo, metrics: metrics, logger: logger, enabled: enabled}
}

// Enabled indicates whether the sink is active.
func (s *StateCacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Load returns the stored states of an instance. It returns false on a miss.
func (s *StateCacheService) Load(ctx context.Context, instanceID string) ([]models.SensorState, bool, error) {
	if !s.Enabled() {
		return nil, false, nil
	}
	start := time.Now()
	states, err := s.repo.List(ctx, instanceID)
	hit := err == nil
	s.metrics.RecordCacheOperation(hit, time.Since(start))
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, false, nil
		}
		s.logger.Warn("state load failed", zap.String("instance", instanceID), zap.Error(err))
		return nil, false, err
	}
	return states, true, nil
}

// LoadSensor returns one stored sensor state. It returns false on a miss.
func (s *StateCacheService) LoadSensor(ctx context.Context, instanceID, key string) (*models.SensorState, bool, error) {
	if !s.Enabled() {
		return nil, false, nil
	}
	start := time.Now()
	state, err := s.repo.Get(ctx, instanceID, key)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, false, nil
		}
		s.logger.Warn("sensor load failed", zap.String("instance", instanceID), zap.String("sensor", key), zap.Error(err))
		return nil, false, err
	}
	return state, true, nil
}

// Store replaces the stored states of an instance.
func (s *StateCacheService) Store(ctx context.Context, instanceID string, states []models.SensorState) error {
	if !s.Enabled() {
		return nil
	}
	start := time.Now()
	err := s.repo.Replace(ctx, instanceID, states)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("state store failed", zap.String("instance", instanceID), zap.Error(err))
	}
	return err
}

// Invalidate removes the stored states of an instance.
func (s *StateCacheService) Invalidate(ctx context.Context, instanceID string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.Delete(ctx, instanceID); err != nil {
		s.logger.Warn("state invalidate failed", zap.String("instance", instanceID), zap.Error(err))
		return err
	}
	return nil
}
