package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/mashov-bridge/internal/models"
	"github.com/noah-isme/mashov-bridge/pkg/jobs"
)

const refreshJobType = "refresh"

// RefreshFunc runs one full refresh cycle of an instance.
type RefreshFunc func(ctx context.Context, instanceID string, trigger models.RefreshTrigger) error

// CoordinatorConfig tunes the refresh coordinator.
type CoordinatorConfig struct {
	Workers int
	// Timeout bounds one refresh cycle, independent of the caller's context.
	Timeout time.Duration
	Logger  *zap.Logger
}

// RefreshCoordinator guarantees at most one refresh in flight per instance.
// Synchronous callers share the in-flight cycle; asynchronous requests made
// while a cycle is waiting or running are dropped.
type RefreshCoordinator struct {
	refresh RefreshFunc
	timeout time.Duration
	logger  *zap.Logger
	group   singleflight.Group
	queue   *jobs.Queue

	mu      sync.Mutex
	running map[string]struct{}
}

// NewRefreshCoordinator builds a coordinator around refresh.
func NewRefreshCoordinator(refresh RefreshFunc, cfg CoordinatorConfig) *RefreshCoordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c := &RefreshCoordinator{
		refresh: refresh,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		running: make(map[string]struct{}),
	}
	c.queue = jobs.NewQueue("refresh", c.handleJob, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  cfg.Logger,
	})
	return c
}

// Start launches the asynchronous workers.
func (c *RefreshCoordinator) Start(ctx context.Context) {
	c.queue.Start(ctx)
}

// Stop halts the workers and waits for running jobs to return.
func (c *RefreshCoordinator) Stop() {
	c.queue.Stop()
}

// Refresh runs a cycle and waits for it. Concurrent calls for the same
// instance share one cycle; shared reports whether this call joined one.
// Cancelling ctx stops the wait, not the cycle.
func (c *RefreshCoordinator) Refresh(ctx context.Context, instanceID string, trigger models.RefreshTrigger) (shared bool, err error) {
	ch := c.group.DoChan(instanceID, func() (interface{}, error) {
		c.markRunning(instanceID, true)
		defer c.markRunning(instanceID, false)

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return nil, c.refresh(runCtx, instanceID, trigger)
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		return res.Shared, res.Err
	}
}

// Request schedules a cycle without waiting. It returns false when the
// request coalesced with a waiting or running cycle.
func (c *RefreshCoordinator) Request(instanceID string, trigger models.RefreshTrigger) bool {
	if c.Running(instanceID) {
		c.logger.Debug("refresh request coalesced with running cycle", zap.String("instance", instanceID), zap.String("trigger", string(trigger)))
		return false
	}
	err := c.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Key:     instanceID,
		Type:    refreshJobType,
		Payload: trigger,
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, jobs.ErrCoalesced):
		c.logger.Debug("refresh request coalesced with pending cycle", zap.String("instance", instanceID), zap.String("trigger", string(trigger)))
	default:
		c.logger.Warn("refresh request rejected", zap.String("instance", instanceID), zap.Error(err))
	}
	return false
}

// Running reports whether a cycle for the instance is in flight.
func (c *RefreshCoordinator) Running(instanceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[instanceID]
	return ok
}

func (c *RefreshCoordinator) markRunning(instanceID string, running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if running {
		c.running[instanceID] = struct{}{}
	} else {
		delete(c.running, instanceID)
	}
}

func (c *RefreshCoordinator) handleJob(ctx context.Context, job jobs.Job) error {
	trigger, _ := job.Payload.(models.RefreshTrigger)
	_, err := c.Refresh(ctx, job.Key, trigger)
	return err
}
