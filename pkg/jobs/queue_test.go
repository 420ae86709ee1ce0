package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestQueueCoalescesPendingKeys(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 4)
	var runs int32

	q := NewQueue("refresh", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&runs, 1)
		started <- job.ID
		<-release
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Key: "home"}))
	assert.Equal(t, "1", <-started)

	require.NoError(t, q.Enqueue(Job{ID: "2", Key: "home"}), "running job no longer holds its key")
	assert.True(t, q.Pending("home"))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "3", Key: "home"}), ErrCoalesced)
	require.NoError(t, q.Enqueue(Job{ID: "4", Key: "grandparents"}))

	close(release)
	assert.Equal(t, "2", <-started)
	assert.Equal(t, "4", <-started)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 3 }, time.Second, 5*time.Millisecond)
	assert.False(t, q.Pending("home"))
}

func TestQueueFullDoesNotBlockOrLeakKey(t *testing.T) {
	release := make(chan struct{})
	busy := make(chan struct{}, 2)

	q := NewQueue("refresh", func(ctx context.Context, job Job) error {
		busy <- struct{}{}
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	require.NoError(t, q.Enqueue(Job{ID: "1", Key: "a"}))
	<-busy
	require.NoError(t, q.Enqueue(Job{ID: "2", Key: "b"}))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "3", Key: "c"}), ErrFull)
	assert.False(t, q.Pending("c"))
}

func TestQueueLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	done := make(chan struct{})
	q := NewQueue("refresh", func(ctx context.Context, job Job) error {
		defer close(done)
		return errors.New("login failed")
	}, QueueConfig{Logger: zap.New(core)})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "x", Key: "home", Type: "refresh"}))
	<-done
	require.Eventually(t, func() bool { return logs.FilterMessage("job failed").Len() == 1 }, time.Second, 5*time.Millisecond)
	entry := logs.FilterMessage("job failed").All()[0]
	assert.Equal(t, "home", entry.ContextMap()["key"])
}

func TestQueueRejectsWhenNotRunning(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Enqueue(Job{ID: "1", Key: "a"}), ErrNotRunning)
	assert.False(t, q.Pending("a"))

	q.Start(context.Background())
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(Job{ID: "2"}), ErrNotRunning)
}
