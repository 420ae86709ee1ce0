package service

import (
	"sort"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].delay < out[j].delay })
	return out
}

func (c *fakeClock) fire(t *fakeTimer) {
	t.fired = true
	t.fn()
}

type triggerLog struct {
	mu       sync.Mutex
	triggers []models.RefreshTrigger
}

func (l *triggerLog) record(trigger models.RefreshTrigger) {
	l.mu.Lock()
	l.triggers = append(l.triggers, trigger)
	l.mu.Unlock()
}

func newTestScheduler(now time.Time) (*RefreshScheduler, *fakeClock, *triggerLog) {
	clock := &fakeClock{now: now}
	log := &triggerLog{}
	s := NewRefreshScheduler(SchedulerConfig{
		InstanceID: "home",
		Now:        clock.Now,
		AfterFunc:  clock.AfterFunc,
	}, log.record)
	return s, clock, log
}

func TestSchedulerDailyArmsClockAndPoll(t *testing.T) {
	// Monday 2024-01-15 10:00 UTC.
	s, clock, log := newTestScheduler(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	s.Arm(models.ScheduleConfig{Type: models.ScheduleDaily, Time: "02:30", Hour: 2, Minute: 30})

	timers := clock.active()
	require.Len(t, timers, 2)
	assert.Equal(t, 16*time.Hour+30*time.Minute, timers[0].delay)
	assert.Equal(t, 24*time.Hour, timers[1].delay)

	clock.fire(timers[0])
	assert.Equal(t, []models.RefreshTrigger{models.TriggerSchedule}, log.triggers)
	assert.Len(t, clock.active(), 2, "daily timer re-arms itself")
}

func TestSchedulerWeeklyArmsOneTimerPerDay(t *testing.T) {
	s, clock, _ := newTestScheduler(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	s.Arm(models.ScheduleConfig{Type: models.ScheduleWeekly, Time: "08:00", Hour: 8, Minute: 0, Days: []int{0, 2, 6}})

	timers := clock.active()
	require.Len(t, timers, 4)
	// Poll, Wednesday 08:00, Sunday 08:00, next Monday 08:00.
	assert.Equal(t, 24*time.Hour, timers[0].delay)
	assert.Equal(t, 2*24*time.Hour-2*time.Hour, timers[1].delay)
	assert.Equal(t, 6*24*time.Hour-2*time.Hour, timers[2].delay)
	assert.Equal(t, 7*24*time.Hour-2*time.Hour, timers[3].delay)

	next := s.NextRuns()
	require.Len(t, next, 4)
	assert.Equal(t, time.Wednesday, next[1].Weekday())
}

func TestSchedulerIntervalUsesPollCadenceOnly(t *testing.T) {
	s, clock, log := newTestScheduler(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	s.Arm(models.ScheduleConfig{Type: models.ScheduleInterval, IntervalMinutes: 15})

	timers := clock.active()
	require.Len(t, timers, 1)
	assert.Equal(t, 15*time.Minute, timers[0].delay)

	clock.fire(timers[0])
	assert.Equal(t, []models.RefreshTrigger{models.TriggerPoll}, log.triggers)
	require.Len(t, clock.active(), 1)
}

func TestSchedulerRearmCancelsPreviousTimers(t *testing.T) {
	s, clock, log := newTestScheduler(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	s.Arm(models.ScheduleConfig{Type: models.ScheduleDaily, Hour: 2, Minute: 30})
	old := clock.active()

	s.Arm(models.ScheduleConfig{Type: models.ScheduleInterval, IntervalMinutes: 30})
	for _, timer := range old {
		assert.True(t, timer.stopped)
	}
	require.Len(t, clock.active(), 1)

	// A callback from a cancelled generation that races the re-arm does nothing.
	old[0].fn()
	assert.Empty(t, log.triggers)
	assert.Len(t, clock.active(), 1)
}

func TestSchedulerStopIsSafeAfterFire(t *testing.T) {
	s, clock, log := newTestScheduler(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	s.Arm(models.ScheduleConfig{Type: models.ScheduleInterval, IntervalMinutes: 5})
	clock.fire(clock.active()[0])

	s.Stop()
	s.Stop()
	assert.Empty(t, clock.active())
	assert.Len(t, log.triggers, 1)
	assert.Empty(t, s.NextRuns())
}

func TestClockSchedule(t *testing.T) {
	monday := time.Date(2024, 1, 15, 2, 30, 0, 0, time.UTC)
	next := func(hour, minute int, weekday *time.Weekday) time.Time {
		spec, err := clockSchedule(hour, minute, weekday)
		require.NoError(t, err)
		return spec.Next(monday)
	}
	assert.WithinDuration(t, monday.AddDate(0, 0, 1), next(2, 30, nil), 0, "strictly after now")

	sunday := time.Sunday
	assert.WithinDuration(t, time.Date(2024, 1, 21, 2, 30, 0, 0, time.UTC), next(2, 30, &sunday), 0)

	mondayDay := time.Monday
	assert.WithinDuration(t, time.Date(2024, 1, 22, 2, 30, 0, 0, time.UTC), next(2, 30, &mondayDay), 0)
	assert.WithinDuration(t, time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC), next(3, 0, &mondayDay), 0)

	_, err := clockSchedule(25, 99, nil)
	assert.Error(t, err)
}

func TestClockScheduleFollowsLocationAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	require.NoError(t, err)
	// Israel moves to summer time on Friday 2024-03-29 at 02:00.
	before := time.Date(2024, 3, 27, 12, 0, 0, 0, loc)
	spec, err := clockSchedule(6, 0, nil)
	require.NoError(t, err)

	first := spec.Next(before)
	second := spec.Next(first)
	assert.WithinDuration(t, time.Date(2024, 3, 28, 6, 0, 0, 0, loc), first, 0)
	assert.WithinDuration(t, time.Date(2024, 3, 29, 6, 0, 0, 0, loc), second, 0)
	assert.Equal(t, 23*time.Hour, second.Sub(first), "wall-clock time is kept across the transition")
}
