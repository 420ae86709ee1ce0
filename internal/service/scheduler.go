package service

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

// Timer is a cancellable pending call. Stop must be safe on fired or stopped timers.
type Timer interface {
	Stop() bool
}

// TimerFactory schedules fn after d. Fire times come from cron schedules;
// the factory only sleeps, so tests can drive it with a fake clock.
type TimerFactory func(d time.Duration, fn func()) Timer

func realTimerFactory(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SchedulerConfig configures a RefreshScheduler.
type SchedulerConfig struct {
	InstanceID string
	// PollInterval is the base polling cadence kept alongside daily and
	// weekly clock triggers.
	PollInterval time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
	AfterFunc    TimerFactory
}

type armedTimer struct {
	timer Timer
	at    time.Time
	kind  models.RefreshTrigger
}

// RefreshScheduler arms the timers that request refreshes for one instance.
type RefreshScheduler struct {
	instanceID   string
	pollInterval time.Duration
	request      func(models.RefreshTrigger)
	logger       *zap.Logger
	now          func() time.Time
	afterFunc    TimerFactory

	mu         sync.Mutex
	generation uint64
	schedule   models.ScheduleConfig
	armed      map[string]*armedTimer
	stopped    bool
}

// NewRefreshScheduler builds a scheduler that calls request on every firing.
func NewRefreshScheduler(cfg SchedulerConfig, request func(models.RefreshTrigger)) *RefreshScheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = realTimerFactory
	}
	return &RefreshScheduler{
		instanceID:   cfg.InstanceID,
		pollInterval: cfg.PollInterval,
		request:      request,
		logger:       cfg.Logger.With(zap.String("instance", cfg.InstanceID)),
		now:          cfg.Now,
		afterFunc:    cfg.AfterFunc,
		armed:        make(map[string]*armedTimer),
	}
}

// Arm cancels every previously armed timer and arms the given schedule.
func (s *RefreshScheduler) Arm(schedule models.ScheduleConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.stopped = false
	s.generation++
	s.schedule = schedule
	gen := s.generation

	switch schedule.Type {
	case models.ScheduleInterval:
		period := time.Duration(schedule.IntervalMinutes) * time.Minute
		s.armPeriodicLocked(gen, "interval", period, models.TriggerPoll)
	case models.ScheduleWeekly:
		for _, day := range schedule.Days {
			weekday, ok := models.ScheduleDayToWeekday(day)
			if !ok {
				continue
			}
			s.armCronLocked(gen, "weekly:"+weekday.String(), schedule.Hour, schedule.Minute, &weekday)
		}
		s.armPeriodicLocked(gen, "poll", s.pollInterval, models.TriggerPoll)
	default:
		s.armCronLocked(gen, "daily", schedule.Hour, schedule.Minute, nil)
		s.armPeriodicLocked(gen, "poll", s.pollInterval, models.TriggerPoll)
	}

	s.logger.Info("refresh schedule armed",
		zap.String("type", string(schedule.Type)),
		zap.String("time", schedule.Time),
		zap.Ints("days", schedule.Days),
		zap.Int("interval_minutes", schedule.IntervalMinutes),
		zap.Int("timers", len(s.armed)))
}

// Stop cancels every armed timer. It is safe to call repeatedly.
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.generation++
	s.stopped = true
}

// Schedule returns the schedule currently armed.
func (s *RefreshScheduler) Schedule() models.ScheduleConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// NextRuns returns the pending fire times, earliest first.
func (s *RefreshScheduler) NextRuns() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, 0, len(s.armed))
	for _, t := range s.armed {
		out = append(out, t.at)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (s *RefreshScheduler) cancelLocked() {
	for name, t := range s.armed {
		t.timer.Stop()
		delete(s.armed, name)
	}
}

func (s *RefreshScheduler) armCronLocked(gen uint64, name string, hour, minute int, weekday *time.Weekday) {
	spec, err := clockSchedule(hour, minute, weekday)
	if err != nil {
		s.logger.Warn("skipping invalid clock trigger", zap.String("timer", name), zap.Error(err))
		return
	}
	s.armClockLocked(gen, name, spec)
}

func (s *RefreshScheduler) armClockLocked(gen uint64, name string, spec cron.Schedule) {
	now := s.now()
	at := spec.Next(now)
	timer := s.afterFunc(at.Sub(now), func() {
		if !s.fire(gen, name, models.TriggerSchedule) {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation == gen {
			s.armClockLocked(gen, name, spec)
		}
	})
	s.armed[name] = &armedTimer{timer: timer, at: at, kind: models.TriggerSchedule}
}

func (s *RefreshScheduler) armPeriodicLocked(gen uint64, name string, period time.Duration, trigger models.RefreshTrigger) {
	at := s.now().Add(period)
	timer := s.afterFunc(period, func() {
		if !s.fire(gen, name, trigger) {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation == gen {
			s.armPeriodicLocked(gen, name, period, trigger)
		}
	})
	s.armed[name] = &armedTimer{timer: timer, at: at, kind: trigger}
}

// fire requests a refresh unless the timer belongs to a cancelled generation.
func (s *RefreshScheduler) fire(gen uint64, name string, trigger models.RefreshTrigger) bool {
	s.mu.Lock()
	current := s.generation == gen && !s.stopped
	s.mu.Unlock()
	if !current {
		return false
	}
	s.logger.Debug("refresh timer fired", zap.String("timer", name))
	s.request(trigger)
	return true
}

// clockSchedule returns the cron schedule firing at hour:minute, restricted
// to weekday when set. Fire times follow the location of the time passed to Next.
func clockSchedule(hour, minute int, weekday *time.Weekday) (cron.Schedule, error) {
	dow := "*"
	if weekday != nil {
		dow = strconv.Itoa(int(*weekday))
	}
	return cron.ParseStandard(fmt.Sprintf("%d %d * * %s", minute, hour, dow))
}
