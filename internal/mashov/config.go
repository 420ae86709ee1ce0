package mashov

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Defaults applied by New when a Config field is zero.
const (
	DefaultBaseURL             = "https://web.mashov.info/api/"
	DefaultRequestTimeout      = 30 * time.Second
	DefaultMaxConnections      = 10
	DefaultLoginRetries        = 3
	DefaultLoginRetryDelay     = 2 * time.Second
	DefaultCloseGrace          = 250 * time.Millisecond
	DefaultRateLimit           = 20
	DefaultHomeworkDaysBack    = 7
	DefaultHomeworkDaysForward = 21
)

// Credentials identify the parent account. They are never mutated by the client.
type Credentials struct {
	// School is either the numeric semel or a free-text school name.
	School   string
	Year     int
	Username string
	Password string
}

// Recorder receives client telemetry. Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveUpstreamRequest(kind string, outcome string, duration time.Duration)
	IncLoginAttempt(outcome string)
	IncReauthentication()
	SetBreakerState(name string, state float64)
}

// Config tunes the client.
type Config struct {
	BaseURL             string
	RequestTimeout      time.Duration
	MaxConnections      int
	LoginRetries        int
	LoginRetryDelay     time.Duration
	CloseGrace          time.Duration
	RateLimit           float64
	RateBurst           int
	HomeworkDaysBack    int
	HomeworkDaysForward int
	// BreakerName labels the circuit breaker in logs and metrics.
	BreakerName string

	Logger   *zap.Logger
	Recorder Recorder
	Now      func() time.Time
	// Sleep waits between login attempts; it must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.LoginRetries <= 0 {
		c.LoginRetries = DefaultLoginRetries
	}
	if c.LoginRetryDelay < 0 {
		c.LoginRetryDelay = 0
	} else if c.LoginRetryDelay == 0 {
		c.LoginRetryDelay = DefaultLoginRetryDelay
	}
	if c.CloseGrace < 0 {
		c.CloseGrace = 0
	} else if c.CloseGrace == 0 {
		c.CloseGrace = DefaultCloseGrace
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = int(c.RateLimit)
		if c.RateBurst < 1 {
			c.RateBurst = 1
		}
	}
	if c.HomeworkDaysBack < 0 {
		c.HomeworkDaysBack = DefaultHomeworkDaysBack
	}
	if c.HomeworkDaysForward <= 0 {
		c.HomeworkDaysForward = DefaultHomeworkDaysForward
	}
	if c.BreakerName == "" {
		c.BreakerName = "mashov-api"
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Recorder == nil {
		c.Recorder = nopRecorder{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopRecorder struct{}

func (nopRecorder) ObserveUpstreamRequest(string, string, time.Duration) {}
func (nopRecorder) IncLoginAttempt(string)                             {}
func (nopRecorder) IncReauthentication()                               {}
func (nopRecorder) SetBreakerState(string, float64)                    {}
