package mashov

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// errUpstreamServer marks 5xx responses so the breaker counts them as failures.
var errUpstreamServer = errors.New("upstream server error")

type upstreamResponse struct {
	status int
	body   []byte
}

// minHalfOpenRequests is the half-open budget before the student list is known.
const minHalfOpenRequests = 3

// breaker wraps data requests. Logins bypass it because they carry their own
// retry policy. In half-open state it admits up to halfOpen requests and
// closes after as many consecutive successes, so the budget is sized to
// one refresh cycle once login reports the students.
type breaker struct {
	name     string
	logger   *zap.Logger
	recorder Recorder

	mu       sync.Mutex
	halfOpen uint32
	cb       atomic.Pointer[gobreaker.CircuitBreaker[upstreamResponse]]
}

func newBreaker(name string, logger *zap.Logger, recorder Recorder) *breaker {
	recorder.SetBreakerState(name, 0)
	b := &breaker{name: name, logger: logger, recorder: recorder}
	b.build(minHalfOpenRequests)
	return b
}

func (b *breaker) build(halfOpen uint32) {
	b.halfOpen = halfOpen
	b.cb.Store(gobreaker.NewCircuitBreaker[upstreamResponse](gobreaker.Settings{
		Name:        b.name,
		MaxRequests: halfOpen,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				b.logger.Warn("opening upstream circuit",
					zap.Uint32("failures", counts.TotalFailures),
					zap.Float64("failure_ratio", ratio))
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Info("upstream circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			b.recorder.SetBreakerState(name, breakerStateValue(to))
		},
	}))
}

// fitCycle widens the half-open budget to the request count of one cycle.
// Only a closed breaker is rebuilt, so an open circuit keeps its cool-down.
func (b *breaker) fitCycle(requests int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if requests <= int(b.halfOpen) || b.state() != gobreaker.StateClosed {
		return
	}
	b.build(uint32(requests))
}

func (b *breaker) execute(fn func() (upstreamResponse, error)) (upstreamResponse, error) {
	return b.cb.Load().Execute(fn)
}

func (b *breaker) state() gobreaker.State {
	return b.cb.Load().State()
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
