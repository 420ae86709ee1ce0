package mashov

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Session owns the pooled HTTP client and the header set shared by every
// request of one Client.
type Session struct {
	timeout        time.Duration
	maxConnections int
	grace          time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	limiter        *rate.Limiter
	logger         *zap.Logger

	mu        sync.RWMutex
	client    *http.Client
	transport *http.Transport
	headers   http.Header
	closed    context.Context
	cancel    context.CancelFunc
}

func newSession(cfg Config) *Session {
	return &Session{
		timeout:        cfg.RequestTimeout,
		maxConnections: cfg.MaxConnections,
		grace:          cfg.CloseGrace,
		sleep:          cfg.Sleep,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:         cfg.Logger,
	}
}

// Open allocates the HTTP client. It is a no-op when a live client exists.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return newError(KindNetwork, 0, "create cookie jar", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = s.maxConnections
	transport.MaxIdleConns = s.maxConnections
	transport.MaxIdleConnsPerHost = s.maxConnections
	transport.ResponseHeaderTimeout = s.timeout

	s.transport = transport
	s.client = &http.Client{Transport: transport, Timeout: s.timeout, Jar: jar}
	s.headers = http.Header{"Accept": []string{"application/json"}}
	s.closed, s.cancel = context.WithCancel(context.Background())
	return nil
}

// Close releases the HTTP client and waits for the grace period so the
// transport can drop its sockets. Calling it twice, or before Open, is safe.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.client == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.transport.CloseIdleConnections()
	s.client = nil
	s.transport = nil
	s.headers = nil
	s.mu.Unlock()

	if err := s.sleep(context.Background(), s.grace); err != nil {
		s.logger.Debug("session close grace interrupted", zap.Error(err))
	}
	return nil
}

// IsOpen reports whether a live client exists.
func (s *Session) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// Headers returns a copy of the current request headers.
func (s *Session) Headers() http.Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headers.Clone()
}

// setAuth replaces the authorization and CSRF headers in place. Empty values
// remove the header.
func (s *Session) setAuth(authorization, csrf string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headers == nil {
		return
	}
	if authorization != "" {
		s.headers.Set("Authorization", authorization)
	} else {
		s.headers.Del("Authorization")
	}
	if csrf != "" {
		s.headers.Set("X-Csrf-Token", csrf)
	} else {
		s.headers.Del("X-Csrf-Token")
	}
}

// do sends req with the session headers. The request is aborted when the
// session closes.
func (s *Session) do(req *http.Request) (*http.Response, context.CancelFunc, error) {
	s.mu.RLock()
	client := s.client
	closed := s.closed
	for key, values := range s.headers {
		if req.Header.Get(key) == "" {
			req.Header[key] = append([]string(nil), values...)
		}
	}
	s.mu.RUnlock()
	if client == nil {
		return nil, nil, newError(KindNetwork, 0, "request on closed session", ErrSessionClosed)
	}

	if err := s.limiter.Wait(req.Context()); err != nil {
		return nil, nil, classifyTransportError(err)
	}

	ctx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(closed, cancel)
	release := func() {
		stop()
		cancel()
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		release()
		return nil, nil, classifyTransportError(err)
	}
	return resp, release, nil
}
