package mashov

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

// AuthState tracks the authenticator state machine.
type AuthState string

const (
	StateUnauthenticated AuthState = "unauthenticated"
	StateAuthenticating  AuthState = "authenticating"
	StateAuthenticated   AuthState = "authenticated"
)

const maxBodyBytes = 8 << 20

// Client talks to the Mashov web API on behalf of one parent account.
type Client struct {
	cfg       Config
	creds     Credentials
	endpoints endpoints
	session   *Session
	breaker   *breaker
	logger    *zap.Logger

	mu       sync.RWMutex
	state    AuthState
	schoolID int
	year     int
	students []models.Student
}

// New builds a client. The session is opened lazily by Authenticate.
func New(creds Credentials, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	eps, err := newEndpoints(cfg.BaseURL)
	if err != nil {
		return nil, newError(KindMalformed, 0, "invalid base url", err)
	}
	year := creds.Year
	if year <= 0 {
		year = DefaultYear(cfg.Now())
	}
	return &Client{
		cfg:       cfg,
		creds:     creds,
		endpoints: eps,
		session:   newSession(cfg),
		breaker:   newBreaker(cfg.BreakerName, cfg.Logger, cfg.Recorder),
		logger:    cfg.Logger,
		state:     StateUnauthenticated,
		year:      year,
	}, nil
}

// Open opens the underlying session.
func (c *Client) Open() error {
	return c.session.Open()
}

// Close closes the session. It is safe to call repeatedly.
func (c *Client) Close() error {
	err := c.session.Close()
	c.setState(StateUnauthenticated)
	return err
}

// Session exposes the session for inspection.
func (c *Client) Session() *Session {
	return c.session
}

// State returns the current authentication state.
func (c *Client) State() AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(state AuthState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// SchoolID returns the resolved semel, or zero before authentication.
func (c *Client) SchoolID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schoolID
}

// Year returns the academic year used for requests.
func (c *Client) Year() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.year
}

// Students returns the students linked to the account at the last login.
func (c *Client) Students() []models.Student {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Student(nil), c.students...)
}

// Authenticate opens the session, resolves the school and logs in.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.Open(); err != nil {
		return err
	}
	if c.SchoolID() == 0 {
		res, err := c.ResolveSchool(ctx, c.creds.School)
		if err != nil {
			return err
		}
		if res.Ambiguous {
			return &AmbiguousSchoolError{Query: c.creds.School, Candidates: res.Candidates}
		}
		c.mu.Lock()
		c.schoolID = res.School.ID
		c.mu.Unlock()
	}
	_, err := c.Login(ctx)
	return err
}

// get performs a GET request and returns the status and body. Transport
// failures are returned as *ClientError.
func (c *Client) get(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return 0, nil, newError(KindMalformed, 0, "build request", err)
	}
	resp, release, err := c.session.do(req)
	if err != nil {
		return 0, nil, err
	}
	defer release()
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, classifyTransportError(err)
	}
	return resp.StatusCode, body, nil
}

func classifyTransportError(err error) *ClientError {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, 0, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, 0, "request timed out", err)
	}
	return newError(KindNetwork, 0, "network error", err)
}

// truncate shortens upstream bodies for error messages.
func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

// AmbiguousSchoolError is returned by Authenticate when a school name matches
// more than one school and no exact match exists.
type AmbiguousSchoolError struct {
	Query      string
	Candidates []School
}

func (e *AmbiguousSchoolError) Error() string {
	return fmt.Sprintf("mashov: %d schools match %q; use the numeric school code", len(e.Candidates), e.Query)
}
