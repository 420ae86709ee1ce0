package mashov

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const danaLogin = `{
	"accessToken": {
		"token": "tok-1",
		"children": [
			{"childGuid": "S1", "privateName": "Dana", "familyName": "Levi", "classCode": "ט", "classNum": 3, "groups": [101, 102]}
		]
	},
	"credential": {"userId": "parent-1"}
}`

type route func(w http.ResponseWriter, r *http.Request, call int)

// mockAPI is a scripted upstream API keyed by request path.
type mockAPI struct {
	mu         sync.Mutex
	routes     map[string]route
	calls      map[string]int
	loginBody  []byte
	loginHdr   http.Header
	loginCount int
	server     *httptest.Server
}

func newMockAPI(t *testing.T) *mockAPI {
	t.Helper()
	api := &mockAPI{routes: map[string]route{}, calls: map[string]int{}}
	api.routes["/api/login"] = func(w http.ResponseWriter, r *http.Request, call int) {
		w.Header().Set("X-Csrf-Token", "csrf-1")
		writeJSON(w, http.StatusOK, danaLogin)
	}
	api.server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.server.Close)
	return api
}

func (m *mockAPI) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.calls[r.URL.Path]++
	call := m.calls[r.URL.Path]
	if r.URL.Path == "/api/login" {
		m.loginCount++
		m.loginBody, _ = io.ReadAll(r.Body)
		m.loginHdr = r.Header.Clone()
	}
	handler, ok := m.routes[r.URL.Path]
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	handler(w, r, call)
}

func (m *mockAPI) handle(path string, fn route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[path] = fn
}

func (m *mockAPI) respond(path string, status int, body string) {
	m.handle(path, func(w http.ResponseWriter, _ *http.Request, _ int) {
		writeJSON(w, status, body)
	})
}

func (m *mockAPI) logins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginCount
}

func (m *mockAPI) lastLogin() ([]byte, http.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginBody, m.loginHdr
}

func (m *mockAPI) callsTo(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return nil
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func testNow() time.Time {
	return time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)
}

func newTestClient(t *testing.T, api *mockAPI, school string, sleeper *sleepRecorder) *Client {
	t.Helper()
	if sleeper == nil {
		sleeper = &sleepRecorder{}
	}
	client, err := New(Credentials{School: school, Username: "parent", Password: "secret"}, Config{
		BaseURL:             api.server.URL + "/api/",
		HomeworkDaysBack:    7,
		HomeworkDaysForward: 21,
		RateLimit:           1000,
		Now:                 testNow,
		Sleep:               sleeper.sleep,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}
