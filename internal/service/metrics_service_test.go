package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveRefresh("home", models.TriggerSchedule, models.RefreshSucceeded, time.Second)
	m.ObserveRefresh("home", models.TriggerManual, models.RefreshFailed, time.Second)
	m.ObserveUpstreamRequest("homework", "ok", 20*time.Millisecond)
	m.IncReauthentication()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/instances", http.StatusOK, 10*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/instances", http.StatusOK, 30*time.Millisecond)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.RefreshesTotal)
	assert.EqualValues(t, 1, snap.RefreshFailures)
	assert.EqualValues(t, 1, snap.UpstreamRequests)
	assert.EqualValues(t, 1, snap.Reauthentications)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 1e-9)
	assert.EqualValues(t, 2, snap.RequestsTotal)
	assert.InDelta(t, 20.0, snap.AverageRequestDurationMs, 1e-9)
}

func TestMetricsForgetInstance(t *testing.T) {
	m := NewMetricsService()
	m.SetInstanceAvailable("home", true)
	m.SetInstanceAvailable("other", false)
	m.SetPublishedItems("home", "mashov_dana_levi_homework", 12)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.instanceUp.WithLabelValues("home")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.publishedItems.WithLabelValues("home", "mashov_dana_levi_homework")))

	m.ForgetInstance("home")
	assert.Equal(t, 1, testutil.CollectAndCount(m.instanceUp))
	assert.Equal(t, 0, testutil.CollectAndCount(m.publishedItems))
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsService()
	m.IncLoginAttempt("success")
	m.SetBreakerState("home", 2)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "login_attempts_total")
	assert.Contains(t, w.Body.String(), "circuit_breaker_state")
}

func TestMetricsNilSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveRefresh("home", models.TriggerPoll, models.RefreshSucceeded, time.Second)
	m.ForgetInstance("home")
	assert.Zero(t, m.Snapshot().RefreshesTotal)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
