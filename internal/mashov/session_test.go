package mashov

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCloseIsIdempotent(t *testing.T) {
	sleeper := &sleepRecorder{}
	session := newSession(Config{Sleep: sleeper.sleep}.withDefaults())

	require.NoError(t, session.Close(), "close before open")
	assert.Equal(t, 0, sleeper.count())

	require.NoError(t, session.Open())
	require.NoError(t, session.Open(), "second open is a no-op")
	assert.True(t, session.IsOpen())

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	assert.False(t, session.IsOpen())
	assert.Equal(t, []time.Duration{DefaultCloseGrace}, sleeper.calls)
}

func TestSessionOpenKeepsClient(t *testing.T) {
	session := newSession(Config{}.withDefaults())
	require.NoError(t, session.Open())
	first := session.client
	require.NoError(t, session.Open())
	assert.Same(t, first, session.client)
	assert.Equal(t, DefaultMaxConnections, session.transport.MaxConnsPerHost)
	assert.Equal(t, DefaultRequestTimeout, session.client.Timeout)
}

func TestSessionSetAuthReplacesHeaders(t *testing.T) {
	session := newSession(Config{}.withDefaults())
	require.NoError(t, session.Open())

	session.setAuth("Bearer a", "c1")
	headers := session.Headers()
	assert.Equal(t, "Bearer a", headers.Get("Authorization"))
	assert.Equal(t, "c1", headers.Get("x-csrf-token"))
	assert.Equal(t, "application/json", headers.Get("Accept"))

	session.setAuth("", "c2")
	headers = session.Headers()
	assert.Empty(t, headers.Get("Authorization"))
	assert.Equal(t, "c2", headers.Get("X-CSRF-Token"))
}

func TestSessionRequestAfterClose(t *testing.T) {
	session := newSession(Config{CloseGrace: -1}.withDefaults())
	require.NoError(t, session.Open())
	require.NoError(t, session.Close())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://127.0.0.1/", http.NoBody)
	require.NoError(t, err)
	_, _, err = session.do(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionClosed))
}
