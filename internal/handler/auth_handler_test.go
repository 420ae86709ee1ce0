package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/mashov-bridge/internal/models"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
)

type rejectingAuth struct{ calls int }

func (a *rejectingAuth) Login(context.Context, models.LoginRequest) (*models.LoginResponse, error) {
	a.calls++
	return nil, appErrors.ErrInvalidCredentials
}

func TestLoginIsThrottledPerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := &rejectingAuth{}
	h := NewAuthHandler(auth)
	clock := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return clock }

	r := gin.New()
	r.POST("/login", h.Login)
	login := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"a","password":"b"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < loginBurst; i++ {
		assert.Equal(t, http.StatusUnauthorized, login("10.0.0.1:4000").Code)
	}
	w := login("10.0.0.1:4000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "12", w.Header().Get("Retry-After"))
	assert.Equal(t, loginBurst, auth.calls, "throttled attempts never reach the service")

	assert.Equal(t, http.StatusUnauthorized, login("10.0.0.2:4000").Code, "other clients keep their budget")

	clock = clock.Add(loginRefill)
	assert.Equal(t, http.StatusUnauthorized, login("10.0.0.1:4000").Code)

	clock = clock.Add(loginIdleExpiry + time.Second)
	login("10.0.0.3:4000")
	assert.Len(t, h.attempts, 1, "idle clients are forgotten")
}
