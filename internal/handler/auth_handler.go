package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/noah-isme/mashov-bridge/internal/models"
	appErrors "github.com/noah-isme/mashov-bridge/pkg/errors"
	"github.com/noah-isme/mashov-bridge/pkg/response"
)

const (
	loginBurst      = 5
	loginRefill     = 12 * time.Second
	loginIdleExpiry = 15 * time.Minute
)

type authenticator interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
}

type loginAttempts struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// AuthHandler serves operator login. Attempts are throttled per client IP.
type AuthHandler struct {
	service authenticator

	mu       sync.Mutex
	attempts map[string]*loginAttempts
	now      func() time.Time
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authenticator) *AuthHandler {
	return &AuthHandler{service: svc, attempts: make(map[string]*loginAttempts), now: time.Now}
}

// Login godoc
// @Summary Operator login
// @Description Exchanges the operator credentials for an access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	if !h.allow(c.ClientIP()) {
		c.Header("Retry-After", "12")
		response.Error(c, appErrors.ErrTooManyRequests)
		return
	}

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

func (h *AuthHandler) allow(ip string) bool {
	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, a := range h.attempts {
		if now.Sub(a.lastSeen) > loginIdleExpiry {
			delete(h.attempts, key)
		}
	}
	a, ok := h.attempts[ip]
	if !ok {
		a = &loginAttempts{limiter: rate.NewLimiter(rate.Every(loginRefill), loginBurst)}
		h.attempts[ip] = a
	}
	a.lastSeen = now
	return a.limiter.AllowN(now, 1)
}
