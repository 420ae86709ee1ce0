package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(mw gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/instances", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListedOriginGetsCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/instances", nil)
	req.Header.Set("Origin", "https://Dashboard.example/")

	w := serve(New([]string{"https://dashboard.example"}), req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://Dashboard.example/", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
}

func TestUnlistedOriginIsNotEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/instances", nil)
	req.Header.Set("Origin", "https://evil.example")

	w := serve(New([]string{"https://dashboard.example"}), req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOpenModeUsesWildcardWithoutCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/instances", nil)
	req.Header.Set("Origin", "https://any.example")

	w := serve(New(nil), req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestPreflightShortCircuits(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/instances", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)

	w := serve(New([]string{"https://dashboard.example"}), req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}
