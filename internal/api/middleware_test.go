package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/IdrisKulubi/HIH-sub002/internal/api"
	"github.com/IdrisKulubi/HIH-sub002/internal/config"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/utils"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(api.RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, service.GetRequestID(c.Request.Context()))
	})

	t.Run("generated", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
		id := w.Header().Get(api.HeaderRequestID)
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("reused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(api.HeaderRequestID, "req-123")
		w := serve(r, req)
		assert.Equal(t, "req-123", w.Header().Get(api.HeaderRequestID))
		assert.Equal(t, "req-123", w.Body.String())
	})

	t.Run("too long", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(api.HeaderRequestID, strings.Repeat("x", 200))
		w := serve(r, req)
		assert.Len(t, w.Header().Get(api.HeaderRequestID), 36)
	})
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(api.CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"https://portal.bire.org"}}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://portal.bire.org")
	w := serve(r, req)
	assert.Equal(t, "https://portal.bire.org", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://portal.bire.org")
	w = serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	r := gin.New()
	r.Use(api.CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"*"}}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	w := serve(r, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(api.SecurityHeadersMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = serve(r, req)
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=")
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(api.RateLimitMiddleware(0.001, 2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// 其他客户端有独立的令牌桶
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

// TestErrorHandlerMiddleware 各类错误的状态码与错误码
func TestErrorHandlerMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"authorization", workflow.Unauthorized("NOT_OWNER", "nope"), http.StatusForbidden, "NOT_OWNER"},
		{"not found", workflow.NotFound("APPLICATION_NOT_FOUND", "missing"), http.StatusNotFound, "APPLICATION_NOT_FOUND"},
		{"validation", workflow.Invalid("SCORE_OUT_OF_RANGE", "bad score"), http.StatusBadRequest, "SCORE_OUT_OF_RANGE"},
		{"conflict", workflow.Conflict("INVALID_TRANSITION", "bad move"), http.StatusConflict, "INVALID_TRANSITION"},
		{"input", utils.ErrInvalidIDFormat, http.StatusBadRequest, "INVALID_ID_FORMAT"},
		{"internal", errors.New("connection reset by peer"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(api.ErrorHandlerMiddleware())
			r.GET("/fail", func(c *gin.Context) { _ = c.Error(tc.err) })

			w := serve(r, httptest.NewRequest(http.MethodGet, "/fail", nil))
			assert.Equal(t, tc.status, w.Code)

			var resp api.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.reason, resp.Reason)
			assert.NotContains(t, resp.Message, "connection reset")
		})
	}
}

func TestErrorHandlerMiddleware_AlreadyWritten(t *testing.T) {
	r := gin.New()
	r.Use(api.ErrorHandlerMiddleware())
	r.GET("/partial", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		_ = c.Error(errors.New("write failed"))
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/partial", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial", w.Body.String())
}
