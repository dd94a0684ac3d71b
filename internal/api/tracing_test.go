package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/api"
	"github.com/IdrisKulubi/HIH-sub002/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracing(t *testing.T) {
	assert.Error(t, api.InitTracing(config.TracingConfig{Enabled: true}, "test"))

	// 采样率越界时回落为全采样, 导出器创建时不连接收集端
	cfg := config.TracingConfig{
		Enabled:        true,
		JaegerEndpoint: "http://127.0.0.1:14268/api/traces",
		SampleRatio:    7,
	}
	require.NoError(t, api.InitTracing(cfg, "test"))

	r := gin.New()
	r.Use(api.TracingMiddleware("bire-review"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)).Code)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = api.ShutdownTracing(ctx)
}
