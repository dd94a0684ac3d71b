package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupRoutes_Public(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = env.do(t, nil, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestSetupRoutes_RequiresIdentity(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, nil, http.MethodGet, "/api/v1/applications", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bogus := identity{"someone", "superuser"}
	w = env.do(t, &bogus, http.MethodGet, "/api/v1/applications", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSetupRoutes_NoRoute(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, &admin, http.MethodGet, "/api/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ROUTE_NOT_FOUND", failure(t, w).Reason)
}
