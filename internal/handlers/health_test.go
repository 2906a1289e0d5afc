package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BradenHooton/voyageur/internal/handlers"
	"github.com/stretchr/testify/assert"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func stringsReader(s string) *strings.Reader { return strings.NewReader(s) }

func TestHealth(t *testing.T) {
	up := checkFunc(func(context.Context) error { return nil })
	down := checkFunc(func(context.Context) error { return errors.New("connection refused") })

	w := httptest.NewRecorder()
	handlers.Health(map[string]handlers.HealthChecker{"database": up})(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp handlers.HealthResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "up", resp.Checks["database"])

	w = httptest.NewRecorder()
	handlers.Health(map[string]handlers.HealthChecker{"database": up, "redis": down})(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	handlers.AssertJSONResponse(t, w, http.StatusServiceUnavailable, &resp)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "down", resp.Checks["redis"])
}

func TestHealth_NoChecks(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.Health(nil)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}
