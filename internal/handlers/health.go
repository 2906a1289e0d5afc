package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/voyageur/pkg/http"
)

// HealthChecker is a dependency whose liveness is reported by /health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health reports healthy when every named checker answers within two
// seconds
func Health(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "healthy", Checks: map[string]string{}}
		status := http.StatusOK
		for name, c := range checks {
			if err := c.HealthCheck(ctx); err != nil {
				resp.Checks[name] = "down"
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "up"
		}
		pkghttp.WriteJSON(w, status, resp)
	}
}
