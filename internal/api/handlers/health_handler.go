package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rangeos/engine/internal/api/types"
)

// Check is one readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type HealthHandler struct {
	checks  []Check
	timeout time.Duration
}

func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: types.HealthStatus{Status: "ok"}})
}

// Readiness runs every check and answers 503 when any fails.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := types.HealthStatus{Status: "ready", Checks: map[string]string{}}
	code := http.StatusOK
	for _, c := range h.checks {
		if err := c.Fn(ctx); err != nil {
			status.Checks[c.Name] = err.Error()
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[c.Name] = "ok"
	}
	writeJSON(w, code, types.APIResponse{Success: code == http.StatusOK, Data: status})
}
