package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/straye-as/order-sync/internal/domain"
	"github.com/straye-as/order-sync/internal/jobs"
	"go.uber.org/zap"
)

// checkTimeout bounds each readiness dependency check
const checkTimeout = 5 * time.Second

// Check probes one dependency
type Check func(ctx context.Context) error

// SyncStatus reports the state of the sync loop
type SyncStatus interface {
	State() jobs.State
	Cycles() int64
}

// LastRunner returns the most recent finished cycle
type LastRunner interface {
	LastRun() *domain.SyncRun
}

// HealthHandler serves the liveness and readiness probes
type HealthHandler struct {
	checks map[string]Check
	driver SyncStatus
	cycle  LastRunner
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler. driver and cycle may be nil.
func NewHealthHandler(checks map[string]Check, driver SyncStatus, cycle LastRunner, logger *zap.Logger) *HealthHandler {
	if checks == nil {
		checks = map[string]Check{}
	}
	return &HealthHandler{checks: checks, driver: driver, cycle: cycle, logger: logger}
}

// Live reports that the process is up
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Ready runs every dependency check and reports the sync loop state.
// A failed check makes the response 503; cycle failures do not.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := domain.HealthResponse{
		Status: domain.HealthStatusHealthy,
		Checks: make(map[string]domain.CheckResult, len(names)),
	}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := h.checks[name](ctx)
		cancel()

		if err != nil {
			h.logger.Error("Health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = domain.CheckResult{Status: domain.HealthStatusUnhealthy, Error: err.Error()}
			resp.Status = domain.HealthStatusUnhealthy
			continue
		}
		resp.Checks[name] = domain.CheckResult{Status: domain.HealthStatusHealthy}
	}

	if h.driver != nil {
		resp.Sync = &domain.SyncStatusDTO{
			State:  h.driver.State().String(),
			Cycles: h.driver.Cycles(),
		}
		if h.cycle != nil {
			resp.Sync.LastRun = h.cycle.LastRun()
		}
	}

	status := http.StatusOK
	if resp.Status != domain.HealthStatusHealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}
