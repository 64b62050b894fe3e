package handler

import (
	"context"
	"net/http"

	"github.com/straye-as/order-sync/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// RunLister lists recorded sync runs, newest first
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.SyncRun, error)
}

// RunsHandler exposes the sync run history
type RunsHandler struct {
	history RunLister
	cycle   LastRunner
	logger  *zap.Logger
}

// NewRunsHandler creates a RunsHandler. history is nil when run history is disabled.
func NewRunsHandler(history RunLister, cycle LastRunner, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{history: history, cycle: cycle, logger: logger}
}

// List returns recorded runs
// GET /runs?limit=20
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondWithError(w, http.StatusNotFound, "Run history is disabled")
		return
	}

	limit, ok := parseLimit(r, defaultRunsLimit, maxRunsLimit)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	runs, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list sync runs", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to list sync runs")
		return
	}
	if runs == nil {
		runs = []domain.SyncRun{}
	}

	respondJSON(w, http.StatusOK, domain.SyncRunListResponse{Data: runs, Count: len(runs)})
}

// Latest returns the most recent cycle seen by this process
// GET /runs/latest
func (h *RunsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	var run *domain.SyncRun
	if h.cycle != nil {
		run = h.cycle.LastRun()
	}
	if run == nil {
		respondWithError(w, http.StatusNotFound, "No cycle has finished yet")
		return
	}
	respondJSON(w, http.StatusOK, run)
}
