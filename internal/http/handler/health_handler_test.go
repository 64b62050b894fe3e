package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/straye-as/order-sync/internal/domain"
	"github.com/straye-as/order-sync/internal/http/handler"
	"github.com/straye-as/order-sync/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDriver struct {
	state  jobs.State
	cycles int64
}

func (d fakeDriver) State() jobs.State { return d.state }
func (d fakeDriver) Cycles() int64     { return d.cycles }

type fakeCycle struct {
	run *domain.SyncRun
}

func (c fakeCycle) LastRun() *domain.SyncRun { return c.run }

func passing(context.Context) error { return nil }

func failing(msg string) handler.Check {
	return func(context.Context) error { return errors.New(msg) }
}

func TestHealthHandler_Live(t *testing.T) {
	h := handler.NewHealthHandler(nil, nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name           string
		checks         map[string]handler.Check
		expectedCode   int
		expectedStatus string
		expectedChecks map[string]domain.CheckResult
	}{
		{
			name:           "no checks",
			checks:         nil,
			expectedCode:   http.StatusOK,
			expectedStatus: domain.HealthStatusHealthy,
			expectedChecks: map[string]domain.CheckResult{},
		},
		{
			name:           "all checks pass",
			checks:         map[string]handler.Check{"warehouse": passing, "database": passing},
			expectedCode:   http.StatusOK,
			expectedStatus: domain.HealthStatusHealthy,
			expectedChecks: map[string]domain.CheckResult{
				"warehouse": {Status: domain.HealthStatusHealthy},
				"database":  {Status: domain.HealthStatusHealthy},
			},
		},
		{
			name:           "one failing check makes the service unavailable",
			checks:         map[string]handler.Check{"warehouse": passing, "redis": failing("connection refused")},
			expectedCode:   http.StatusServiceUnavailable,
			expectedStatus: domain.HealthStatusUnhealthy,
			expectedChecks: map[string]domain.CheckResult{
				"warehouse": {Status: domain.HealthStatusHealthy},
				"redis":     {Status: domain.HealthStatusUnhealthy, Error: "connection refused"},
			},
		},
		{
			name:           "every failure is reported",
			checks:         map[string]handler.Check{"warehouse": failing("login timeout"), "database": failing("no route")},
			expectedCode:   http.StatusServiceUnavailable,
			expectedStatus: domain.HealthStatusUnhealthy,
			expectedChecks: map[string]domain.CheckResult{
				"warehouse": {Status: domain.HealthStatusUnhealthy, Error: "login timeout"},
				"database":  {Status: domain.HealthStatusUnhealthy, Error: "no route"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(tt.checks, nil, nil, zap.NewNop())

			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.expectedCode, rec.Code)
			var resp domain.HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedStatus, resp.Status)
			assert.Equal(t, tt.expectedChecks, resp.Checks)
			assert.Nil(t, resp.Sync)
		})
	}
}

func TestHealthHandler_ReadyReportsSyncLoop(t *testing.T) {
	run := &domain.SyncRun{ID: uuid.New(), Status: domain.SyncRunStatusFailed, ErrorMessage: "crm unavailable"}
	h := handler.NewHealthHandler(nil, fakeDriver{state: jobs.StateRunning, cycles: 7}, fakeCycle{run: run}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	// A failed cycle does not fail readiness
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp domain.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Sync)
	assert.Equal(t, "running", resp.Sync.State)
	assert.Equal(t, int64(7), resp.Sync.Cycles)
	require.NotNil(t, resp.Sync.LastRun)
	assert.Equal(t, run.ID, resp.Sync.LastRun.ID)
	assert.Equal(t, domain.SyncRunStatusFailed, resp.Sync.LastRun.Status)
}

func TestHealthHandler_ReadyBoundsCheckDuration(t *testing.T) {
	var deadlineSet bool
	h := handler.NewHealthHandler(map[string]handler.Check{
		"warehouse": func(ctx context.Context) error {
			_, deadlineSet = ctx.Deadline()
			return nil
		},
	}, nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, deadlineSet)
}
