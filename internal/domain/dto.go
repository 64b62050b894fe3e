package domain

// APIError is a problem-details error body returned by the status endpoints
type APIError struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}

// Common error types for RFC 7807 Problem Details
const (
	ErrorTypeNotFound    = "not_found"
	ErrorTypeBadRequest  = "bad_request"
	ErrorTypeUnavailable = "service_unavailable"
	ErrorTypeInternal    = "internal_error"
)

// Health status values
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
)

// CheckResult is the outcome of one dependency check
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SyncStatusDTO describes the sync loop for the readiness endpoint
type SyncStatusDTO struct {
	State   string   `json:"state"`
	Cycles  int64    `json:"cycles"`
	LastRun *SyncRun `json:"lastRun,omitempty"`
}

// HealthResponse is the readiness endpoint body
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
	Sync   *SyncStatusDTO         `json:"sync,omitempty"`
}

// SyncRunListResponse is a page of recorded sync runs
type SyncRunListResponse struct {
	Data  []SyncRun `json:"data"`
	Count int       `json:"count"`
}
