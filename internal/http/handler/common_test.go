package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected int
		ok       bool
	}{
		{"missing uses default", "", 20, true},
		{"explicit value", "?limit=5", 5, true},
		{"minimum", "?limit=1", 1, true},
		{"capped at max", "?limit=500", 200, true},
		{"zero", "?limit=0", 0, false},
		{"negative", "?limit=-3", 0, false},
		{"not a number", "?limit=ten", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/runs"+tt.query, nil)
			n, ok := parseLimit(req, 20, 200)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, "bad_request", getErrorType(http.StatusBadRequest))
	assert.Equal(t, "not_found", getErrorType(http.StatusNotFound))
	assert.Equal(t, "service_unavailable", getErrorType(http.StatusServiceUnavailable))
	assert.Equal(t, "internal_error", getErrorType(http.StatusInternalServerError))
}
