package crm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotAuthenticated is returned when the CRM rejects the session even after re-authenticating
	ErrNotAuthenticated = errors.New("crm session not authenticated")

	// ErrClientNotInitialized is returned when a nil client is used
	ErrClientNotInitialized = errors.New("crm client not initialized")
)

// ErrorDetail is one entry of a Salesforce REST error body
type ErrorDetail struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields,omitempty"`
}

// RejectionError is a structured rejection of a request by the CRM, such as a
// validation rule or malformed payload. It is never retried.
type RejectionError struct {
	StatusCode int
	Details    []ErrorDetail
	Body       string
}

func (e *RejectionError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("crm rejected request (status %d): %s", e.StatusCode, e.Body)
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s: %s", d.ErrorCode, d.Message))
	}
	return fmt.Sprintf("crm rejected request (status %d): %s", e.StatusCode, strings.Join(parts, "; "))
}

// ErrorCodes returns the error codes of the rejection
func (e *RejectionError) ErrorCodes() []string {
	codes := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		codes = append(codes, d.ErrorCode)
	}
	return codes
}

// TransportError is a connectivity-class failure: network errors, timeouts and
// gateway/throttling responses. It is retried by the retry policy.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("crm transport error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("crm transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is an unclassified non-success response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm api error (status %d): %s", e.StatusCode, e.Body)
}

// IsTransient reports whether err is a transport-class error worth retrying
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejection reports whether err is a structured CRM rejection
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// classifyResponse turns a non-success status into the matching error kind
func classifyResponse(status int, body []byte) error {
	text := strings.TrimSpace(string(body))
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &TransportError{StatusCode: status, Err: errors.New(truncate(text, 500))}
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrNotAuthenticated, truncate(text, 500))
	}

	if status >= 400 && status < 500 {
		var details []ErrorDetail
		if err := json.Unmarshal(body, &details); err != nil {
			details = nil
		}
		return &RejectionError{StatusCode: status, Details: details, Body: truncate(text, 500)}
	}

	return &APIError{StatusCode: status, Body: truncate(text, 500)}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
