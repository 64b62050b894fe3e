package service

import "errors"

// Reconciliation errors
var (
	// ErrAccountUnresolved is returned when an order's account could neither be found nor created
	ErrAccountUnresolved = errors.New("account could not be resolved")

	// ErrOrderNotWritten is returned when an order could not be created in the CRM
	ErrOrderNotWritten = errors.New("order could not be written")
)
