package domain

import "errors"

var (
	// ErrMissingIdentity is returned when an order lacks its customer number or division number
	ErrMissingIdentity = errors.New("missing customer number or division number")

	// ErrMissingOrderNumber is returned when a warehouse row has no sales order number
	ErrMissingOrderNumber = errors.New("missing sales order number")

	// ErrMissingProductCode is returned when a line item has no product code
	ErrMissingProductCode = errors.New("missing product code")
)
