package models

import "errors"

var (
	// ErrUnsupported is returned for inputs the gateway cannot route: unknown
	// segments, timeframes, order types or symbols.
	ErrUnsupported = errors.New("unsupported")
	// ErrMalformedPayload signals a venue payload that does not match the
	// expected contract. It is never retried.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrInvalidOrder is returned when an order cannot be submitted after tick
	// adjustment, e.g. the size floors to zero.
	ErrInvalidOrder = errors.New("invalid order")
)
