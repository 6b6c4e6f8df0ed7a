package models

import "errors"

// Error taxonomy shared across the registry, gateway and handlers. Handlers
// map these onto HTTP statuses; the gateway maps them onto error events.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrValidation          = errors.New("validation failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
