// Package domain holds the core types and sentinel errors shared across
// every Komodo resource kind and service.
package domain

import "errors"

// Sentinel errors classified at the API boundary per the error taxonomy:
// Unauthenticated, Forbidden, NotFound, Conflict, Validation, Upstream,
// Internal. Handlers wrap these with fmt.Errorf("...: %w", ErrX) so the
// HTTP layer can unwrap and map to a status code while logs keep the cause
// chain.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict: resource was modified by another request")
	ErrValidation      = errors.New("validation")
	ErrUpstream        = errors.New("upstream")
	ErrInternal        = errors.New("internal")
)
