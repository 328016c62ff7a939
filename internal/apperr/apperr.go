// Package apperr defines the error taxonomy shared by the core components.
// Handlers map these to HTTP outcomes; everything else wraps them with %w.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: alias or analytics target absent.
	ErrNotFound = errors.New("not found")
	// ErrAliasConflict: (userId, alias) pair already registered.
	ErrAliasConflict = errors.New("alias already exists")
	// ErrUnauthorized: missing or invalid identity on an identity-scoped operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstream: the source of truth is unreachable. Cache failures are never
	// wrapped with this; they are absorbed where they happen.
	ErrUpstream = errors.New("upstream unavailable")
)

// Upstream tags a store-backend failure with ErrUpstream so callers can map
// it to a 5xx outcome with errors.Is.
func Upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}
