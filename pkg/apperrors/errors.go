// Package apperrors holds the sentinel errors shared by the token cache, the
// provider client and the HTTP layer. Packages wrap these with fmt.Errorf and
// %w so callers can classify failures with errors.Is.
package apperrors

import "errors"

var (
	// ErrUpstreamUnavailable marks transport level faults (connection
	// refused, DNS, timeouts) talking to the provider. It is distinct from a
	// provider that answered but rejected the call.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrInvalidInput is returned for caller supplied values that cannot be
	// sent upstream (empty query, no ids).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotConfigured is returned when an optional collaborator such as the
	// history database was not set up.
	ErrNotConfigured = errors.New("not configured")
)
