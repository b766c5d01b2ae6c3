package auth

import (
	"errors"
	"fmt"
)

// Reason classifies an AuthError.
type Reason string

const (
	// MissingCredentials means the client id or secret was empty. No
	// network call is made in this case.
	MissingCredentials Reason = "missing_credentials"
	// TokenRequestFailed covers non-200 answers, malformed bodies and
	// transport failures from the token endpoint.
	TokenRequestFailed Reason = "token_request_failed"
)

var (
	// ErrMissingCredentials matches any AuthError with reason MissingCredentials.
	ErrMissingCredentials = errors.New("missing client credentials")
	// ErrTokenRequestFailed matches any AuthError with reason TokenRequestFailed.
	ErrTokenRequestFailed = errors.New("token request failed")
)

// AuthError is returned by TokenCache.GetToken. StatusCode and RawBody are
// set when the token endpoint answered; Err carries the underlying cause.
type AuthError struct {
	Reason     Reason
	StatusCode int
	RawBody    string
	Err        error
}

func (e *AuthError) Error() string {
	msg := "auth: " + string(e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the reason sentinel and the cause so errors.Is works
// for ErrTokenRequestFailed as well as apperrors.ErrUpstreamUnavailable.
func (e *AuthError) Unwrap() []error {
	errs := make([]error, 0, 2)
	switch e.Reason {
	case MissingCredentials:
		errs = append(errs, ErrMissingCredentials)
	case TokenRequestFailed:
		errs = append(errs, ErrTokenRequestFailed)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
