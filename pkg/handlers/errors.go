package handlers

import (
	"context"
	"errors"
	"net/http"

	"Music-Mediator-Go/pkg/apperrors"
	"Music-Mediator-Go/pkg/auth"
	"Music-Mediator-Go/pkg/catalog"
	"Music-Mediator-Go/pkg/provider"
	"Music-Mediator-Go/pkg/reporting"
)

// classify maps a service error onto the response status and the message
// shown to clients. Provider bodies and credentials never reach the client.
func classify(err error) (int, string) {
	var (
		authErr   *auth.AuthError
		malformed *catalog.MalformedEntityError
		statusErr *provider.StatusError
	)
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrMissingCredentials):
		return http.StatusInternalServerError, "catalog credentials are not configured"
	case errors.Is(err, apperrors.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "catalog provider unavailable"
	case errors.As(err, &authErr):
		return http.StatusBadGateway, "catalog provider rejected the token request"
	case errors.As(err, &malformed):
		return http.StatusBadGateway, "catalog provider returned a malformed track"
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, "catalog provider returned an error"
	case errors.Is(err, provider.ErrMalformedResponse):
		return http.StatusBadGateway, "catalog provider returned an unreadable response"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request cancelled"
	}
	return http.StatusInternalServerError, "internal error"
}

// serverError logs err, reports unexpected failures to Sentry and writes the
// mapped JSON error response.
func (app *Application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	entry := requestLogger(r, app.logger()).WithError(err).WithField("status", status)

	var authErr *auth.AuthError
	if errors.As(err, &authErr) && authErr.StatusCode != 0 {
		entry = entry.WithField("token_status", authErr.StatusCode)
	}
	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		entry = entry.WithField("provider_status", statusErr.StatusCode)
	}

	switch {
	case status == http.StatusInternalServerError || status == http.StatusBadGateway:
		entry.Error("request failed")
		reporting.ReportError(r.Context(), err, map[string]string{"path": r.URL.Path})
	case status >= 500:
		entry.Warn("request failed")
	default:
		entry.Debug("request rejected")
	}
	respondJSONError(w, status, msg)
}
