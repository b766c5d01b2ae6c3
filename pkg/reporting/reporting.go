// Package reporting wires error reporting to Sentry. Everything here is a
// no-op until Init is called with a DSN.
package reporting

import (
	"context"
	"net/http"
	"time"

	sentry "github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	log "github.com/sirupsen/logrus"

	"Music-Mediator-Go/pkg/config"
)

// Init configures the global Sentry client. It returns false when no DSN is
// configured.
func Init(cfg config.SentryConfig, release string) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          release,
		TracesSampleRate: cfg.TracesSampleRate,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Flush waits up to timeout for buffered events to be sent.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// Middleware recovers panics, reports them and attaches a request scoped hub
// to the request context.
func Middleware(next http.Handler) http.Handler {
	h := sentryhttp.New(sentryhttp.Options{Repanic: true, Timeout: 2 * time.Second})
	return h.Handle(next)
}

// ReportError sends err to Sentry using the hub on ctx when there is one.
// tags are attached to the event.
func ReportError(ctx context.Context, err error, tags map[string]string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

// LogError logs err and reports it.
func LogError(ctx context.Context, l log.FieldLogger, err error, msg string) {
	l.WithError(err).Error(msg)
	ReportError(ctx, err, nil)
}
