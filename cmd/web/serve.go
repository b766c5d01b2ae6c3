package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"Music-Mediator-Go/pkg/reporting"
)

const pruneInterval = time.Hour

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP server",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "override server.port"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if p := cmd.Int("port"); p > 0 {
				cfg.Server.Port = int(p)
			}

			enabled, err := reporting.Init(cfg.Sentry, version)
			if err != nil {
				logger.WithError(err).Warn("sentry init failed, error reporting disabled")
			} else if enabled {
				defer reporting.Flush(2 * time.Second)
			}

			r, err := NewRunner(RunnerOpts{Config: cfg, Logger: logger, OpenHistory: true})
			if err != nil {
				return err
			}
			defer r.Close()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return r.serve(ctx)
		},
	}
}

// serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests for up to the configured shutdown timeout.
func (r *Runner) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              r.config.Server.Addr(),
		Handler:           r.application().Routes(),
		ReadTimeout:       r.config.Server.ReadTimeout,
		ReadHeaderTimeout: r.config.Server.ReadTimeout,
		WriteTimeout:      r.config.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	if r.history != nil && r.config.Database.Retention > 0 {
		go r.pruneLoop(ctx, pruneInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.WithField("addr", srv.Addr).Info("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// pruneLoop deletes searches older than the retention period once at start
// and then every interval until ctx is done.
func (r *Runner) pruneLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r.prune(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-r.config.Database.Retention)
	n, err := r.history.PruneBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			reporting.LogError(ctx, r.logger, err, "pruning search history failed")
		}
		return
	}
	if n > 0 {
		r.logger.WithFields(log.Fields{"removed": n, "cutoff": cutoff.Format(time.RFC3339)}).Info("pruned search history")
	}
}
