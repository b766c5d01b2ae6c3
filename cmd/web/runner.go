package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"Music-Mediator-Go/pkg/auth"
	"Music-Mediator-Go/pkg/catalog"
	"Music-Mediator-Go/pkg/config"
	"Music-Mediator-Go/pkg/db"
	"Music-Mediator-Go/pkg/handlers"
	"Music-Mediator-Go/pkg/logging"
	"Music-Mediator-Go/pkg/metrics"
	"Music-Mediator-Go/pkg/music"
	"Music-Mediator-Go/pkg/provider"
)

// Runner holds the dependencies shared by every command.
type Runner struct {
	config   *config.Config
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	tokens   *auth.TokenCache
	provider *provider.Client
	mediator *music.Mediator
	history  *db.DB
	output   io.Writer
}

// RunnerOpts contains configuration options for creating a Runner. Nil
// fields get production defaults.
type RunnerOpts struct {
	Config     *config.Config
	Logger     *log.Logger
	HTTPClient *http.Client
	Output     io.Writer
	// OpenHistory opens the search history database when a path is
	// configured.
	OpenHistory bool
}

// NewRunner wires the token cache, provider client and mediator from the
// configuration.
func NewRunner(opts RunnerOpts) (*Runner, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	cfg := opts.Config
	if opts.Logger == nil {
		l, err := logging.NewLogger(cfg.Log, nil)
		if err != nil {
			return nil, err
		}
		opts.Logger = l
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: cfg.Provider.Timeout}
	}
	style, err := cfg.Provider.OAuthAuthStyle()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tokens := auth.NewTokenCache(auth.Options{
		TokenURL:       cfg.Provider.TokenURL,
		AuthStyle:      style,
		ExpiresInField: cfg.Provider.ExpiresInField,
		Leeway:         cfg.Provider.ExpiryLeeway,
		HTTPClient:     opts.HTTPClient,
		Logger:         opts.Logger,
		Metrics:        m,
	})

	pc := provider.New(cfg.Provider.Client(), opts.HTTPClient)
	pc.Metrics = m
	pc.Log = logging.Component(opts.Logger, "provider")

	r := &Runner{
		config:   cfg,
		logger:   opts.Logger,
		registry: reg,
		metrics:  m,
		tokens:   tokens,
		provider: pc,
		mediator: &music.Mediator{
			Tokens:     tokens,
			Catalog:    pc,
			Credential: cfg.Credentials.Credential(),
			Normalizer: catalog.Normalizer{Observer: m},
			PageSize:   pc.PageSize(),
			Log:        logging.Component(opts.Logger, "music"),
		},
		output: opts.Output,
	}

	if opts.OpenHistory && cfg.Database.Path != "" {
		d, err := db.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("db init: %w", err)
		}
		r.history = d
	}
	return r, nil
}

// Close releases the history database.
func (r *Runner) Close() error {
	if r.history != nil {
		return r.history.Close()
	}
	return nil
}

// application builds the HTTP handlers. A nil *db.DB must not end up in the
// HistoryStore interface, so it is only assigned when open.
func (r *Runner) application() *handlers.Application {
	app := &handlers.Application{
		Music:    r.mediator,
		Metrics:  r.metrics,
		Gatherer: r.registry,
		Log:      logging.Component(r.logger, "http"),
	}
	if r.history != nil {
		app.History = r.history
	}
	return app
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var (
		output []byte
		err    error
	)
	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	output = append(output, '\n')
	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
