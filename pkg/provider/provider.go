// Package provider talks to the catalog provider's JSON:API endpoints. It
// issues the search and batch lookup requests with a bearer token obtained
// elsewhere and returns the undecorated catalog.BatchResponse. The client does
// not perform authentication itself and never retries.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"Music-Mediator-Go/pkg/apperrors"
	"Music-Mediator-Go/pkg/catalog"
	"Music-Mediator-Go/pkg/metrics"
)

// Endpoint labels used for metrics and errors.
const (
	EndpointSearch = "search"
	EndpointTracks = "tracks"
)

// MediaType is the JSON:API media type sent in the Accept header.
const MediaType = "application/vnd.api+json"

// DefaultInclude lists the relationships side-loaded with every request.
var DefaultInclude = []string{catalog.RelArtists, catalog.RelAlbums, catalog.RelSimilarTracks}

// Defaults applied by Config.withDefaults.
const (
	DefaultQueryParam  = "query"
	DefaultPageSize    = 20
	DefaultSearchLimit = 10
)

// maxErrorBody bounds how much of a rejected response is kept in StatusError.
const maxErrorBody = 4 << 10

var (
	// ErrUpstreamUnavailable is returned when the provider cannot be reached
	// or does not answer in time.
	ErrUpstreamUnavailable = apperrors.ErrUpstreamUnavailable
	// ErrMalformedResponse is returned when a 200 response cannot be decoded.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// StatusError is returned when the provider answers an authenticated request
// with a non-200 status.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider %s error: %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unauthorized reports whether the provider rejected the bearer token.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Config holds the provider endpoints and request shaping options.
type Config struct {
	SearchURL string
	TracksURL string
	// QueryParam names the search term parameter. Defaults to "query".
	QueryParam  string
	CountryCode string
	Include     []string
	// PageSize is the maximum number of ids per lookup request.
	PageSize int
}

func (c Config) withDefaults() Config {
	if c.QueryParam == "" {
		c.QueryParam = DefaultQueryParam
	}
	if len(c.Include) == 0 {
		c.Include = DefaultInclude
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	return c
}

// Client queries the provider. If HTTP is nil a client with a 10 second
// timeout is created on first use.
type Client struct {
	cfg     Config
	HTTP    *http.Client
	Metrics *metrics.Metrics
	Log     log.FieldLogger
}

// New returns a Client for cfg.
func New(cfg Config, httpClient *http.Client) *Client {
	return &Client{cfg: cfg.withDefaults(), HTTP: httpClient}
}

// PageSize is the maximum number of ids Tracks accepts per call.
func (c *Client) PageSize() int {
	return c.cfg.withDefaults().PageSize
}

// Search runs a track search for q. limit <= 0 uses DefaultSearchLimit.
func (c *Client) Search(ctx context.Context, token, q string, limit int) (catalog.BatchResponse, error) {
	cfg := c.cfg.withDefaults()
	if cfg.SearchURL == "" {
		return catalog.BatchResponse{}, fmt.Errorf("provider search url: %w", apperrors.ErrNotConfigured)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	params := url.Values{
		cfg.QueryParam: {q},
		"type":         {"track"},
		"limit":        {strconv.Itoa(limit)},
		"include":      {strings.Join(cfg.Include, ",")},
	}
	if cfg.CountryCode != "" {
		params.Set("countryCode", cfg.CountryCode)
	}
	return c.get(ctx, EndpointSearch, cfg.SearchURL, params, token)
}

// Tracks fetches the tracks with the given ids in one request. Callers split
// larger batches by PageSize.
func (c *Client) Tracks(ctx context.Context, token string, ids []string) (catalog.BatchResponse, error) {
	cfg := c.cfg.withDefaults()
	if cfg.TracksURL == "" {
		return catalog.BatchResponse{}, fmt.Errorf("provider tracks url: %w", apperrors.ErrNotConfigured)
	}
	if len(ids) == 0 {
		return catalog.BatchResponse{}, nil
	}
	if len(ids) > cfg.PageSize {
		return catalog.BatchResponse{}, fmt.Errorf("%d ids exceeds page size %d: %w", len(ids), cfg.PageSize, apperrors.ErrInvalidInput)
	}
	params := url.Values{
		"filter[id]": {strings.Join(ids, ",")},
		"include":    {strings.Join(cfg.Include, ",")},
	}
	if cfg.CountryCode != "" {
		params.Set("countryCode", cfg.CountryCode)
	}
	return c.get(ctx, EndpointTracks, cfg.TracksURL, params, token)
}

func (c *Client) get(ctx context.Context, endpoint, base string, params url.Values, token string) (catalog.BatchResponse, error) {
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	logger := c.Log
	if logger == nil {
		logger = log.StandardLogger()
	}

	u, err := url.Parse(base)
	if err != nil {
		return catalog.BatchResponse{}, fmt.Errorf("provider %s url: %w", endpoint, err)
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return catalog.BatchResponse{}, fmt.Errorf("provider %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", MediaType)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Metrics.ObserveUpstream(endpoint, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return catalog.BatchResponse{}, fmt.Errorf("provider %s: %w", endpoint, ctxErr)
		}
		logger.WithError(err).WithField("endpoint", endpoint).Warn("provider unreachable")
		return catalog.BatchResponse{}, fmt.Errorf("provider %s: %w: %w", endpoint, ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	c.Metrics.ObserveUpstream(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.WithFields(log.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Warn("provider rejected request")
		return catalog.BatchResponse{}, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var batch catalog.BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return catalog.BatchResponse{}, fmt.Errorf("provider %s: %w: %w", endpoint, ErrMalformedResponse, err)
	}
	return batch, nil
}
