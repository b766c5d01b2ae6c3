// Package handlers contains the HTTP layer of Music-Mediator-Go. Handlers are
// methods on Application so dependencies are injected once at startup and
// can be replaced with fakes in tests.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"Music-Mediator-Go/pkg/apperrors"
	"Music-Mediator-Go/pkg/catalog"
	"Music-Mediator-Go/pkg/db"
	"Music-Mediator-Go/pkg/metrics"
	"Music-Mediator-Go/pkg/music"
)

// Query limits accepted by the list endpoints.
const (
	defaultLimit = 10
	maxLimit     = 50
)

// HistoryStore records searches. *db.DB implements it.
type HistoryStore interface {
	RecordSearch(ctx context.Context, query string, tracks []catalog.NormalizedTrack, at time.Time) (string, error)
	RecentSearches(ctx context.Context, limit int) ([]db.Search, error)
	SearchResults(ctx context.Context, searchID string) ([]catalog.NormalizedTrack, error)
	TopArtistsSince(ctx context.Context, since time.Time, limit int) ([]db.ArtistCount, error)
}

// Application bundles the dependencies used by the HTTP handlers. History
// may be nil, in which case the history routes answer 404. Gatherer backs
// /metrics and defaults to the Prometheus default registry.
type Application struct {
	Music    music.Service
	History  HistoryStore
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Log      log.FieldLogger
	Now      func() time.Time
}

func (app *Application) logger() log.FieldLogger {
	if app.Log == nil {
		return log.StandardLogger()
	}
	return app.Log
}

func (app *Application) now() time.Time {
	if app.Now == nil {
		return time.Now()
	}
	return app.Now()
}

// Home answers with a plain liveness string.
func (app *Application) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "running :D")
}

// Healthz reports that the process is serving requests. It does not contact
// the provider.
func (app *Application) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SearchJSON handles GET /api/search?q=...&limit=n and returns the
// normalized tracks. When history is enabled the search is recorded and its
// ID returned in the X-Search-ID header; a failure to record is logged but
// does not fail the request.
func (app *Application) SearchJSON(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondJSONError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	tracks, err := app.Music.SearchTracks(r.Context(), q, limit)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	if app.History != nil {
		id, err := app.History.RecordSearch(r.Context(), q, tracks, app.now())
		if err != nil {
			requestLogger(r, app.logger()).WithError(err).Warn("record search")
		} else {
			w.Header().Set("X-Search-ID", id)
		}
	}
	respondJSON(w, http.StatusOK, tracks)
}

// TracksJSON handles GET /api/tracks?ids=a,b,c. Repeated ids parameters are
// accepted as well.
func (app *Application) TracksJSON(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, v := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		respondJSONError(w, http.StatusBadRequest, "missing query parameter ids")
		return
	}
	tracks, err := app.Music.LookupTracks(r.Context(), ids)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tracks)
}

type recommendationInput struct {
	Genre      string `json:"genre"`
	TimePeriod string `json:"time_period"`
}

type recommendationResponse struct {
	Input           recommendationInput `json:"input"`
	Recommendations []music.Track       `json:"recommendations"`
}

// Recommendations handles POST /recommendations with a JSON body of
// {"genre", "time_period", "query"}. time_period defaults to 2000s.
func (app *Application) Recommendations(w http.ResponseWriter, r *http.Request) {
	var q music.RecommendationQuery
	if err := decodeJSON(r, &q); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	q = q.Normalized()

	var (
		tracks []music.Track
		err    error
	)
	if rec, ok := app.Music.(music.Recommender); ok {
		tracks, err = rec.Recommend(r.Context(), q)
	} else {
		tracks, err = music.Recommend(r.Context(), app.Music, q)
	}
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, recommendationResponse{
		Input:           recommendationInput{Genre: q.Genre, TimePeriod: q.TimePeriod},
		Recommendations: tracks,
	})
}

// parseLimit reads the optional limit parameter, defaulting to 10 and
// capping at 50.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer: %w", apperrors.ErrInvalidInput)
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}
