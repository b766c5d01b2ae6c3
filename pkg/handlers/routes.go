package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Music-Mediator-Go/pkg/reporting"
)

// Routes registers every endpoint on a chi router wrapped in the common
// middleware stack.
func (app *Application) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(reporting.Middleware)
	r.Use(RequestID)
	r.Use(app.accessLog)
	r.Use(SecurityHeaders)

	r.Get("/", app.Home)
	r.Get("/healthz", app.Healthz)
	r.Post("/recommendations", app.Recommendations)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", app.SearchJSON)
		r.Get("/tracks", app.TracksJSON)
		r.Post("/recommendations", app.Recommendations)
		r.Get("/history", app.HistoryJSON)
		r.Get("/history/{id}", app.HistorySearchJSON)
		r.Get("/insights/artists", app.InsightsJSON)
	})

	gatherer := app.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
