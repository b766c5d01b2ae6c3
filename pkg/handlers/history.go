// This file contains the endpoints backed by the search history store: recent
// searches, the tracks a past search returned, and artist insights.
package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const maxInsightDays = 365

func (app *Application) historyEnabled(w http.ResponseWriter) bool {
	if app.History == nil {
		respondJSONError(w, http.StatusNotFound, "search history is not enabled")
		return false
	}
	return true
}

// HistoryJSON returns the most recent searches, newest first.
func (app *Application) HistoryJSON(w http.ResponseWriter, r *http.Request) {
	if !app.historyEnabled(w) {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := app.History.RecentSearches(r.Context(), limit)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// HistorySearchJSON returns the tracks recorded for the search in the {id}
// path segment.
func (app *Application) HistorySearchJSON(w http.ResponseWriter, r *http.Request) {
	if !app.historyEnabled(w) {
		return
	}
	id := chi.URLParam(r, "id")
	tracks, err := app.History.SearchResults(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		respondJSONError(w, http.StatusNotFound, "search not found")
		return
	}
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tracks)
}

// InsightsJSON returns the artists seen most often in search results over a
// period controlled by the 'days' query parameter (default 7).
func (app *Application) InsightsJSON(w http.ResponseWriter, r *http.Request) {
	if !app.historyEnabled(w) {
		return
	}
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxInsightDays {
			respondJSONError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}
	limit, err := parseLimit(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	since := app.now().AddDate(0, 0, -days)
	res, err := app.History.TopArtistsSince(r.Context(), since, limit)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
