// Package music defines the track lookup interface used by the route layer
// and its implementation on top of the catalog provider. By depending on this
// package the handlers remain agnostic about tokens, wire formats and the
// provider's entity graph.
package music

import (
	"context"
	"fmt"
	"strings"

	"Music-Mediator-Go/pkg/apperrors"
	"Music-Mediator-Go/pkg/catalog"
)

// Track is the flat record returned to callers.
type Track = catalog.NormalizedTrack

// Service exposes searching and batch lookup of tracks.
type Service interface {
	// SearchTracks returns up to limit tracks matching query. The context is
	// used for request cancellation and timeout propagation.
	SearchTracks(ctx context.Context, query string, limit int) ([]Track, error)

	// LookupTracks returns the tracks with the given ids in the order the
	// provider answers them. It is typically fed RelatedTrackIDs from an
	// earlier result.
	LookupTracks(ctx context.Context, ids []string) ([]Track, error)
}

// DefaultTimePeriod is used when a recommendation request names none.
const DefaultTimePeriod = "2000s"

// RecommendationQuery is the body accepted by the recommendations endpoint.
// Query wins when present; otherwise genre and time period form the search
// term.
type RecommendationQuery struct {
	Genre      string `json:"genre"`
	TimePeriod string `json:"time_period"`
	Query      string `json:"query"`
}

// Normalized trims the fields and fills in the default time period.
func (q RecommendationQuery) Normalized() RecommendationQuery {
	q.Genre = strings.TrimSpace(q.Genre)
	q.TimePeriod = strings.TrimSpace(q.TimePeriod)
	q.Query = strings.TrimSpace(q.Query)
	if q.TimePeriod == "" {
		q.TimePeriod = DefaultTimePeriod
	}
	return q
}

// SearchTerm returns the text to search for, or "" if the query names
// nothing to look for.
func (q RecommendationQuery) SearchTerm() string {
	q = q.Normalized()
	if q.Query != "" {
		return q.Query
	}
	if q.Genre == "" {
		return ""
	}
	return q.Genre + " " + q.TimePeriod
}

// RecommendationLimit is the number of tracks Recommend asks for.
const RecommendationLimit = 5

// Recommender turns a recommendation query into tracks.
type Recommender interface {
	Recommend(ctx context.Context, q RecommendationQuery) ([]Track, error)
}

// Recommend searches svc for tracks matching q. It returns ErrInvalidInput
// when q names neither a query nor a genre.
func Recommend(ctx context.Context, svc Service, q RecommendationQuery) ([]Track, error) {
	term := q.SearchTerm()
	if term == "" {
		return nil, fmt.Errorf("genre or query required: %w", apperrors.ErrInvalidInput)
	}
	return svc.SearchTracks(ctx, term, RecommendationLimit)
}
