package music

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"Music-Mediator-Go/pkg/apperrors"
	"Music-Mediator-Go/pkg/auth"
	"Music-Mediator-Go/pkg/catalog"
	"Music-Mediator-Go/pkg/provider"
)

// TokenSource hands out bearer tokens. *auth.TokenCache implements it.
type TokenSource interface {
	GetToken(ctx context.Context, cred auth.Credential) (auth.Token, error)
	Invalidate()
}

// Catalog issues the raw provider calls. *provider.Client implements it.
type Catalog interface {
	Search(ctx context.Context, token, q string, limit int) (catalog.BatchResponse, error)
	Tracks(ctx context.Context, token string, ids []string) (catalog.BatchResponse, error)
}

// Mediator implements Service: it obtains a token, calls the provider and
// flattens the response. PageSize bounds the ids sent per lookup request;
// larger lookups are split and fetched concurrently.
type Mediator struct {
	Tokens     TokenSource
	Catalog    Catalog
	Credential auth.Credential
	Normalizer catalog.Normalizer
	PageSize   int
	Log        log.FieldLogger
}

// Ensure interface compliance.
var _ Service = (*Mediator)(nil)

// SearchTracks implements Service.
func (m *Mediator) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query required: %w", apperrors.ErrInvalidInput)
	}
	tok, err := m.Tokens.GetToken(ctx, m.Credential)
	if err != nil {
		return nil, err
	}
	resp, err := m.Catalog.Search(ctx, tok.Value, query, limit)
	if err != nil {
		m.rejected(err)
		return nil, err
	}
	return m.Normalizer.Normalize(resp)
}

// LookupTracks implements Service. Blank and repeated ids are dropped before
// the request is made.
func (m *Mediator) LookupTracks(ctx context.Context, ids []string) ([]Track, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("track ids required: %w", apperrors.ErrInvalidInput)
	}
	tok, err := m.Tokens.GetToken(ctx, m.Credential)
	if err != nil {
		return nil, err
	}
	size := m.PageSize
	if size <= 0 {
		size = provider.DefaultPageSize
	}
	return fanOut(ctx, chunk(ids, size), func(ctx context.Context, ids []string) ([]Track, error) {
		resp, err := m.Catalog.Tracks(ctx, tok.Value, ids)
		if err != nil {
			m.rejected(err)
			return nil, err
		}
		return m.Normalizer.Normalize(resp)
	})
}

// Recommend implements Recommender.
func (m *Mediator) Recommend(ctx context.Context, q RecommendationQuery) ([]Track, error) {
	return Recommend(ctx, m, q)
}

// rejected drops the cached token when the provider refused it so the next
// request fetches a fresh one. The current request still fails.
func (m *Mediator) rejected(err error) {
	var se *provider.StatusError
	if !errors.As(err, &se) || !se.Unauthorized() {
		return
	}
	m.logger().WithField("endpoint", se.Endpoint).Info("provider rejected token, invalidating")
	m.Tokens.Invalidate()
}

func (m *Mediator) logger() log.FieldLogger {
	if m.Log == nil {
		return log.StandardLogger()
	}
	return m.Log
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
