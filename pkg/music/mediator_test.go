package music

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"

	"Music-Mediator-Go/pkg/apperrors"
	"Music-Mediator-Go/pkg/auth"
	"Music-Mediator-Go/pkg/catalog"
	"Music-Mediator-Go/pkg/provider"
)

type fakeTokens struct {
	mu          sync.Mutex
	calls       int
	invalidated int
	err         error
}

func (f *fakeTokens) GetToken(ctx context.Context, cred auth.Credential) (auth.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return auth.Token{}, f.err
	}
	return auth.Token{Value: "tok"}, nil
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

// fakeCatalog answers lookups with one titled track per id.
type fakeCatalog struct {
	mu        sync.Mutex
	searches  []string
	lookups   [][]string
	searchErr error
	tracksErr error
}

func (f *fakeCatalog) Search(ctx context.Context, token, q string, limit int) (catalog.BatchResponse, error) {
	f.mu.Lock()
	f.searches = append(f.searches, q)
	f.mu.Unlock()
	if f.searchErr != nil {
		return catalog.BatchResponse{}, f.searchErr
	}
	return batchFor("s1", "s2"), nil
}

func (f *fakeCatalog) Tracks(ctx context.Context, token string, ids []string) (catalog.BatchResponse, error) {
	f.mu.Lock()
	f.lookups = append(f.lookups, append([]string(nil), ids...))
	f.mu.Unlock()
	if f.tracksErr != nil {
		return catalog.BatchResponse{}, f.tracksErr
	}
	return batchFor(ids...), nil
}

func batchFor(ids ...string) catalog.BatchResponse {
	var resp catalog.BatchResponse
	for _, id := range ids {
		title, _ := json.Marshal("Track " + id)
		resp.Data = append(resp.Data, catalog.RawEntity{
			ID:         id,
			Type:       catalog.TypeTracks,
			Attributes: map[string]json.RawMessage{"title": title},
		})
	}
	return resp
}

func newMediator(tokens *fakeTokens, cat *fakeCatalog) *Mediator {
	l := log.New()
	l.SetOutput(io.Discard)
	return &Mediator{
		Tokens:     tokens,
		Catalog:    cat,
		Credential: auth.Credential{ClientID: "id", ClientSecret: "secret"},
		PageSize:   2,
		Log:        l,
	}
}

func TestSearchTracks(t *testing.T) {
	tokens, cat := &fakeTokens{}, &fakeCatalog{}
	m := newMediator(tokens, cat)

	got, err := m.SearchTracks(context.Background(), "  blue monday ", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s1" || got[0].Artist != catalog.UnknownArtist {
		t.Fatalf("unexpected result %+v", got)
	}
	if len(cat.searches) != 1 || cat.searches[0] != "blue monday" {
		t.Fatalf("unexpected searches %v", cat.searches)
	}
}

func TestSearchTracksEmptyQuery(t *testing.T) {
	tokens, cat := &fakeTokens{}, &fakeCatalog{}
	m := newMediator(tokens, cat)
	if _, err := m.SearchTracks(context.Background(), "  ", 5); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if tokens.calls != 0 {
		t.Fatalf("token should not be requested for invalid input")
	}
}

func TestSearchTracksTokenError(t *testing.T) {
	tokens := &fakeTokens{err: &auth.AuthError{Reason: auth.MissingCredentials}}
	cat := &fakeCatalog{}
	m := newMediator(tokens, cat)
	if _, err := m.SearchTracks(context.Background(), "q", 5); !errors.Is(err, auth.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
	if len(cat.searches) != 0 {
		t.Fatalf("provider should not be called without a token")
	}
}

// TestUnauthorizedInvalidatesToken checks a provider 401 drops the token
// without retrying the request.
func TestUnauthorizedInvalidatesToken(t *testing.T) {
	tokens := &fakeTokens{}
	cat := &fakeCatalog{searchErr: &provider.StatusError{Endpoint: provider.EndpointSearch, StatusCode: http.StatusUnauthorized}}
	m := newMediator(tokens, cat)

	_, err := m.SearchTracks(context.Background(), "q", 5)
	var se *provider.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if tokens.invalidated != 1 {
		t.Fatalf("expected token invalidation, got %d", tokens.invalidated)
	}
	if len(cat.searches) != 1 {
		t.Fatalf("request must not be retried, got %d calls", len(cat.searches))
	}

	cat.searchErr = &provider.StatusError{Endpoint: provider.EndpointSearch, StatusCode: http.StatusInternalServerError}
	m.SearchTracks(context.Background(), "q", 5)
	if tokens.invalidated != 1 {
		t.Fatalf("non-401 errors must not invalidate")
	}
}

func TestLookupTracksChunks(t *testing.T) {
	tokens, cat := &fakeTokens{}, &fakeCatalog{}
	m := newMediator(tokens, cat)

	got, err := m.LookupTracks(context.Background(), []string{"a", "b", "", "c", "a", "d", "e"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ids []string
	for _, tr := range got {
		ids = append(ids, tr.ID)
	}
	want := []string{"a", "b", "c", "d", "e"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v got %v", want, ids)
		}
	}

	if len(cat.lookups) != 3 {
		t.Fatalf("expected 3 lookup requests, got %v", cat.lookups)
	}
	for _, l := range cat.lookups {
		if len(l) > 2 {
			t.Fatalf("chunk exceeds page size: %v", l)
		}
	}
	sort.Slice(cat.lookups, func(i, j int) bool { return cat.lookups[i][0] < cat.lookups[j][0] })
	if cat.lookups[0][0] != "a" || cat.lookups[1][0] != "c" || cat.lookups[2][0] != "e" {
		t.Fatalf("unexpected chunks %v", cat.lookups)
	}
	if tokens.calls != 1 {
		t.Fatalf("expected one token per lookup, got %d", tokens.calls)
	}
}

func TestLookupTracksErrors(t *testing.T) {
	m := newMediator(&fakeTokens{}, &fakeCatalog{})
	if _, err := m.LookupTracks(context.Background(), []string{" ", ""}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	cat := &fakeCatalog{tracksErr: provider.ErrUpstreamUnavailable}
	m = newMediator(&fakeTokens{}, cat)
	if _, err := m.LookupTracks(context.Background(), []string{"a", "b", "c"}); !errors.Is(err, apperrors.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name  string
		query RecommendationQuery
		want  string
	}{
		{name: "query wins", query: RecommendationQuery{Genre: "jazz", Query: "kind of blue"}, want: "kind of blue"},
		{name: "genre with default period", query: RecommendationQuery{Genre: "trip hop"}, want: "trip hop 2000s"},
		{name: "genre and period", query: RecommendationQuery{Genre: "punk", TimePeriod: "1970s"}, want: "punk 1970s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := &fakeCatalog{}
			m := newMediator(&fakeTokens{}, cat)
			if _, err := m.Recommend(context.Background(), tt.query); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cat.searches[0] != tt.want {
				t.Fatalf("expected search %q got %q", tt.want, cat.searches[0])
			}
		})
	}

	m := newMediator(&fakeTokens{}, &fakeCatalog{})
	if _, err := m.Recommend(context.Background(), RecommendationQuery{TimePeriod: "1990s"}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
