package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"Music-Mediator-Go/pkg/config"
)

// fakeProvider serves the token endpoint and a small JSON:API catalog. Every
// catalog request must carry the token it issued.
type fakeProvider struct {
	*httptest.Server
	tokenCalls atomic.Int32
	apiCalls   atomic.Int32
}

var catalogTracks = map[string]string{
	"t1": `{"id":"t1","type":"tracks","attributes":{"title":"Windowlicker"},"relationships":{"artists":{"data":[{"id":"a1","type":"artists"}]},"albums":{"data":[{"id":"al1","type":"albums"}]}}}`,
	"t2": `{"id":"t2","type":"tracks","attributes":{"title":"Xtal"},"relationships":{"artists":{"data":[{"id":"a1","type":"artists"}]},"similarTracks":{"data":[{"id":"t1","type":"tracks"}]}}}`,
	"t3": `{"id":"t3","type":"tracks","attributes":{"title":"Untitled"},"relationships":{"artists":{"data":[{"id":"missing","type":"artists"}]}}}`,
}

const catalogIncluded = `[
  {"id":"a1","type":"artists","attributes":{"name":"Aphex Twin"}},
  {"id":"al1","type":"albums","attributes":{"title":"Windowlicker","imageLinks":[{"href":"https://img.example.com/wl.jpg"}]}}
]`

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		n := fp.tokenCalls.Add(1)
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client" || secret != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid_client"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, n)
	})
	api := func(ids func(r *http.Request) []string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			fp.apiCalls.Add(1)
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var data []string
			for _, id := range ids(r) {
				if raw, ok := catalogTracks[id]; ok {
					data = append(data, raw)
				}
			}
			w.Header().Set("Content-Type", "application/vnd.api+json")
			fmt.Fprintf(w, `{"data":[%s],"included":%s}`, strings.Join(data, ","), catalogIncluded)
		}
	}
	mux.HandleFunc("/v2/searchresults", api(func(r *http.Request) []string {
		if r.URL.Query().Get("query") == "" {
			return nil
		}
		return []string{"t1", "t2"}
	}))
	mux.HandleFunc("/v2/tracks", api(func(r *http.Request) []string {
		return strings.Split(r.URL.Query().Get("filter[id]"), ",")
	}))
	fp.Server = httptest.NewServer(mux)
	t.Cleanup(fp.Close)
	return fp
}

func (fp *fakeProvider) config() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Credentials.ClientID = "client"
	cfg.Credentials.ClientSecret = "secret"
	cfg.Provider.TokenURL = fp.URL + "/oauth2/token"
	cfg.Provider.SearchURL = fp.URL + "/v2/searchresults"
	cfg.Provider.TracksURL = fp.URL + "/v2/tracks"
	cfg.Provider.PageSize = 2
	cfg.Log.Level = "error"
	return cfg
}

// setProviderEnv points the CLI at fp through the environment, which takes
// precedence over any config file.
func setProviderEnv(t *testing.T, fp *fakeProvider) {
	t.Helper()
	t.Setenv("CATALOG_CLIENT_ID", "client")
	t.Setenv("CATALOG_CLIENT_SECRET", "secret")
	t.Setenv("CATALOG_TOKEN_URL", fp.URL+"/oauth2/token")
	t.Setenv("CATALOG_SEARCH_URL", fp.URL+"/v2/searchresults")
	t.Setenv("CATALOG_TRACKS_URL", fp.URL+"/v2/tracks")
	t.Setenv("CATALOG_PAGE_SIZE", "2")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DATABASE_PATH", "")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(context.Background(), append([]string{"music-mediator"}, args...))
	return out.String(), err
}

type trackJSON struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Artist          string   `json:"artist"`
	AlbumImageURL   *string  `json:"albumImageUrl"`
	RelatedTrackIDs []string `json:"relatedTrackIds"`
}

func TestSearchCommand(t *testing.T) {
	fp := newFakeProvider(t)
	setProviderEnv(t, fp)

	out, err := runCLI(t, "search", "aphex", "twin")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var got []trackJSON
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t2" {
		t.Fatalf("unexpected tracks %+v", got)
	}
	if got[0].Artist != "Aphex Twin" || got[0].AlbumImageURL == nil || *got[0].AlbumImageURL != "https://img.example.com/wl.jpg" {
		t.Fatalf("unexpected first track %+v", got[0])
	}
	if got[1].AlbumImageURL != nil || len(got[1].RelatedTrackIDs) != 1 {
		t.Fatalf("unexpected second track %+v", got[1])
	}
}

func TestSearchCommandRequiresQuery(t *testing.T) {
	fp := newFakeProvider(t)
	setProviderEnv(t, fp)

	if _, err := runCLI(t, "search"); err == nil {
		t.Fatal("expected error for empty query")
	}
	if fp.tokenCalls.Load() != 0 {
		t.Fatal("no token should be requested without a query")
	}
}

func TestTracksCommandSplitsIDs(t *testing.T) {
	fp := newFakeProvider(t)
	setProviderEnv(t, fp)

	out, err := runCLI(t, "tracks", "t1,t2", "t3")
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	var got []trackJSON
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 tracks got %d", len(got))
	}
	if got[2].Artist != "Unknown Artist" {
		t.Fatalf("dangling artist should fall back, got %q", got[2].Artist)
	}
	// page size 2 splits three ids into two catalog calls sharing one token
	if n := fp.apiCalls.Load(); n != 2 {
		t.Fatalf("expected 2 catalog calls got %d", n)
	}
	if n := fp.tokenCalls.Load(); n != 1 {
		t.Fatalf("expected 1 token call got %d", n)
	}
}

func TestTokenCommandHidesValue(t *testing.T) {
	fp := newFakeProvider(t)
	setProviderEnv(t, fp)

	out, err := runCLI(t, "token")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if strings.Contains(out, "tok-") {
		t.Fatalf("token value leaked: %s", out)
	}
	if !strings.Contains(out, "expiresAt") {
		t.Fatalf("expected expiry in output: %s", out)
	}
}

func TestTokenCommandBadCredentials(t *testing.T) {
	fp := newFakeProvider(t)
	setProviderEnv(t, fp)
	t.Setenv("CATALOG_CLIENT_SECRET", "wrong")

	_, err := runCLI(t, "token")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected rejected token request, got %v", err)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if _, err := runCLI(t, "config", "init", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, config.ExampleConfig()) {
		t.Fatal("written file differs from the example config")
	}
	if _, err := runCLI(t, "config", "init", path); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	if _, err := runCLI(t, "config", "init", "--force", path); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
}
