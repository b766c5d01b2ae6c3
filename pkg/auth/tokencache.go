// Package auth owns the process-wide OAuth2 client-credentials token. A single
// TokenCache is shared by every request handler; it hands out the cached bearer
// token while it is valid and refreshes it from the provider's token endpoint
// exactly when needed.
//
// The token request itself is delegated to golang.org/x/oauth2/clientcredentials
// so both credential encodings used by catalog providers are available through
// configuration: HTTP Basic (oauth2.AuthStyleInHeader) or client_id and
// client_secret in the form body (oauth2.AuthStyleInParams).
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"Music-Mediator-Go/pkg/metrics"
)

// DefaultExpiresInField is the token response field holding the lifetime in
// seconds.
const DefaultExpiresInField = "expires_in"

// Credential identifies the application to the provider. It is read once at
// startup and never mutated.
type Credential struct {
	ClientID     string
	ClientSecret string
}

// Complete reports whether both halves of the credential are present.
func (c Credential) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Token is a bearer token and the instant it stops being usable.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be used at now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && t.ExpiresAt.After(now)
}

// Options configures a TokenCache. TokenURL is required; everything else has
// a usable default.
type Options struct {
	TokenURL string
	// AuthStyle selects how the credential is sent. The zero value
	// (AuthStyleAutoDetect) is replaced by AuthStyleInHeader.
	AuthStyle oauth2.AuthStyle
	// ExpiresInField names the lifetime field in the token response.
	ExpiresInField string
	// Leeway is subtracted from the advertised lifetime so tokens are
	// replaced slightly before the provider rejects them.
	Leeway     time.Duration
	HTTPClient *http.Client
	Clock      func() time.Time
	Logger     log.FieldLogger
	Metrics    *metrics.Metrics
}

// TokenCache supplies a valid bearer token while minimising calls to the
// token endpoint. It is safe for concurrent use.
type TokenCache struct {
	tokenURL  string
	authStyle oauth2.AuthStyle
	field     string
	leeway    time.Duration
	http      *http.Client
	now       func() time.Time
	log       log.FieldLogger
	metrics   *metrics.Metrics

	mu    sync.RWMutex
	token Token

	refreshes singleflight.Group
}

// NewTokenCache builds an empty cache. The first GetToken call performs the
// initial token request.
func NewTokenCache(opts Options) *TokenCache {
	if opts.AuthStyle == oauth2.AuthStyleAutoDetect {
		opts.AuthStyle = oauth2.AuthStyleInHeader
	}
	if opts.ExpiresInField == "" {
		opts.ExpiresInField = DefaultExpiresInField
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &TokenCache{
		tokenURL:  opts.TokenURL,
		authStyle: opts.AuthStyle,
		field:     opts.ExpiresInField,
		leeway:    opts.Leeway,
		http:      opts.HTTPClient,
		now:       opts.Clock,
		log:       opts.Logger.WithField("component", "auth"),
		metrics:   opts.Metrics,
	}
}

// GetToken returns the cached token when it has not expired and otherwise
// fetches a new one. Concurrent callers that find the token expired share a
// single refresh and all receive its result. A failed refresh leaves the
// previous token in place and is reported as *AuthError; nothing is retried.
func (c *TokenCache) GetToken(ctx context.Context, cred Credential) (Token, error) {
	if !cred.Complete() {
		return Token{}, &AuthError{Reason: MissingCredentials}
	}
	if tok, ok := c.cached(); ok {
		c.metrics.TokenCacheHit()
		return tok, nil
	}
	c.metrics.TokenCacheMiss()

	// The refresh is shared, so it must not die with whichever caller
	// happened to start it. The HTTP client timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	ch := c.refreshes.DoChan(cred.ClientID, func() (any, error) {
		// Another flight may have stored a token after our read above.
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		return c.refresh(shared, cred)
	})

	select {
	case <-ctx.Done():
		return Token{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	}
}

// Invalidate drops the cached token so the next GetToken refreshes. It is
// used when the provider rejects a token before its advertised expiry.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = Token{}
	c.mu.Unlock()
	c.log.Debug("token invalidated")
}

func (c *TokenCache) cached() (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token.Valid(c.now())
}

// refresh performs one token request and stores the result on success.
func (c *TokenCache) refresh(ctx context.Context, cred Credential) (Token, error) {
	rec := newExchangeRecorder(c.http.Transport)
	client := *c.http
	client.Transport = rec
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &client)

	cfg := clientcredentials.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		TokenURL:     c.tokenURL,
		AuthStyle:    c.authStyle,
	}
	tok, err := cfg.Token(ctx)
	if err != nil {
		c.metrics.TokenRefreshed(false)
		authErr := classify(err, rec)
		c.log.WithError(err).WithField("status", authErr.StatusCode).Warn("token request failed")
		return Token{}, authErr
	}

	if status := rec.statusCode(); status != http.StatusOK {
		c.metrics.TokenRefreshed(false)
		return Token{}, &AuthError{
			Reason:     TokenRequestFailed,
			StatusCode: status,
			RawBody:    rec.rawBody(),
			Err:        fmt.Errorf("unexpected token endpoint status %d", status),
		}
	}

	lifetime, ok := expiresIn(tok, c.field)
	if !ok {
		c.metrics.TokenRefreshed(false)
		c.log.WithField("field", c.field).Warn("token response missing lifetime")
		return Token{}, &AuthError{
			Reason:     TokenRequestFailed,
			StatusCode: rec.statusCode(),
			RawBody:    rec.rawBody(),
			Err:        fmt.Errorf("token response missing %q", c.field),
		}
	}

	t := Token{
		Value:     tok.AccessToken,
		ExpiresAt: c.now().Add(time.Duration(lifetime)*time.Second - c.leeway),
	}
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()

	c.metrics.TokenRefreshed(true)
	c.log.WithField("expires_at", t.ExpiresAt.Format(time.RFC3339)).Info("token refreshed")
	return t, nil
}

// classify turns an oauth2 error into an AuthError, using what the recorder
// saw on the wire to fill in status and body.
func classify(err error, rec *exchangeRecorder) *AuthError {
	if terr := rec.transportError(); terr != nil {
		return &AuthError{
			Reason: TokenRequestFailed,
			Err:    upstreamError(terr),
		}
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &AuthError{
			Reason:     TokenRequestFailed,
			StatusCode: re.Response.StatusCode,
			RawBody:    string(re.Body),
			Err:        err,
		}
	}
	return &AuthError{
		Reason:     TokenRequestFailed,
		StatusCode: rec.statusCode(),
		RawBody:    rec.rawBody(),
		Err:        err,
	}
}
