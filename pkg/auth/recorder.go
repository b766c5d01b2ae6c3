package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"Music-Mediator-Go/pkg/apperrors"
)

// maxRecordedBody bounds how much of a token response is kept for errors.
const maxRecordedBody = 64 << 10

// exchangeRecorder wraps the transport used for one token request and keeps
// the status, body and any transport failure, so "the provider said no" can
// be told apart from "the provider could not be reached" whatever error
// oauth2 returns.
type exchangeRecorder struct {
	base http.RoundTripper

	mu     sync.Mutex
	status int
	body   bytes.Buffer
	err    error
}

func newExchangeRecorder(base http.RoundTripper) *exchangeRecorder {
	if base == nil {
		base = http.DefaultTransport
	}
	return &exchangeRecorder{base: base}
}

func (r *exchangeRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.base.RoundTrip(req)
	if err != nil {
		r.setErr(err)
		return nil, err
	}
	r.mu.Lock()
	r.status = resp.StatusCode
	r.mu.Unlock()
	resp.Body = &recordedBody{ReadCloser: resp.Body, rec: r}
	return resp, nil
}

func (r *exchangeRecorder) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *exchangeRecorder) transportError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *exchangeRecorder) statusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *exchangeRecorder) rawBody() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

// recordedBody tees what oauth2 reads into the recorder.
type recordedBody struct {
	io.ReadCloser
	rec *exchangeRecorder
}

func (b *recordedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.rec.mu.Lock()
		if room := maxRecordedBody - b.rec.body.Len(); room > 0 {
			if n < room {
				room = n
			}
			b.rec.body.Write(p[:room])
		}
		b.rec.mu.Unlock()
	}
	if err != nil && !errors.Is(err, io.EOF) {
		b.rec.setErr(err)
	}
	return n, err
}

func upstreamError(err error) error {
	return fmt.Errorf("token endpoint: %w: %w", apperrors.ErrUpstreamUnavailable, err)
}

// expiresIn reads the token lifetime in seconds from the raw response. JSON
// bodies decode numbers as float64, form encoded bodies as int64 or string.
func expiresIn(tok *oauth2.Token, field string) (int64, bool) {
	switch v := tok.Extra(field).(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, v >= 0
	case json.Number:
		n, err := v.Int64()
		return n, err == nil && n >= 0
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil && n >= 0
	}
	return 0, false
}
