package authapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ferrington/bug-wars-client/internal/core/ports"
)

const headerRequestID = "X-Request-ID"

// Paths whose 401 means "bad credentials", never "expired access token".
var noRefreshPaths = []string{pathLogin, pathRegister, pathLogout, pathRefreshToken}

type retriedKey struct{}

func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// Session is what the Transport needs from the session store.
type Session interface {
	ports.TokenSource
	ports.Refresher
}

type binding struct {
	session Session
}

// Transport is the request-preparation interceptor. Every request gets the
// current bearer credential, a request id and a JSON Accept header. A 401 on
// an authenticated endpoint triggers one refresh-and-retry through the bound
// Session.
type Transport struct {
	base    http.RoundTripper
	log     zerolog.Logger
	session atomic.Pointer[binding]
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, log zerolog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, log: log.With().Str("component", "authapi").Logger()}
}

// Bind attaches the session store. Until it is called requests go out
// without credentials and 401s are returned as-is.
func (t *Transport) Bind(s Session) {
	t.session.Store(&binding{session: s})
}

func (t *Transport) bound() Session {
	if b := t.session.Load(); b != nil {
		return b.session
	}
	return nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	session := t.bound()

	resp, err := t.base.RoundTrip(t.prepare(req, session))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if session == nil || isRetried(req.Context()) || !refreshable(req) {
		return resp, nil
	}

	marked := req.WithContext(withRetried(req.Context()))
	retried, rerr := session.AttemptToRefreshToken(req.Context(), marked)
	if rerr != nil {
		t.log.Warn().Err(rerr).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Msg("refresh after 401 failed, giving up on request")
		return resp, nil
	}
	if retried == nil {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return retried, nil
}

func (t *Transport) prepare(req *http.Request, session Session) *http.Request {
	out := req.Clone(req.Context())
	if out.Header.Get("Authorization") == "" && session != nil {
		if token := session.AccessToken(); token != "" {
			out.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if out.Header.Get(headerRequestID) == "" {
		out.Header.Set(headerRequestID, uuid.NewString())
	}
	if out.Header.Get("Accept") == "" {
		out.Header.Set("Accept", "application/json")
	}
	return out
}

func refreshable(req *http.Request) bool {
	for _, p := range noRefreshPaths {
		if strings.HasSuffix(req.URL.Path, p) {
			return false
		}
	}
	return true
}
