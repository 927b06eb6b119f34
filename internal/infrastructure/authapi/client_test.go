package authapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ferrington/bug-wars-client/internal/api"
	"github.com/Ferrington/bug-wars-client/internal/core/domain"
	"github.com/Ferrington/bug-wars-client/internal/core/ports"
	"github.com/Ferrington/bug-wars-client/internal/core/service"
	"github.com/Ferrington/bug-wars-client/internal/infrastructure/authapi"
	"github.com/Ferrington/bug-wars-client/internal/infrastructure/db/memory"
	"github.com/Ferrington/bug-wars-client/internal/infrastructure/queue"
	"github.com/Ferrington/bug-wars-client/internal/infrastructure/storage"
)

// gate sits in front of the reference API. rejectMe makes the next
// /auth/me answer 401 as if the access token had expired.
type gate struct {
	next     http.Handler
	rejectMe atomic.Bool
	refresh  atomic.Int32
}

func (g *gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/auth/refresh-token" {
		g.refresh.Add(1)
	}
	if r.URL.Path == "/auth/me" && g.rejectMe.CompareAndSwap(true, false) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid token."}`))
		return
	}
	g.next.ServeHTTP(w, r)
}

type harness struct {
	gate     *gate
	url      string
	client   *authapi.Client
	store    *storage.Memory
	notifier *queue.Notifier
	session  *service.SessionService
}

func newServer(t *testing.T) (*gate, string) {
	t.Helper()
	authService := service.NewAuthService(memory.NewAccountRepository(), memory.NewRefreshTokenStore(), "it-secret", 0, 0, zerolog.Nop())
	g := &gate{next: api.NewRouter(api.Deps{AuthService: authService, JWTSecret: "it-secret", Log: zerolog.Nop()})}
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return g, srv.URL
}

func newHarness(t *testing.T, g *gate, url string, store *storage.Memory) *harness {
	t.Helper()
	tr := authapi.NewTransport(nil, zerolog.Nop())
	client, err := authapi.NewClient(url, authapi.NewHTTPClient(2*time.Second, tr))
	require.NoError(t, err)

	notifier := queue.NewNotifier(time.Second, zerolog.Nop())
	t.Cleanup(func() { _ = notifier.Close(context.Background()) })

	session := service.NewSessionService(client, store, nil, notifier, zerolog.Nop(), service.SessionOptions{RedirectOnForcedLogout: true})
	tr.Bind(session)
	session.Load(context.Background())

	return &harness{gate: g, url: url, client: client, store: store, notifier: notifier, session: session}
}

func loggedIn(t *testing.T) *harness {
	t.Helper()
	g, url := newServer(t)
	h := newHarness(t, g, url, storage.NewMemory(nil))
	ctx := context.Background()

	o := h.session.Register(ctx, domain.RegisterDTO{Username: "alice", Password: "secret"})
	require.True(t, o.OK(), "register: %+v", o)
	o = h.session.Login(ctx, domain.LoginDTO{Username: "alice", Password: "secret"})
	require.True(t, o.OK(), "login: %+v", o)
	return h
}

func TestIntegration_LoginPersistsSession(t *testing.T) {
	h := loggedIn(t)

	assert.Equal(t, "alice", h.session.User().Username)
	assert.Equal(t, []string{"user"}, h.session.User().Roles)

	snap := h.store.Snapshot()
	assert.JSONEq(t, `{"username":"alice","roles":["user"]}`, snap[ports.KeyUser])
	assert.NotEmpty(t, snap[ports.KeyAccessToken])
	assert.NotEmpty(t, snap[ports.KeyRefreshToken])

	resp, err := h.client.Me(context.Background())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntegration_LoginFailure(t *testing.T) {
	g, url := newServer(t)
	h := newHarness(t, g, url, storage.NewMemory(nil))

	o := h.session.Login(context.Background(), domain.LoginDTO{Username: "ghost", Password: "x"})
	assert.Equal(t, "Your login attempt failed. Please try again.", o.Error)
	assert.Equal(t, o.Error, h.session.AuthError())

	o = h.session.Login(context.Background(), domain.LoginDTO{})
	assert.Equal(t, "Username and Password cannot be blank.", o.Error)
}

func TestIntegration_RegisterConflict(t *testing.T) {
	h := loggedIn(t)

	o := h.session.Register(context.Background(), domain.RegisterDTO{Username: "alice", Password: "again"})
	assert.Equal(t, "Username already taken.", o.Error)
}

func TestIntegration_ExpiredAccessTokenIsRefreshedAndRetried(t *testing.T) {
	h := loggedIn(t)
	before := h.gate.refresh.Load()
	h.gate.rejectMe.Store(true)

	resp, err := h.client.Me(context.Background())
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, before+1, h.gate.refresh.Load())
	assert.True(t, h.session.IsAuthenticated())
}

func TestIntegration_RevokedRefreshTokenForcesLogout(t *testing.T) {
	h := loggedIn(t)
	ctx := context.Background()

	// Revoke server side, behind the session's back.
	resp, err := h.client.Logout(ctx, h.session.AccessToken())
	require.NoError(t, err)
	resp.Body.Close()

	h.gate.rejectMe.Store(true)
	resp, err = h.client.Me(ctx)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, h.session.IsAuthenticated())
	assert.Empty(t, h.store.Snapshot())
}

func TestIntegration_LogoutRevokesServerSide(t *testing.T) {
	h := loggedIn(t)
	ctx := context.Background()
	refresh := h.store.Snapshot()[ports.KeyRefreshToken]

	h.session.Logout(ctx, true)
	require.NoError(t, h.notifier.Close(ctx))

	assert.Empty(t, h.store.Snapshot())
	resp, err := h.client.RefreshToken(ctx, refresh)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIntegration_SessionSurvivesRestart(t *testing.T) {
	h := loggedIn(t)

	restarted := newHarness(t, h.gate, h.url, h.store)

	assert.Equal(t, "alice", restarted.session.User().Username)
	assert.NotEmpty(t, restarted.session.AccessToken())
}

func TestIntegration_UpdateProfile(t *testing.T) {
	h := loggedIn(t)

	o := h.session.UpdateUserProfile(context.Background(), domain.ProfileUpdateDTO{Username: "alicia"})
	require.True(t, o.OK(), "update: %+v", o)

	assert.Equal(t, "alicia", h.session.User().Username)
	assert.JSONEq(t, `{"username":"alicia","roles":["user"]}`, h.store.Snapshot()[ports.KeyUser])
}
