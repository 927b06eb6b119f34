package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ferrington/bug-wars-client/internal/core/domain"
	"github.com/Ferrington/bug-wars-client/internal/core/outcome"
	"github.com/Ferrington/bug-wars-client/internal/core/ports"
	"github.com/Ferrington/bug-wars-client/internal/infrastructure/storage"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type stubAuthAPI struct {
	registerFn func(dto domain.RegisterDTO) (*http.Response, error)
	loginFn    func(dto domain.LoginDTO) (*http.Response, error)
	updateFn   func(dto domain.ProfileUpdateDTO) (*http.Response, error)
	refreshFn  func(token string) (*http.Response, error)
	doFn       func(req *http.Request) (*http.Response, error)

	mu           sync.Mutex
	refreshCalls int
	logoutTokens []string
}

func (a *stubAuthAPI) Register(_ context.Context, dto domain.RegisterDTO) (*http.Response, error) {
	return a.registerFn(dto)
}

func (a *stubAuthAPI) Login(_ context.Context, dto domain.LoginDTO) (*http.Response, error) {
	return a.loginFn(dto)
}

func (a *stubAuthAPI) Logout(_ context.Context, accessToken string) (*http.Response, error) {
	a.mu.Lock()
	a.logoutTokens = append(a.logoutTokens, accessToken)
	a.mu.Unlock()
	return jsonResponse(http.StatusNoContent, ""), nil
}

func (a *stubAuthAPI) UpdateProfile(_ context.Context, dto domain.ProfileUpdateDTO) (*http.Response, error) {
	return a.updateFn(dto)
}

func (a *stubAuthAPI) RefreshToken(_ context.Context, token string) (*http.Response, error) {
	a.mu.Lock()
	a.refreshCalls++
	a.mu.Unlock()
	if a.refreshFn == nil {
		return nil, errors.New("refresh not stubbed")
	}
	return a.refreshFn(token)
}

func (a *stubAuthAPI) Me(context.Context) (*http.Response, error) {
	return jsonResponse(http.StatusOK, `{}`), nil
}

func (a *stubAuthAPI) Do(req *http.Request) (*http.Response, error) {
	return a.doFn(req)
}

func (a *stubAuthAPI) refreshCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshCalls
}

// inlineNotifier runs jobs synchronously so tests can observe them.
type inlineNotifier struct{}

func (inlineNotifier) Notify(_ string, job func(ctx context.Context) error) {
	_ = job(context.Background())
}

type recordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNavigator) Navigate(route string) {
	n.mu.Lock()
	n.routes = append(n.routes, route)
	n.mu.Unlock()
}

func (n *recordingNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.routes)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const aliceLogin = `{"username":"alice","roles":["user"],"accessToken":"AT1","refreshToken":"RT1"}`

func newSession(api *stubAuthAPI, store *storage.Memory) (*SessionService, *recordingNavigator) {
	nav := &recordingNavigator{}
	svc := NewSessionService(api, store, nav, inlineNotifier{}, zerolog.Nop(), SessionOptions{RedirectOnForcedLogout: true})
	return svc, nav
}

func loggedInStore() *storage.Memory {
	return storage.NewMemory(map[string]string{
		ports.KeyUser:         `{"username":"alice","roles":["user"]}`,
		ports.KeyAccessToken:  "AT1",
		ports.KeyRefreshToken: "RT1",
	})
}

func assertLoggedOut(t *testing.T, svc *SessionService, store *storage.Memory) {
	t.Helper()
	if u := svc.User(); !u.IsEmpty() || len(u.Roles) != 0 {
		t.Fatalf("expected sentinel user, got %+v", u)
	}
	if svc.AccessToken() != "" {
		t.Fatalf("expected access token cleared, got %q", svc.AccessToken())
	}
	if snap := store.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected storage empty, got %v", snap)
	}
}

// ---------------------------------------------------------------------------
// Login / logout
// ---------------------------------------------------------------------------

func TestSessionService_Login_Success(t *testing.T) {
	api := &stubAuthAPI{loginFn: func(dto domain.LoginDTO) (*http.Response, error) {
		if dto.Username != "alice" || dto.Password != "secret" {
			t.Fatalf("unexpected dto: %+v", dto)
		}
		return jsonResponse(http.StatusOK, aliceLogin), nil
	}}
	store := storage.NewMemory(nil)
	svc, nav := newSession(api, store)

	o := svc.Login(context.Background(), domain.LoginDTO{Username: "alice", Password: "secret"})

	if !o.OK() {
		t.Fatalf("expected success, got %+v", o)
	}
	u := svc.User()
	if u.Username != "alice" || len(u.Roles) != 1 || u.Roles[0] != "user" {
		t.Fatalf("unexpected user: %+v", u)
	}
	snap := store.Snapshot()
	if snap[ports.KeyUser] != `{"username":"alice","roles":["user"]}` {
		t.Fatalf("unexpected stored user: %q", snap[ports.KeyUser])
	}
	if snap[ports.KeyAccessToken] != "AT1" || snap[ports.KeyRefreshToken] != "RT1" {
		t.Fatalf("unexpected stored tokens: %v", snap)
	}
	if svc.AuthError() != "" {
		t.Fatalf("expected empty auth error, got %q", svc.AuthError())
	}
	if svc.AccessToken() != "AT1" {
		t.Fatalf("expected bearer credential AT1, got %q", svc.AccessToken())
	}
	if nav.count() != 1 || nav.routes[0] != ports.RouteHome {
		t.Fatalf("expected navigation home, got %v", nav.routes)
	}
}

func TestSessionService_Login_Failure(t *testing.T) {
	api := &stubAuthAPI{loginFn: func(domain.LoginDTO) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"message":"bad credentials"}`), nil
	}}
	store := storage.NewMemory(nil)
	svc, nav := newSession(api, store)

	o := svc.Login(context.Background(), domain.LoginDTO{Username: "alice", Password: "wrong"})

	const want = "Your login attempt failed. Please try again."
	if o.OK() || o.Error != want {
		t.Fatalf("expected error %q, got %+v", want, o)
	}
	if !svc.User().IsEmpty() {
		t.Fatalf("expected sentinel user, got %+v", svc.User())
	}
	if svc.AuthError() != want {
		t.Fatalf("expected auth error %q, got %q", want, svc.AuthError())
	}
	if len(store.Snapshot()) != 0 || nav.count() != 0 {
		t.Fatalf("failed login must not persist or navigate")
	}

	svc.ClearAuthError()
	if svc.AuthError() != "" {
		t.Fatalf("expected auth error cleared")
	}
}

func TestSessionService_Login_BlankCredentials(t *testing.T) {
	api := &stubAuthAPI{loginFn: func(domain.LoginDTO) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{}`), nil
	}}
	svc, _ := newSession(api, storage.NewMemory(nil))

	o := svc.Login(context.Background(), domain.LoginDTO{})

	if o.Error != "Username and Password cannot be blank." || o.Kind != outcome.KindValidation {
		t.Fatalf("unexpected outcome: %+v", o)
	}
}

func TestSessionService_Login_UnusableBody(t *testing.T) {
	api := &stubAuthAPI{loginFn: func(domain.LoginDTO) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"username":"alice"}`), nil
	}}
	store := storage.NewMemory(nil)
	svc, _ := newSession(api, store)

	o := svc.Login(context.Background(), domain.LoginDTO{Username: "alice", Password: "secret"})

	if o.OK() || o.Kind != outcome.KindUnmappedStatus {
		t.Fatalf("expected unmapped error, got %+v", o)
	}
	if svc.IsAuthenticated() || len(store.Snapshot()) != 0 {
		t.Fatalf("unusable body must not log in")
	}
}

func TestSessionService_Logout_Idempotent(t *testing.T) {
	api := &stubAuthAPI{loginFn: func(domain.LoginDTO) (*http.Response, error) {
		return jsonResponse(http.StatusOK, aliceLogin), nil
	}}
	store := storage.NewMemory(nil)
	svc, nav := newSession(api, store)
	_ = svc.Login(context.Background(), domain.LoginDTO{Username: "alice", Password: "secret"})

	svc.Logout(context.Background(), true)
	assertLoggedOut(t, svc, store)

	svc.Logout(context.Background(), false)
	assertLoggedOut(t, svc, store)

	if len(api.logoutTokens) != 2 || api.logoutTokens[0] != "AT1" || api.logoutTokens[1] != "" {
		t.Fatalf("unexpected logout notifications: %v", api.logoutTokens)
	}
	// login + first logout; the second logout asked for no redirect.
	if nav.count() != 2 {
		t.Fatalf("expected 2 navigations, got %v", nav.routes)
	}
}

func TestSessionService_Subscribe(t *testing.T) {
	api := &stubAuthAPI{loginFn: func(domain.LoginDTO) (*http.Response, error) {
		return jsonResponse(http.StatusOK, aliceLogin), nil
	}}
	svc, _ := newSession(api, storage.NewMemory(nil))

	var seen []string
	unsubscribe := svc.Subscribe(func(u domain.User) { seen = append(seen, u.Username) })

	_ = svc.Login(context.Background(), domain.LoginDTO{Username: "alice", Password: "secret"})
	svc.Logout(context.Background(), false)
	unsubscribe()
	_ = svc.Login(context.Background(), domain.LoginDTO{Username: "alice", Password: "secret"})

	if len(seen) != 2 || seen[0] != "alice" || seen[1] != "" {
		t.Fatalf("unexpected notifications: %v", seen)
	}
}

// ---------------------------------------------------------------------------
// Register / profile
// ---------------------------------------------------------------------------

func TestSessionService_Register_DoesNotLogIn(t *testing.T) {
	api := &stubAuthAPI{registerFn: func(domain.RegisterDTO) (*http.Response, error) {
		return jsonResponse(http.StatusCreated, `{"username":"bob","roles":["user"]}`), nil
	}}
	store := storage.NewMemory(nil)
	svc, _ := newSession(api, store)

	o := svc.Register(context.Background(), domain.RegisterDTO{Username: "bob", Password: "pw"})

	if !o.OK() || o.StatusCode != http.StatusCreated {
		t.Fatalf("expected success, got %+v", o)
	}
	if svc.IsAuthenticated() || len(store.Snapshot()) != 0 {
		t.Fatalf("register must not change session state")
	}
}

func TestSessionService_Register_ConflictMessageFromBody(t *testing.T) {
	api := &stubAuthAPI{registerFn: func(domain.RegisterDTO) (*http.Response, error) {
		return jsonResponse(http.StatusConflict, `{"message":"Username already taken."}`), nil
	}}
	svc, _ := newSession(api, storage.NewMemory(nil))

	o := svc.Register(context.Background(), domain.RegisterDTO{Username: "bob", Password: "pw"})

	if o.Error != "Username already taken." {
		t.Fatalf("unexpected outcome: %+v", o)
	}
	if svc.AuthError() != "" {
		t.Fatalf("register errors are returned, not stored")
	}
}

func TestSessionService_UpdateUserProfile_SyncsUsername(t *testing.T) {
	api := &stubAuthAPI{updateFn: func(dto domain.ProfileUpdateDTO) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"username":"alicia","roles":["user"]}`), nil
	}}
	store := loggedInStore()
	svc, _ := newSession(api, store)
	svc.Load(context.Background())

	o := svc.UpdateUserProfile(context.Background(), domain.ProfileUpdateDTO{Username: "alicia"})

	if !o.OK() {
		t.Fatalf("expected success, got %+v", o)
	}
	if u := svc.User(); u.Username != "alicia" || u.Roles[0] != "user" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if got := store.Snapshot()[ports.KeyUser]; got != `{"username":"alicia","roles":["user"]}` {
		t.Fatalf("stored user not updated: %q", got)
	}
}

func TestSessionService_UpdateUserProfile_Errors(t *testing.T) {
	cases := map[int]string{
		http.StatusBadRequest:   "Invalid request.",
		http.StatusUnauthorized: "You must be logged in to update your profile.",
		http.StatusForbidden:    "You do not have permission to update this profile.",
		http.StatusNotFound:     "User not found.",
	}
	for status, want := range cases {
		api := &stubAuthAPI{updateFn: func(domain.ProfileUpdateDTO) (*http.Response, error) {
			return jsonResponse(status, `{}`), nil
		}}
		svc, _ := newSession(api, loggedInStore())
		svc.Load(context.Background())

		o := svc.UpdateUserProfile(context.Background(), domain.ProfileUpdateDTO{Username: "x"})

		if o.Error != want {
			t.Fatalf("status %d: expected %q, got %+v", status, want, o)
		}
		if svc.User().Username != "alice" {
			t.Fatalf("status %d: failed update must not touch user", status)
		}
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestSessionService_Load_RoundTrip(t *testing.T) {
	api := &stubAuthAPI{
		loginFn: func(domain.LoginDTO) (*http.Response, error) {
			return jsonResponse(http.StatusOK, aliceLogin), nil
		},
		refreshFn: func(token string) (*http.Response, error) {
			if token != "RT1" {
				t.Errorf("unexpected refresh token %q", token)
			}
			return jsonResponse(http.StatusOK, `{"accessToken":"AT2"}`), nil
		},
	}
	store := storage.NewMemory(nil)
	first, _ := newSession(api, store)
	_ = first.Login(context.Background(), domain.LoginDTO{Username: "alice", Password: "secret"})

	fresh, _ := newSession(api, store)
	fresh.Load(context.Background())

	u := fresh.User()
	if u.Username != "alice" || len(u.Roles) != 1 || u.Roles[0] != "user" {
		t.Fatalf("unexpected user after reload: %+v", u)
	}
	if fresh.AccessToken() != "AT2" || store.Snapshot()[ports.KeyAccessToken] != "AT2" {
		t.Fatalf("expected refreshed access token AT2")
	}
}

func TestSessionService_Load_EmptyStorage(t *testing.T) {
	api := &stubAuthAPI{}
	store := storage.NewMemory(nil)
	svc, nav := newSession(api, store)

	svc.Load(context.Background())

	if svc.IsAuthenticated() {
		t.Fatalf("expected unauthenticated")
	}
	if api.refreshCount() != 0 {
		t.Fatalf("no refresh token, no network call expected")
	}
	if nav.count() != 0 {
		t.Fatalf("unexpected navigation")
	}
}

func TestSessionService_Load_RefreshFailureIsSwallowed(t *testing.T) {
	api := &stubAuthAPI{refreshFn: func(string) (*http.Response, error) {
		return nil, errors.New("network down")
	}}
	store := loggedInStore()
	svc, _ := newSession(api, store)

	svc.Load(context.Background())

	if svc.User().Username != "alice" || svc.AccessToken() != "AT1" {
		t.Fatalf("expected stored session adopted despite refresh failure")
	}
}

func TestSessionService_Load_OnlyOnce(t *testing.T) {
	api := &stubAuthAPI{refreshFn: func(string) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"accessToken":"AT2"}`), nil
	}}
	svc, _ := newSession(api, loggedInStore())

	svc.Load(context.Background())
	svc.Load(context.Background())

	if api.refreshCount() != 1 {
		t.Fatalf("expected a single startup refresh, got %d", api.refreshCount())
	}
}

func TestSessionService_Load_ShapeMismatchForcesLogout(t *testing.T) {
	stored := []string{
		`{"username":"alice","roles":["user"],"admin":true}`,
		`{"username":"alice"}`,
		`{"name":"alice","roles":[]}`,
		`null`,
		`{"username":"alice","roles":"user"}`,
		`not json at all`,
		`{"username":null,"roles":null}`,
		`{"username":"","roles":[]}`,
	}
	for _, raw := range stored {
		api := &stubAuthAPI{refreshFn: func(string) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"accessToken":"AT2"}`), nil
		}}
		store := storage.NewMemory(map[string]string{
			ports.KeyUser:         raw,
			ports.KeyAccessToken:  "AT1",
			ports.KeyRefreshToken: "RT1",
		})
		svc, nav := newSession(api, store)

		svc.Load(context.Background())

		assertLoggedOut(t, svc, store)
		if nav.count() != 1 {
			t.Fatalf("%s: expected forced logout to navigate home", raw)
		}
	}
}

func TestSessionService_CorruptFileStorageRecovers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(`{"user":"{\"username\":\"alice\"`), 0o600); err != nil {
		t.Fatal(err)
	}
	api := &stubAuthAPI{
		loginFn: func(domain.LoginDTO) (*http.Response, error) {
			return jsonResponse(http.StatusOK, aliceLogin), nil
		},
		refreshFn: func(string) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"accessToken":"AT2"}`), nil
		},
	}
	nav := &recordingNavigator{}
	svc := NewSessionService(api, storage.NewFile(path), nav, inlineNotifier{}, zerolog.Nop(), SessionOptions{RedirectOnForcedLogout: true})

	svc.Load(context.Background())

	if svc.IsAuthenticated() || nav.count() != 1 {
		t.Fatalf("expected forced logout, authenticated=%v routes=%v", svc.IsAuthenticated(), nav.routes)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected corrupt file removed, stat err=%v", err)
	}

	if o := svc.Login(context.Background(), domain.LoginDTO{Username: "alice", Password: "secret"}); !o.OK() {
		t.Fatalf("expected login success, got %+v", o)
	}

	fresh := NewSessionService(api, storage.NewFile(path), nil, inlineNotifier{}, zerolog.Nop(), SessionOptions{})
	fresh.Load(context.Background())
	if fresh.User().Username != "alice" || fresh.AccessToken() != "AT2" {
		t.Fatalf("expected login persisted across restart, got %+v token=%q", fresh.User(), fresh.AccessToken())
	}
}

// failingStorage rejects writes to one key.
type failingStorage struct {
	*storage.Memory
	failKey string
}

func (f failingStorage) Set(ctx context.Context, key, value string) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

func TestSessionService_Login_PersistFailure(t *testing.T) {
	api := &stubAuthAPI{loginFn: func(domain.LoginDTO) (*http.Response, error) {
		return jsonResponse(http.StatusOK, aliceLogin), nil
	}}
	mem := storage.NewMemory(nil)
	nav := &recordingNavigator{}
	svc := NewSessionService(api, failingStorage{Memory: mem, failKey: ports.KeyRefreshToken}, nav, inlineNotifier{}, zerolog.Nop(), SessionOptions{})

	o := svc.Login(context.Background(), domain.LoginDTO{Username: "alice", Password: "secret"})

	const want = "Unable to save your session. Please try again."
	if o.OK() || o.Kind != outcome.KindStorage || o.Error != want {
		t.Fatalf("expected storage failure outcome, got %+v", o)
	}
	if svc.IsAuthenticated() || svc.AccessToken() != "" {
		t.Fatalf("unsaved session must not be adopted")
	}
	if svc.AuthError() != want {
		t.Fatalf("expected auth error %q, got %q", want, svc.AuthError())
	}
	if snap := mem.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected partial session removed, got %v", snap)
	}
	if nav.count() != 0 {
		t.Fatalf("unexpected navigation %v", nav.routes)
	}
}

// ---------------------------------------------------------------------------
// Refresh
// ---------------------------------------------------------------------------

func TestSessionService_Refresh_NoToken(t *testing.T) {
	api := &stubAuthAPI{}
	svc, _ := newSession(api, storage.NewMemory(nil))

	resp, err := svc.AttemptToRefreshToken(context.Background(), nil)

	if !errors.Is(err, domain.ErrNoRefreshToken) || resp != nil {
		t.Fatalf("expected ErrNoRefreshToken, got %v %v", resp, err)
	}
	if api.refreshCount() != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestSessionService_Refresh_WithoutRetry(t *testing.T) {
	api := &stubAuthAPI{refreshFn: func(string) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"accessToken":"AT2"}`), nil
	}}
	store := loggedInStore()
	svc, _ := newSession(api, store)

	resp, err := svc.AttemptToRefreshToken(context.Background(), nil)

	if err != nil || resp != nil {
		t.Fatalf("expected (nil, nil), got %v %v", resp, err)
	}
	if store.Snapshot()[ports.KeyAccessToken] != "AT2" || svc.AccessToken() != "AT2" {
		t.Fatalf("expected access token AT2 persisted")
	}
}

func TestSessionService_Refresh_ThenRetry(t *testing.T) {
	api := &stubAuthAPI{
		refreshFn: func(token string) (*http.Response, error) {
			if token != "RT1" {
				t.Errorf("unexpected refresh token %q", token)
			}
			return jsonResponse(http.StatusOK, `{"accessToken":"AT2"}`), nil
		},
		doFn: func(req *http.Request) (*http.Response, error) {
			if got := req.Header.Get("Authorization"); got != "Bearer AT2" {
				t.Fatalf("retry carried %q", got)
			}
			body, _ := io.ReadAll(req.Body)
			if string(body) != `{"username":"alicia"}` {
				t.Fatalf("retry body not replayed: %q", body)
			}
			return jsonResponse(http.StatusOK, `{"retried":true}`), nil
		},
	}
	svc, _ := newSession(api, loggedInStore())

	original, _ := http.NewRequest(http.MethodPut, "http://api.test/auth/update-profile", bytes.NewReader([]byte(`{"username":"alicia"}`)))
	original.Header.Set("Authorization", "Bearer AT1")
	_, _ = io.ReadAll(original.Body) // the first attempt consumed it

	resp, err := svc.AttemptToRefreshToken(context.Background(), original)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]bool
	_ = json.NewDecoder(resp.Body).Decode(&got)
	if !got["retried"] {
		t.Fatalf("expected the retried response, got %v", got)
	}
	if original.Header.Get("Authorization") != "Bearer AT1" {
		t.Fatalf("original request must not be mutated")
	}
}

func TestSessionService_Refresh_Forbidden_ForcesLogout(t *testing.T) {
	api := &stubAuthAPI{
		refreshFn: func(string) (*http.Response, error) {
			return jsonResponse(http.StatusForbidden, `{"message":"refresh token expired"}`), nil
		},
		doFn: func(*http.Request) (*http.Response, error) {
			t.Fatalf("must not retry after forced logout")
			return nil, nil
		},
	}
	store := loggedInStore()
	svc, nav := newSession(api, store)

	original, _ := http.NewRequest(http.MethodGet, "http://api.test/auth/me", nil)
	resp, err := svc.AttemptToRefreshToken(context.Background(), original)

	if err != nil || resp != nil {
		t.Fatalf("expected handled sentinel (nil, nil), got %v %v", resp, err)
	}
	assertLoggedOut(t, svc, store)
	if nav.count() == 0 {
		t.Fatalf("expected forced logout to navigate home")
	}
}

func TestSessionService_Refresh_Forbidden_NoRedirectOption(t *testing.T) {
	api := &stubAuthAPI{refreshFn: func(string) (*http.Response, error) {
		return jsonResponse(http.StatusForbidden, `{}`), nil
	}}
	store := loggedInStore()
	nav := &recordingNavigator{}
	svc := NewSessionService(api, store, nav, inlineNotifier{}, zerolog.Nop(), SessionOptions{RedirectOnForcedLogout: false})

	_, _ = svc.AttemptToRefreshToken(context.Background(), nil)

	assertLoggedOut(t, svc, store)
	if nav.count() != 0 {
		t.Fatalf("expected no navigation, got %v", nav.routes)
	}
}

func TestSessionService_Refresh_OtherFailurePropagates(t *testing.T) {
	api := &stubAuthAPI{refreshFn: func(string) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{}`), nil
	}}
	store := loggedInStore()
	svc, _ := newSession(api, store)

	_, err := svc.AttemptToRefreshToken(context.Background(), nil)

	var se *outcome.StatusError
	if !errors.As(err, &se) || se.Status() != http.StatusInternalServerError {
		t.Fatalf("expected wrapped StatusError 500, got %v", err)
	}
	if len(store.Snapshot()) != 3 {
		t.Fatalf("non-403 failure must leave storage untouched")
	}
}

func TestSessionService_Refresh_ConcurrentCallsShareOneRequest(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Bool
	api := &stubAuthAPI{refreshFn: func(string) (*http.Response, error) {
		started.Store(true)
		<-release
		return jsonResponse(http.StatusOK, `{"accessToken":"AT2"}`), nil
	}}
	svc, _ := newSession(api, loggedInStore())

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AttemptToRefreshToken(context.Background(), nil)
			errs <- err
		}()
	}

	deadline := time.Now().Add(time.Second)
	for !started.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond) // let the other callers join the flight
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n := api.refreshCount(); n != 1 {
		t.Fatalf("expected a single refresh request, got %d", n)
	}
	if svc.AccessToken() != "AT2" {
		t.Fatalf("expected AT2, got %q", svc.AccessToken())
	}
}

func TestSessionService_Refresh_CallerContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	api := &stubAuthAPI{refreshFn: func(string) (*http.Response, error) {
		<-release
		return jsonResponse(http.StatusOK, `{"accessToken":"AT2"}`), nil
	}}
	svc, _ := newSession(api, loggedInStore())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := svc.AttemptToRefreshToken(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
