package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Ferrington/bug-wars-client/internal/core/domain"
	"github.com/Ferrington/bug-wars-client/internal/core/outcome"
	"github.com/Ferrington/bug-wars-client/internal/core/ports"
	"github.com/Ferrington/bug-wars-client/internal/metrics"
)

// Status tables for the remote auth API.
var (
	registerStatuses = outcome.Config{
		SuccessStatuses: []int{http.StatusCreated},
		ErrorStatuses: map[int]outcome.Message{
			http.StatusBadRequest: outcome.Text("All fields are required."),
			http.StatusConflict:   outcome.FieldMessage("message"),
		},
	}

	loginStatuses = outcome.Config{
		SuccessStatuses: []int{http.StatusOK},
		ErrorStatuses: map[int]outcome.Message{
			http.StatusBadRequest:   outcome.Text("Username and Password cannot be blank."),
			http.StatusUnauthorized: outcome.Text("Your login attempt failed. Please try again."),
		},
	}

	updateProfileStatuses = outcome.Config{
		SuccessStatuses: []int{http.StatusOK},
		ErrorStatuses: map[int]outcome.Message{
			http.StatusBadRequest:   outcome.Text("Invalid request."),
			http.StatusUnauthorized: outcome.Text("You must be logged in to update your profile."),
			http.StatusForbidden:    outcome.Text("You do not have permission to update this profile."),
			http.StatusNotFound:     outcome.Text("User not found."),
		},
	}
)

var (
	errSessionEnded        = errors.New("session ended by server")
	errBodyNotReplayable   = errors.New("request body cannot be replayed")
	errUnexpectedUserShape = errors.New("stored user does not match expected shape")
)

const refreshFlightKey = "refresh"

const msgSessionNotSaved = "Unable to save your session. Please try again."

// SessionOptions tunes SessionService behaviour.
type SessionOptions struct {
	// RedirectOnForcedLogout navigates home when the server rejects the
	// refresh token.
	RedirectOnForcedLogout bool
}

// SessionService is the client-side session store. It owns the current
// user, the last authentication error and the bearer credential, mirrors
// them into durable storage and renews the access token on demand.
//
// It is safe for concurrent use.
type SessionService struct {
	api      ports.AuthAPI
	store    ports.Storage
	nav      ports.Navigator
	notifier ports.Notifier
	log      zerolog.Logger
	opts     SessionOptions

	mu          sync.RWMutex
	user        domain.User
	authError   string
	accessToken string

	subMu   sync.Mutex
	subs    map[int]func(domain.User)
	nextSub int

	refresh  singleflight.Group
	loadOnce sync.Once
}

// NewSessionService wires a session store. nav and notifier may be nil.
// Call Load once before use to hydrate state from storage.
func NewSessionService(
	api ports.AuthAPI,
	store ports.Storage,
	nav ports.Navigator,
	notifier ports.Notifier,
	log zerolog.Logger,
	opts SessionOptions,
) *SessionService {
	log = log.With().Str("component", "session").Logger()
	if nav == nil {
		nav = ports.NavigatorFunc(func(string) {})
	}
	if notifier == nil {
		notifier = goNotifier{log: log}
	}
	return &SessionService{
		api:      api,
		store:    store,
		nav:      nav,
		notifier: notifier,
		log:      log,
		opts:     opts,
		user:     domain.EmptyUser(),
		subs:     make(map[int]func(domain.User)),
	}
}

// User returns a copy of the current user.
func (s *SessionService) User() domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone()
}

// AuthError returns the message of the last failed login.
func (s *SessionService) AuthError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authError
}

// IsAuthenticated reports whether a user is logged in.
func (s *SessionService) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.user.IsEmpty()
}

// AccessToken implements ports.TokenSource.
func (s *SessionService) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// ClearAuthError resets the authentication error.
func (s *SessionService) ClearAuthError() {
	s.mu.Lock()
	s.authError = ""
	s.mu.Unlock()
}

// Subscribe registers fn to be called with the new user after every change.
func (s *SessionService) Subscribe(fn func(domain.User)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Register creates an account. It does not log the new user in.
func (s *SessionService) Register(ctx context.Context, dto domain.RegisterDTO) outcome.Outcome {
	return outcome.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		return s.api.Register(ctx, dto)
	}, registerStatuses)
}

// Login authenticates against the remote API. On success the user and both
// tokens are persisted and the UI is sent home; on failure AuthError is set.
func (s *SessionService) Login(ctx context.Context, dto domain.LoginDTO) outcome.Outcome {
	o := outcome.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		return s.api.Login(ctx, dto)
	}, loginStatuses)

	if !o.OK() {
		s.failLogin(o)
		return o
	}

	var body domain.LoginResponse
	err := o.Decode(&body)
	if err == nil && (body.Username == "" || body.AccessToken == "" || body.RefreshToken == "") {
		err = errors.New("login response is missing fields")
	}
	if err != nil {
		failed := outcome.Unmapped(o.StatusCode)
		failed.Cause = err
		s.log.Error().Err(err).Msg("unusable login response")
		s.failLogin(failed)
		return failed
	}

	if err := s.successfulLogin(ctx, body); err != nil {
		failed := outcome.Failure(o.StatusCode, outcome.KindStorage, msgSessionNotSaved)
		failed.Cause = err
		s.log.Error().Err(err).Msg("failed to persist session")
		s.failLogin(failed)
		return failed
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return o
}

func (s *SessionService) failLogin(o outcome.Outcome) {
	s.mu.Lock()
	s.authError = o.Error
	s.mu.Unlock()
	metrics.LoginsTotal.WithLabelValues(string(o.Kind)).Inc()
}

// successfulLogin persists the session before adopting it. If any key cannot
// be written the partial session is removed again and nothing is adopted.
func (s *SessionService) successfulLogin(ctx context.Context, body domain.LoginResponse) error {
	user := domain.User{Username: body.Username, Roles: body.Roles}
	if user.Roles == nil {
		user.Roles = []string{}
	}
	rawUser, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	for _, kv := range [][2]string{
		{ports.KeyUser, string(rawUser)},
		{ports.KeyAccessToken, body.AccessToken},
		{ports.KeyRefreshToken, body.RefreshToken},
	} {
		if err := s.store.Set(ctx, kv[0], kv[1]); err != nil {
			s.removeAll(context.WithoutCancel(ctx))
			return fmt.Errorf("persist %s: %w", kv[0], err)
		}
	}

	s.mu.Lock()
	s.user = user.Clone()
	s.accessToken = body.AccessToken
	s.mu.Unlock()

	s.log.Info().Str("username", user.Username).Msg("logged in")
	s.publish(user)
	s.nav.Navigate(ports.RouteHome)
	return nil
}

// Logout ends the session locally and notifies the server without waiting
// for it. It never fails; calling it repeatedly is harmless.
func (s *SessionService) Logout(ctx context.Context, redirect bool) {
	s.logout(ctx, redirect, "user")
}

func (s *SessionService) logout(ctx context.Context, redirect bool, reason string) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	token := s.accessToken
	s.user = domain.EmptyUser()
	s.accessToken = ""
	s.mu.Unlock()

	s.removeAll(ctx)

	s.notifier.Notify("logout", func(ctx context.Context) error {
		resp, err := s.api.Logout(ctx, token)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	})

	metrics.LogoutsTotal.WithLabelValues(reason).Inc()
	s.log.Info().Str("reason", reason).Msg("logged out")
	s.publish(domain.EmptyUser())
	if redirect {
		s.nav.Navigate(ports.RouteHome)
	}
}

// UpdateUserProfile sends profile changes. When the server accepts a new
// username, the in-memory and stored user follow it; roles are untouched.
func (s *SessionService) UpdateUserProfile(ctx context.Context, dto domain.ProfileUpdateDTO) outcome.Outcome {
	o := outcome.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		return s.api.UpdateProfile(ctx, dto)
	}, updateProfileStatuses)

	if !o.OK() || dto.Username == "" {
		return o
	}

	s.mu.Lock()
	if s.user.IsEmpty() {
		s.mu.Unlock()
		return o
	}
	s.user.Username = dto.Username
	user := s.user.Clone()
	s.mu.Unlock()

	s.persistUser(ctx, user)
	s.publish(user)
	return o
}

// Load hydrates the store from durable storage. It first tries to renew the
// access token, then adopts the stored user if it has the expected shape and
// forces a logout otherwise. Only the first call has any effect.
func (s *SessionService) Load(ctx context.Context) {
	s.loadOnce.Do(func() { s.load(ctx) })
}

func (s *SessionService) load(ctx context.Context) {
	if token, ok, err := s.store.Get(ctx, ports.KeyAccessToken); err != nil {
		s.log.Error().Err(err).Msg("failed to read stored access token")
	} else if ok {
		s.mu.Lock()
		s.accessToken = token
		s.mu.Unlock()
	}

	if _, err := s.AttemptToRefreshToken(ctx, nil); err != nil {
		if errors.Is(err, domain.ErrNoRefreshToken) {
			s.log.Debug().Msg("no stored refresh token")
		} else {
			s.log.Warn().Err(err).Msg("startup token refresh failed")
		}
	}

	raw, ok, err := s.store.Get(ctx, ports.KeyUser)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read stored user, discarding stored session")
		s.logout(ctx, true, "corrupt_storage")
		return
	}
	if !ok {
		return
	}

	user, err := parseStoredUser(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("discarding stored session")
		s.logout(ctx, true, "corrupt_storage")
		return
	}

	s.mu.Lock()
	s.user = user.Clone()
	s.mu.Unlock()
	s.publish(user)
}

// AttemptToRefreshToken renews the access token with the stored refresh
// token. When original is non-nil it is re-issued with the new bearer
// credential and its response is returned instead.
//
// Concurrent callers share a single refresh request. If the server rejects
// the refresh token with 403 the session is ended and (nil, nil) is returned.
func (s *SessionService) AttemptToRefreshToken(ctx context.Context, original *http.Request) (*http.Response, error) {
	token, err := s.renewAccessToken(ctx)
	if errors.Is(err, errSessionEnded) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, nil
	}

	retry, err := withBearer(original, token)
	if err != nil {
		return nil, fmt.Errorf("retry %s %s: %w", original.Method, original.URL.Path, err)
	}
	return s.api.Do(retry)
}

func (s *SessionService) renewAccessToken(ctx context.Context) (string, error) {
	ch := s.refresh.DoChan(refreshFlightKey, func() (any, error) {
		// The flight is shared, so it must not die with the first caller.
		return s.requestAccessToken(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.RefreshTotal.WithLabelValues("shared").Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *SessionService) requestAccessToken(ctx context.Context) (string, error) {
	refreshToken, ok, err := s.store.Get(ctx, ports.KeyRefreshToken)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("refresh token: read storage: %w", err)
	}
	if !ok || refreshToken == "" {
		metrics.RefreshTotal.WithLabelValues("no_token").Inc()
		return "", domain.ErrNoRefreshToken
	}

	resp, err := s.api.RefreshToken(ctx, refreshToken)
	if err == nil && resp.StatusCode != http.StatusOK {
		se, bufErr := outcome.NewStatusError(resp)
		if bufErr != nil {
			err = bufErr
		} else {
			err = se
		}
	}
	if err != nil {
		var se *outcome.StatusError
		if errors.As(err, &se) && se.Status() == http.StatusForbidden {
			metrics.RefreshTotal.WithLabelValues("forced_logout").Inc()
			s.log.Info().Msg("refresh token rejected, ending session")
			s.logout(ctx, s.opts.RedirectOnForcedLogout, "forced")
			return "", errSessionEnded
		}
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	var body domain.RefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("refresh token: decode response: %w", err)
	}
	if body.AccessToken == "" {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("refresh token: %w", domain.ErrEmptyToken)
	}

	s.set(ctx, ports.KeyAccessToken, body.AccessToken)
	s.mu.Lock()
	s.accessToken = body.AccessToken
	s.mu.Unlock()

	metrics.RefreshTotal.WithLabelValues("ok").Inc()
	s.log.Debug().Msg("access token refreshed")
	return body.AccessToken, nil
}

func (s *SessionService) removeAll(ctx context.Context) {
	for _, key := range []string{ports.KeyAccessToken, ports.KeyRefreshToken, ports.KeyUser} {
		if err := s.store.Remove(ctx, key); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("failed to remove stored session key")
		}
	}
}

func (s *SessionService) persistUser(ctx context.Context, user domain.User) {
	raw, err := json.Marshal(user)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode user")
		return
	}
	s.set(ctx, ports.KeyUser, string(raw))
}

func (s *SessionService) set(ctx context.Context, key, value string) {
	if err := s.store.Set(ctx, key, value); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to persist session key")
	}
}

func (s *SessionService) publish(user domain.User) {
	s.subMu.Lock()
	subs := make([]func(domain.User), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(user.Clone())
	}
}

// parseStoredUser decodes a persisted user and insists that its key set is
// exactly the sentinel's. A stored user without a username is rejected too:
// only logged-in users are ever persisted.
func parseStoredUser(raw string) (domain.User, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return domain.User{}, fmt.Errorf("parse stored user: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if !slices.Equal(keys, userShapeKeys) {
		return domain.User{}, errUnexpectedUserShape
	}

	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return domain.User{}, fmt.Errorf("parse stored user: %w", err)
	}
	if user.Username == "" {
		return domain.User{}, errUnexpectedUserShape
	}
	if user.Roles == nil {
		user.Roles = []string{}
	}
	return user, nil
}

var userShapeKeys = func() []string {
	raw, _ := json.Marshal(domain.EmptyUser())
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(raw, &fields)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}()

func withBearer(original *http.Request, token string) (*http.Request, error) {
	retry := original.Clone(original.Context())
	if original.Body != nil && original.Body != http.NoBody {
		if original.GetBody == nil {
			return nil, errBodyNotReplayable
		}
		body, err := original.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+token)
	return retry, nil
}

// goNotifier runs each job on its own goroutine when no queue is wired.
type goNotifier struct {
	log zerolog.Logger
}

func (n goNotifier) Notify(name string, job func(ctx context.Context) error) {
	go func() {
		if err := job(context.Background()); err != nil {
			n.log.Debug().Err(err).Str("job", name).Msg("background notification failed")
		}
	}()
}
