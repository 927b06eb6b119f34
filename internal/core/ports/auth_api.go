package ports

import (
	"context"
	"net/http"

	"github.com/Ferrington/bug-wars-client/internal/core/domain"
)

// AuthAPI issues the raw calls against the remote authentication API. Status
// classification is left to the caller.
type AuthAPI interface {
	Register(ctx context.Context, dto domain.RegisterDTO) (*http.Response, error)
	Login(ctx context.Context, dto domain.LoginDTO) (*http.Response, error)
	Logout(ctx context.Context, accessToken string) (*http.Response, error)
	UpdateProfile(ctx context.Context, dto domain.ProfileUpdateDTO) (*http.Response, error)
	RefreshToken(ctx context.Context, refreshToken string) (*http.Response, error)
	Me(ctx context.Context) (*http.Response, error)

	// Do re-issues an arbitrary request through the same transport.
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource exposes the current access token to the request-preparation
// interceptor.
type TokenSource interface {
	AccessToken() string
}

// Refresher renews the access token and, when original is non-nil, re-issues
// it with the new credential. A nil response with a nil error means the
// session has been ended and the caller should give up on original.
type Refresher interface {
	AttemptToRefreshToken(ctx context.Context, original *http.Request) (*http.Response, error)
}
