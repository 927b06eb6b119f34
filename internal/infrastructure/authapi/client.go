package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ferrington/bug-wars-client/internal/core/domain"
)

const defaultTimeout = 10 * time.Second

const (
	pathRegister      = "/auth/register"
	pathLogin         = "/auth/login"
	pathLogout        = "/auth/logout"
	pathUpdateProfile = "/auth/update-profile"
	pathRefreshToken  = "/auth/refresh-token"
	pathMe            = "/auth/me"
)

// Client issues calls against the remote auth API. It implements
// ports.AuthAPI and leaves status classification to the caller.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// NewClient returns a Client rooted at baseURL. When httpClient is nil a
// client with defaultTimeout and the default transport is used.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("authapi: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("authapi: base url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: u, http: httpClient}, nil
}

// NewHTTPClient builds the http.Client used by the session: timeout plus the
// session Transport.
func NewHTTPClient(timeout time.Duration, transport *Transport) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (c *Client) Register(ctx context.Context, dto domain.RegisterDTO) (*http.Response, error) {
	return c.send(ctx, http.MethodPost, pathRegister, dto)
}

func (c *Client) Login(ctx context.Context, dto domain.LoginDTO) (*http.Response, error) {
	return c.send(ctx, http.MethodPost, pathLogin, dto)
}

// Logout notifies the server. accessToken, when set, is sent explicitly since
// the local session is already gone by the time the call is made.
func (c *Client) Logout(ctx context.Context, accessToken string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathLogout, nil)
	if err != nil {
		return nil, err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return c.http.Do(req)
}

func (c *Client) UpdateProfile(ctx context.Context, dto domain.ProfileUpdateDTO) (*http.Response, error) {
	return c.send(ctx, http.MethodPut, pathUpdateProfile, dto)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*http.Response, error) {
	return c.send(ctx, http.MethodPost, pathRefreshToken, domain.RefreshRequest{RefreshToken: refreshToken})
}

func (c *Client) Me(ctx context.Context) (*http.Response, error) {
	return c.send(ctx, http.MethodGet, pathMe, nil)
}

// Do re-issues req through the client's transport.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

func (c *Client) send(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("authapi: encode %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return nil, fmt.Errorf("authapi: build %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
