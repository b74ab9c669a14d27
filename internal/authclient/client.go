package authclient

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

	"github.com/florianilch/tokengate/internal/token"
)

// Default endpoint paths, relative to the auth base URL.
const (
	DefaultLoginEndpoint   = "api/auth/login"
	DefaultRefreshEndpoint = "api/auth/refresh"
)

// defaultTimeout bounds a single login or refresh call.
const defaultTimeout = 30 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithEndpoints overrides the login and refresh endpoint paths.
func WithEndpoints(login, refresh string) Option {
	return func(c *Client) {
		if login != "" {
			c.loginEndpoint = login
		}
		if refresh != "" {
			c.refreshEndpoint = refresh
		}
	}
}

// WithHTTPClient sets a custom HTTP client, e.g. for proxies or custom
// timeouts. If not provided, a client with a 30s timeout is used.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client talks to the identity provider's login and refresh endpoints.
type Client struct {
	baseURL         string
	loginEndpoint   string
	refreshEndpoint string
	httpClient      *http.Client
}

// New creates a Client for the given auth base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid auth base URL %q", baseURL)
	}

	c := &Client{
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		loginEndpoint:   DefaultLoginEndpoint,
		refreshEndpoint: DefaultRefreshEndpoint,
		httpClient:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// loginRequest is the JSON body sent to the login endpoint.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// refreshRequest is the JSON body sent to the refresh endpoint.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// tokenResponse is the envelope both endpoints return on success.
type tokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Login exchanges credentials for a token pair. Any rejection by the endpoint
// is surfaced as ErrInvalidCredentials and is never retried.
func (c *Client) Login(ctx context.Context, username, password string) (*token.StoredToken, error) {
	resp, err := c.post(ctx, c.loginEndpoint, loginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: login endpoint returned %s", ErrInvalidCredentials, resp.Status)
	}

	return parseTokenResponse(resp.Body)
}

// Refresh exchanges a refresh token for a new token pair.
//
// Failures are classified for the session layer: 4xx means the refresh token
// was rejected (terminal), transport errors and 5xx are transient, and a
// success response missing required fields is malformed (terminal).
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*token.StoredToken, error) {
	resp, err := c.post(ctx, c.refreshEndpoint, refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, &RefreshError{Terminal: false, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to body parsing
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &RefreshError{Terminal: true, Err: fmt.Errorf("refresh token rejected: %s", resp.Status)}
	default:
		return nil, &RefreshError{Terminal: false, Err: fmt.Errorf("refresh endpoint returned %s", resp.Status)}
	}

	tok, err := parseTokenResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// post issues a JSON POST to the given endpoint path under the base URL.
func (c *Client) post(ctx context.Context, endpoint string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}

	u := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// parseTokenResponse decodes the response envelope and validates the fields
// without which the credentials cannot be used.
func parseTokenResponse(r io.Reader) (*token.StoredToken, error) {
	var tr tokenResponse
	if err := json.NewDecoder(r).Decode(&tr); err != nil {
		return nil, &MalformedResponseError{Missing: []string{"body"}}
	}

	var missing []string
	if tr.AccessToken == "" {
		missing = append(missing, "accessToken")
	}
	if tr.ExpiresAt.IsZero() {
		missing = append(missing, "expiresAt")
	}
	if len(missing) > 0 {
		return nil, &MalformedResponseError{Missing: missing}
	}

	return &token.StoredToken{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		ExpiresAt:    tr.ExpiresAt,
	}, nil
}
