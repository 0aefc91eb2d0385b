package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// HeaderRefresh carries the refresh token on /auth/refresh-token and
// /auth/signout.
const HeaderRefresh = "Authorization-refresh"

// SDKClient is a client for the tokengate service. It covers the
// unauthenticated operations and creates Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// RefreshBuffer is how long before expiry a Session refreshes its access
	// token. Default: 30s.
	RefreshBuffer time.Duration
}

func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		RefreshBuffer: 30 * time.Second,
	}
}

// SignUp registers a user and returns its id.
func (c *SDKClient) SignUp(ctx context.Context, req SignUpRequest) (string, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/signup", req, nil)
	if err != nil {
		return "", err
	}

	var out SignUpResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.ID, nil
}

// SignIn exchanges a username and password for a Session.
func (c *SDKClient) SignIn(ctx context.Context, username, password string) (*Session, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/auth/signin", SignInRequest{
		Username: username,
		Password: password,
	}, nil)
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return newSession(c, out.Token, out.RefreshToken, time.Duration(out.ExpiresIn)*time.Second), nil
}

// Refresh trades a refresh token for a new access token.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/auth/refresh-token", nil, map[string]string{
		HeaderRefresh: "Bearer " + refreshToken,
	})
	if err != nil {
		return "", err
	}

	var out AccessTokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.Token, nil
}

// SignOut revokes both tokens. A 503 means only part of the pair was revoked
// and the call should be retried.
func (c *SDKClient) SignOut(ctx context.Context, accessToken, refreshToken string) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/auth/signout", nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
		HeaderRefresh:   "Bearer " + refreshToken,
	})
	if err != nil {
		return err
	}

	var out MessageResponse
	return decodeJSON(resp, &out, http.StatusOK)
}

// NewSessionFromTokens resumes a session from stored tokens. expiresIn is the
// remaining access token lifetime.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresIn time.Duration) *Session {
	return newSession(c, accessToken, refreshToken, expiresIn)
}

// Liveness calls /livez.
func (c *SDKClient) Liveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// Readiness calls /readyz. A 503 is returned as an *APIError.
func (c *SDKClient) Readiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var out HealthResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
