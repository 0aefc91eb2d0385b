package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// ErrSignedOut is returned by Session methods after SignOut succeeded.
var ErrSignedOut = errors.New("authsdk: session signed out")

// Session is one signed-in user's token pair. Methods refresh the access
// token automatically; it is safe for concurrent use.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	accessTTL    time.Duration
	expiresAt    time.Time
	signedOut    bool
}

func newSession(client *SDKClient, accessToken, refreshToken string, ttl time.Duration) *Session {
	return &Session{
		client:       client,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		accessTTL:    ttl,
		expiresAt:    time.Now().Add(ttl - client.RefreshBuffer),
	}
}

// getValidToken returns the access token, refreshing it when expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.signedOut {
		s.mu.RUnlock()
		return "", ErrSignedOut
	}
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if s.signedOut {
		return "", ErrSignedOut
	}
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	token, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	s.accessToken = token
	s.expiresAt = time.Now().Add(s.accessTTL - s.client.RefreshBuffer)
	return token, nil
}

// Refresh forces a new access token regardless of the current one's expiry.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signedOut {
		return ErrSignedOut
	}

	token, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return err
	}
	s.accessToken = token
	s.expiresAt = time.Now().Add(s.accessTTL - s.client.RefreshBuffer)
	return nil
}

// SignOut revokes the session's tokens. On a partial failure the session
// stays usable so the call can be retried.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signedOut {
		return nil
	}
	if err := s.client.SignOut(ctx, s.accessToken, s.refreshToken); err != nil {
		return err
	}
	s.signedOut = true
	return nil
}

// Token asks the service to echo the access token back.
func (s *Session) Token(ctx context.Context) (string, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/auth/token", nil)
	if err != nil {
		return "", err
	}

	var out AccessTokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return "", err
	}
	return out.Token, nil
}

// Profile returns the signed-in user.
func (s *Session) Profile(ctx context.Context) (*UserResponse, error) {
	return s.getUser(ctx, "/user/profile")
}

// GetUser returns a user by id.
func (s *Session) GetUser(ctx context.Context, id string) (*UserResponse, error) {
	return s.getUser(ctx, "/user/"+url.PathEscape(id))
}

func (s *Session) getUser(ctx context.Context, path string) (*UserResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var out UserResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListUsers searches users by username or name. Zero limit uses the server
// default.
func (s *Session) ListUsers(ctx context.Context, query string, limit, offset int) (*UserPageResponse, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	path := "/user/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := s.doAuthRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var out UserPageResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile changes the signed-in user's name and/or username.
func (s *Session) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*UserResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPut, "/user/", req)
	if err != nil {
		return nil, err
	}

	var out UserResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// AccessToken returns the current access token without checking expiry.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the session's refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}
