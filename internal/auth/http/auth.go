package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tokengate/internal/auth/domain"
	"github.com/aussiebroadwan/tokengate/internal/auth/service"
	"github.com/aussiebroadwan/tokengate/pkg/authsdk"
	"github.com/aussiebroadwan/tokengate/pkg/httpx"
	"github.com/aussiebroadwan/tokengate/pkg/slogx"
)

type SignUpHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP registers a new user.
//
//	@Summary		Sign up
//	@Description	Creates a user. Email is optional; name, username and password are required.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.SignUpRequest	true	"New user"
//	@Success		200		{object}	authsdk.SignUpResponse	"Id of the new user"
//	@Failure		400		{object}	authsdk.APIError		"Missing fields or malformed body"
//	@Failure		409		{object}	authsdk.APIError		"Username or email already taken"
//	@Failure		429		{object}	authsdk.APIError		"Rate limit exceeded"
//	@Failure		500		{object}	authsdk.APIError		"Internal server error"
//	@Router			/auth/signup [post].
func (h *SignUpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.SignUpRequest
	if err := httpx.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	id, err := h.TokenService.SignUp(ctx, domain.SignUp{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	switch {
	case errors.Is(err, service.ErrMissingFields):
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	case errors.Is(err, service.ErrDuplicateUser):
		authsdk.ErrDuplicateUser.WriteError(w)
		return
	case err != nil:
		log.Error("sign-up failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.SignUpResponse{ID: id})
}

type SignInHandler struct {
	TokenService *service.TokenService
	Cookies      CookieConfig
}

// ServeHTTP exchanges a username and password for a token pair.
//
//	@Summary		Sign in
//	@Description	Returns an access and a refresh token, also set as the token and refresh_token cookies.
//	@Description	Unknown users and wrong passwords get the same response.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.SignInRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse	"Token pair"
//	@Failure		400		{object}	authsdk.APIError		"invalid_credentials"
//	@Failure		429		{object}	authsdk.APIError		"Rate limit exceeded"
//	@Failure		500		{object}	authsdk.APIError		"Internal server error"
//	@Router			/auth/signin [post].
func (h *SignInHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.SignInRequest
	if err := httpx.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.SignIn(ctx, req.Username, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
		return
	case err != nil:
		log.Error("sign-in failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	h.Cookies.setSession(w, pair.Token, pair.RefreshToken)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		Token:        pair.Token,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

type SignOutHandler struct {
	TokenService *service.TokenService
	Cookies      CookieConfig
}

// ServeHTTP revokes the caller's access and refresh tokens.
//
//	@Summary		Sign out
//	@Description	Revokes both tokens. They are read from the Authorization and Authorization-refresh
//	@Description	headers, or from the token and refresh_token cookies. A 503 means only part of the
//	@Description	session was revoked and the call should be retried.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Security		RefreshAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MessageResponse	"Signed out"
//	@Failure		400	{object}	authsdk.APIError		"A token is missing"
//	@Failure		401	{object}	authsdk.APIError		"A token is malformed or forged"
//	@Failure		503	{object}	authsdk.APIError		"Revocation incomplete"
//	@Router			/auth/signout [get].
func (h *SignOutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	access := httpx.Credential(r, httpx.HeaderAuthorization, httpx.CookieAccess)
	refresh := httpx.Credential(r, httpx.HeaderRefresh, httpx.CookieRefresh)
	if access == "" || refresh == "" {
		authsdk.ErrMissingTokens.WriteError(w)
		return
	}

	err := h.TokenService.SignOut(ctx, access, refresh)
	switch {
	case errors.Is(err, service.ErrInvalidToken):
		authsdk.ErrUnauthorized.WriteError(w)
		return
	case errors.Is(err, service.ErrRevocationUnavailable):
		// Cookies are kept so the retry can read them again.
		authsdk.ErrRevocationUnavailable.WriteError(w)
		return
	case err != nil:
		log.Error("sign-out failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	h.Cookies.clearSession(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Message: "signed out"})
}

type RefreshHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP issues a new access token for the refresh token the gate
// admitted.
//
//	@Summary		Refresh access token
//	@Description	Takes the refresh token from the Authorization-refresh header (or Authorization, or
//	@Description	the refresh_token cookie) and returns a new access token.
//	@Tags			Auth
//	@Security		RefreshAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.AccessTokenResponse	"New access token"
//	@Failure		401	{object}	authsdk.APIError			"Missing, invalid or revoked refresh token"
//	@Router			/auth/refresh-token [get].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	raw, ok := httpx.TokenFromContext(ctx)
	if !ok {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	token, err := h.TokenService.Refresh(ctx, raw)
	if err != nil {
		// The gate already checked this token; a failure here is a race
		// with sign-out or the store going away, both answered with 401.
		log.Warn("refresh failed", "err", err)
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.AccessTokenResponse{Token: token})
}

// TokenHandler godoc
//
//	@Summary		Echo access token
//	@Description	Returns the access token the request was authorized with. Useful for clients that
//	@Description	only hold the token cookie.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.AccessTokenResponse	"The access token"
//	@Failure		401	{object}	authsdk.APIError			"Missing, invalid or revoked access token"
//	@Router			/auth/token [get].
func TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := httpx.TokenFromContext(r.Context())
		if !ok {
			authsdk.ErrUnauthorized.WriteError(w)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.AccessTokenResponse{Token: raw})
	}
}
