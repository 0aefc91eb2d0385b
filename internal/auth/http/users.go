package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/tokengate/internal/auth/domain"
	"github.com/aussiebroadwan/tokengate/internal/auth/service"
	"github.com/aussiebroadwan/tokengate/pkg/authsdk"
	"github.com/aussiebroadwan/tokengate/pkg/httpx"
	"github.com/aussiebroadwan/tokengate/pkg/idx"
	"github.com/aussiebroadwan/tokengate/pkg/slogx"
)

type UsersHandler struct {
	UserService *service.UserService
}

func userResponse(p domain.UserProfile) authsdk.UserResponse {
	return authsdk.UserResponse{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Username:  p.Username,
		CreatedAt: p.CreatedAt,
	}
}

// HandleProfile returns the authenticated user.
//
//	@Summary		Current user
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserResponse	"The signed-in user"
//	@Failure		401	{object}	authsdk.APIError		"Missing, invalid or revoked access token"
//	@Failure		404	{object}	authsdk.APIError		"User no longer exists"
//	@Router			/user/profile [get].
func (h *UsersHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}
	h.writeUser(w, r, userID)
}

// HandleGet returns a user by id.
//
//	@Summary		Get user
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string					true	"User id"
//	@Success		200	{object}	authsdk.UserResponse	"The user"
//	@Failure		401	{object}	authsdk.APIError		"Missing, invalid or revoked access token"
//	@Failure		404	{object}	authsdk.APIError		"No such user"
//	@Router			/user/{id} [get].
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idx.Parse(r.PathValue("id"))
	if err != nil {
		authsdk.ErrNotFound.WriteError(w)
		return
	}
	h.writeUser(w, r, id.String())
}

func (h *UsersHandler) writeUser(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()

	u, err := h.UserService.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		authsdk.ErrNotFound.WriteError(w)
		return
	case err != nil:
		slogx.FromContext(ctx).Error("failed to load user", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(u.Profile()))
}

// HandleList searches users.
//
//	@Summary		List users
//	@Description	Pages through users whose username or name contains q.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Param			q		query		string						false	"Search text"
//	@Param			limit	query		int							false	"Page size (default 10, max 100)"
//	@Param			offset	query		int							false	"Rows to skip"
//	@Success		200		{object}	authsdk.UserPageResponse	"Page of users"
//	@Failure		400		{object}	authsdk.APIError			"Bad limit or offset"
//	@Failure		401		{object}	authsdk.APIError			"Missing, invalid or revoked access token"
//	@Router			/user/ [get].
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	page, err := h.UserService.ListUsers(ctx, q.Get("q"), limit, offset)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list users", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	resp := authsdk.UserPageResponse{
		Data:   make([]authsdk.UserResponse, 0, len(page.Data)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, p := range page.Data {
		resp.Data = append(resp.Data, userResponse(p))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleUpdate changes the authenticated user's name and/or username.
//
//	@Summary		Update profile
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.UpdateProfileRequest	true	"Fields to change"
//	@Success		200		{object}	authsdk.UserResponse			"Updated user"
//	@Failure		400		{object}	authsdk.APIError				"Malformed body"
//	@Failure		401		{object}	authsdk.APIError				"Missing, invalid or revoked access token"
//	@Failure		409		{object}	authsdk.APIError				"Username taken"
//	@Router			/user/ [put].
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req authsdk.UpdateProfileRequest
	if err := httpx.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	u, err := h.UserService.UpdateProfile(ctx, userID, domain.ProfileUpdate{
		Name:     req.Name,
		Username: req.Username,
	})
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		authsdk.ErrNotFound.WriteError(w)
		return
	case errors.Is(err, service.ErrDuplicateUser):
		authsdk.ErrDuplicateUser.WriteError(w)
		return
	case err != nil:
		slogx.FromContext(ctx).Error("failed to update profile", "user_id", userID, "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(u.Profile()))
}

// queryInt parses an optional non-negative integer query value.
func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}
