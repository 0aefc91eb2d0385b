package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/tokengate/internal/auth/domain"
	"github.com/aussiebroadwan/tokengate/internal/auth/store"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type UserService struct {
	Store store.Store
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// ListUsers pages through users matching q. A non-positive limit means
// DefaultPageLimit; larger than MaxPageLimit is clamped.
func (s *UserService) ListUsers(ctx context.Context, q string, limit, offset int) (domain.UserPage, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	limit = min(limit, MaxPageLimit)
	offset = max(offset, 0)

	users, total, err := s.Store.Users().ListUsers(ctx, q, limit, offset)
	if err != nil {
		return domain.UserPage{}, fmt.Errorf("list users: %w", err)
	}

	page := domain.UserPage{
		Data:   make([]domain.UserProfile, 0, len(users)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, u := range users {
		page.Data = append(page.Data, u.Profile())
	}
	return page, nil
}

// UpdateProfile applies the non-empty fields of upd to the user.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (domain.User, error) {
	upd.Name = strings.TrimSpace(upd.Name)
	upd.Username = strings.TrimSpace(upd.Username)

	var out domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.Users().GetUserByID(ctx, userID)
		if err != nil {
			return err
		}

		if upd.Name != "" {
			u.Name = upd.Name
		}
		if upd.Username != "" {
			u.Username = upd.Username
		}

		if err := tx.Users().UpdateUser(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})

	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, ErrUserNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return domain.User{}, ErrDuplicateUser
	case err != nil:
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	return out, nil
}
