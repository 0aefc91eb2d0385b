package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/tokengate/internal/auth/domain"
	"github.com/aussiebroadwan/tokengate/internal/auth/revocation"
	"github.com/aussiebroadwan/tokengate/internal/auth/store"
	"github.com/aussiebroadwan/tokengate/pkg/cryptox"
	"github.com/aussiebroadwan/tokengate/pkg/idx"
	"github.com/aussiebroadwan/tokengate/pkg/jwtx"
	"github.com/aussiebroadwan/tokengate/pkg/metricsx"
	"github.com/aussiebroadwan/tokengate/pkg/slogx"
)

// DefaultRevocationTimeout bounds the sign-out writes once they no longer
// follow the caller's context.
const DefaultRevocationTimeout = 5 * time.Second

// Codec is the part of jwtx.Codec the service needs.
type Codec interface {
	jwtx.Signer
	jwtx.Verifier
	ExtractUnverifiedExpiry(token string) (jwtx.Claims, error)
}

type TokenService struct {
	Codec       Codec
	Revocations revocation.Store
	Store       store.Store
	Hasher      cryptox.Hasher
	Metrics     *metricsx.Metrics

	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	RevocationTimeout time.Duration
	Now               func() time.Time // defaults to time.Now

	dummyOnce sync.Once
	dummyHash string
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// verifyDummy spends the same hashing work as a real check so a missing
// user takes as long as a wrong password.
func (s *TokenService) verifyDummy(password string) {
	s.dummyOnce.Do(func() {
		pw, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return
		}
		s.dummyHash, _ = s.Hasher.Hash(pw)
	})
	if s.dummyHash != "" {
		_ = s.Hasher.Verify(password, s.dummyHash)
	}
}

// SignIn checks a username and password and issues an access and a refresh
// token with independent token ids. Unknown users and wrong passwords both
// return ErrInvalidCredentials.
func (s *TokenService) SignIn(ctx context.Context, username, password string) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		s.Metrics.AuthOutcome("signin", "invalid_credentials")
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.verifyDummy(password)
			l.Info("sign-in failed", slog.String("reason", "unknown_user"))
			s.Metrics.AuthOutcome("signin", "invalid_credentials")
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		s.Metrics.AuthOutcome("signin", "error")
		return domain.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := s.Hasher.Verify(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrMismatch) {
			l.Info("sign-in failed", slog.String("reason", "password_mismatch"), slog.String("user_id", user.ID))
			s.Metrics.AuthOutcome("signin", "invalid_credentials")
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		s.Metrics.AuthOutcome("signin", "error")
		return domain.TokenPair{}, fmt.Errorf("verify password: %w", err)
	}

	now := s.now()
	access, err := s.Codec.Sign(jwtx.NewClaims(user.Username, user.ID, jwtx.KindAccess, s.accessTTL(), now))
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.Codec.Sign(jwtx.NewClaims(user.Username, user.ID, jwtx.KindRefresh, s.refreshTTL(), now))
	if err != nil {
		return domain.TokenPair{}, err
	}

	l.Info("signed in", slog.String("user_id", user.ID))
	s.Metrics.AuthOutcome("signin", "success")

	return domain.TokenPair{
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL().Seconds()),
	}, nil
}

// Refresh exchanges a valid, unrevoked refresh token for a new access token.
//
// The new token keeps the refresh token's id, so revoking the refresh token
// also revokes every access token minted from it. A revocation store failure
// is ErrRevocationUnavailable: refresh never proceeds unchecked.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	l := slogx.FromContext(ctx)

	claims, err := s.Codec.Extract(refreshToken)
	if err != nil {
		l.Info("refresh rejected",
			slog.String("reason", "invalid"),
			slog.String("token_fp", cryptox.FingerprintToken(refreshToken)),
			slog.Any("err", err))
		s.Metrics.AuthOutcome("refresh", "invalid")
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Kind != jwtx.KindRefresh {
		l.Info("refresh rejected", slog.String("reason", "wrong_kind"), slog.String("kind", claims.Kind.String()))
		s.Metrics.AuthOutcome("refresh", "invalid")
		return "", fmt.Errorf("%w: kind %s", ErrInvalidToken, claims.Kind)
	}

	revoked, err := s.Revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		l.Error("refresh: revocation lookup failed", slog.String("jti", claims.ID), slog.Any("err", err))
		s.Metrics.AuthOutcome("refresh", "unavailable")
		return "", fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	if revoked {
		l.Info("refresh rejected", slog.String("reason", "revoked"), slog.String("jti", claims.ID))
		s.Metrics.AuthOutcome("refresh", "revoked")
		return "", ErrRevoked
	}

	token, err := s.Codec.Sign(claims.Renew(jwtx.KindAccess, s.accessTTL(), s.now()))
	if err != nil {
		return "", err
	}

	s.Metrics.AuthOutcome("refresh", "success")
	return token, nil
}

// SignOut revokes both tokens of a session. Expired tokens are accepted as
// long as their signature is genuine.
//
// The writes run concurrently and are detached from ctx cancellation so
// a client hanging up cannot leave the session half revoked. When only some
// writes succeed the result is a *PartialRevocationError; when none do it is
// ErrRevocationUnavailable.
func (s *TokenService) SignOut(ctx context.Context, accessToken, refreshToken string) error {
	l := slogx.FromContext(ctx)

	// A refreshed access token shares its refresh token's id. Each distinct id
	// is written once with the latest expiry seen for it.
	var ids []string
	expiries := make(map[string]time.Time, 2)
	for _, raw := range []string{accessToken, refreshToken} {
		claims, err := s.Codec.ExtractUnverifiedExpiry(raw)
		if err != nil {
			l.Info("sign-out rejected", slog.String("token_fp", cryptox.FingerprintToken(raw)), slog.Any("err", err))
			s.Metrics.AuthOutcome("signout", "invalid")
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		exp, seen := expiries[claims.ID]
		if !seen {
			ids = append(ids, claims.ID)
		}
		if !seen || claims.Expiry().After(exp) {
			expiries[claims.ID] = claims.Expiry()
		}
	}

	timeout := s.RevocationTimeout
	if timeout <= 0 {
		timeout = DefaultRevocationTimeout
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Revocations.MarkRevoked(wctx, id, expiries[id])
		}()
	}
	wg.Wait()

	var revoked, failed []string
	for i, err := range errs {
		if err != nil {
			failed = append(failed, ids[i])
			continue
		}
		revoked = append(revoked, ids[i])
	}

	if len(failed) > 0 {
		err := errors.Join(errs...)
		l.Error("sign-out incomplete",
			slog.Any("revoked", revoked), slog.Any("failed", failed), slog.Any("err", err))
		if len(revoked) == 0 {
			s.Metrics.AuthOutcome("signout", "unavailable")
			return errors.Join(ErrRevocationUnavailable, err)
		}
		s.Metrics.AuthOutcome("signout", "partial")
		return &PartialRevocationError{Revoked: revoked, Failed: failed, Err: err}
	}

	l.Info("signed out", slog.Any("jtis", ids))
	s.Metrics.AuthOutcome("signout", "success")
	return nil
}

// SignUp stores a new user with a hashed password and returns its id.
func (s *TokenService) SignUp(ctx context.Context, in domain.SignUp) (string, error) {
	l := slogx.FromContext(ctx)

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if in.Name == "" || in.Username == "" || in.Password == "" {
		return "", ErrMissingFields
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           idx.New().String(),
		Name:         in.Name,
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			s.Metrics.AuthOutcome("signup", "duplicate")
			return "", ErrDuplicateUser
		}
		s.Metrics.AuthOutcome("signup", "error")
		return "", fmt.Errorf("create user: %w", err)
	}

	l.Info("user signed up", slog.String("user_id", user.ID))
	s.Metrics.AuthOutcome("signup", "success")
	return user.ID, nil
}
