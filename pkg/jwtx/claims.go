package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token TTL constants. Access tokens are short lived, refresh tokens
// live for weeks so a session survives without re-entering credentials.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = time.Hour

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 4 * 7 * 24 * time.Hour
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "auth_token"
	KindRefresh Kind = "refresh_token"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

func (k Kind) String() string { return string(k) }

// Claims are the session token claims. The registered claims carry sub, iat,
// nbf, exp and jti (the token id used as the revocation key).
type Claims struct {
	jwt.RegisteredClaims

	// UserID of the authenticated user (sub carries the username).
	UserID string `json:"user_id"`

	// Kind is either an access or a refresh token.
	Kind Kind `json:"kind"`
}

// NewClaims builds claims for a fresh signing with a new token id.
func NewClaims(subject, userID string, kind Kind, ttl time.Duration, now time.Time) Claims {
	now = now.UTC()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		UserID: userID,
		Kind:   kind,
	}
}

// Renew returns a copy of c with fresh timestamps and the given kind. The
// token id is kept so every renewal shares the revocation entry of its source.
func (c Claims) Renew(kind Kind, ttl time.Duration, now time.Time) Claims {
	now = now.UTC()
	out := c
	out.Kind = kind
	out.IssuedAt = jwt.NewNumericDate(now)
	out.NotBefore = jwt.NewNumericDate(now)
	out.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return out
}

// NewJTI returns a unique identifier for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// Expiry returns the exp claim or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Validate is called by the jwt parser after the registered claims have been
// checked. It enforces the fields every session token must carry.
func (c Claims) Validate() error {
	if err := c.validateShape(); err != nil {
		return err
	}

	// nbf <= iat <= exp
	if c.NotBefore != nil && c.NotBefore.After(c.IssuedAt.Time) {
		return ErrInvalidClaim
	}
	if c.IssuedAt.After(c.ExpiresAt.Time) {
		return ErrInvalidClaim
	}

	return nil
}

// validateShape checks the claims that must be present regardless of time.
func (c Claims) validateShape() error {
	if c.ID == "" || c.UserID == "" || c.Subject == "" {
		return ErrInvalidClaim
	}
	if !c.Kind.Valid() {
		return ErrInvalidClaim
	}
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	return nil
}

// normalize keeps parsed timestamps in UTC so they compare equal to the ones
// produced by NewClaims.
func (c *Claims) normalize() {
	for _, d := range []*jwt.NumericDate{c.IssuedAt, c.NotBefore, c.ExpiresAt} {
		if d != nil {
			d.Time = d.UTC()
		}
	}
}
