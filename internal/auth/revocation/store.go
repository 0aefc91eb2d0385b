// Package revocation records revoked token ids until the tokens would have
// expired on their own.
package revocation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps any backend failure. Callers decide whether that
	// fails open or closed.
	ErrUnavailable = errors.New("revocation: store unavailable")

	ErrEmptyTokenID = errors.New("revocation: empty token id")
)

// Store is the set of revoked token ids.
//
// MarkRevoked is idempotent. An entry may disappear once expiresAt has passed
// because the token is rejected as expired from then on anyway.
type Store interface {
	MarkRevoked(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Ping(ctx context.Context) error
}
