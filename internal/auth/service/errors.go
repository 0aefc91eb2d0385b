package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidCredentials    = errors.New("invalid_credentials")
	ErrInvalidToken          = errors.New("invalid_token")
	ErrRevoked               = errors.New("token_revoked")
	ErrRevocationUnavailable = errors.New("revocation_unavailable")
	ErrMissingFields         = errors.New("missing_fields")
	ErrDuplicateUser         = errors.New("duplicate_user")
	ErrUserNotFound          = errors.New("user_not_found")
)

// PartialRevocationError reports a sign-out where at least one token id was
// recorded as revoked and at least one was not. Failed sessions stay usable until
// they expire, so callers must surface it.
type PartialRevocationError struct {
	Revoked []string // token ids recorded
	Failed  []string // token ids not recorded
	Err     error
}

func (e *PartialRevocationError) Error() string {
	return fmt.Sprintf("revocation incomplete: %d recorded, failed [%s]: %v",
		len(e.Revoked), strings.Join(e.Failed, ", "), e.Err)
}

func (e *PartialRevocationError) Unwrap() []error {
	return []error{ErrRevocationUnavailable, e.Err}
}
