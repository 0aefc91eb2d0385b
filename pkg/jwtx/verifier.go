package jwtx

import (
	"errors"
)

// Verifier validates a token and gives you back the claims if it's legit.
type Verifier interface {
	Extract(token string) (Claims, error)
}

// Signer produces a signed token for the given claims.
type Signer interface {
	Sign(c Claims) (string, error)
}

var (
	ErrMissingSecret = errors.New("jwtx: signing secret is not configured")

	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)
