package cryptox

import (
	"errors"
	"fmt"
	"strings"
)

// Supported password hashing algorithms.
const (
	HasherArgon2id = "argon2id"
	HasherBcrypt   = "bcrypt"
)

var (
	// ErrMismatch is returned when a password does not match its hash.
	ErrMismatch = errors.New("password does not match")

	ErrUnknownHasher = errors.New("cryptox: unknown password hasher")
)

// Hasher hashes and verifies stored secrets. Verify returns nil on a match,
// ErrMismatch on a wrong password and another error for a corrupt hash.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) error
}

// HasherConfig selects and tunes a Hasher.
type HasherConfig struct {
	Algorithm  string // argon2id (default) or bcrypt
	Pepper     string // mixed into argon2id inputs
	BcryptCost int    // bcrypt cost factor, 0 means bcrypt.DefaultCost
}

// NewHasher builds the Hasher named by cfg.Algorithm.
func NewHasher(cfg HasherConfig) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Algorithm)) {
	case "", HasherArgon2id:
		return &Argon2Hasher{Pepper: cfg.Pepper}, nil
	case HasherBcrypt:
		return NewBcryptHasher(cfg.BcryptCost)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHasher, cfg.Algorithm)
	}
}
