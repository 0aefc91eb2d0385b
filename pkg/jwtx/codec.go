package jwtx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	_ Signer   = (*Codec)(nil)
	_ Verifier = (*Codec)(nil)
)

// Codec signs and verifies HS256 session tokens with a shared secret.
type Codec struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithIssuer stamps and enforces the iss claim.
func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// WithLeeway allows small clock skew when validating exp/nbf/iat.
func WithLeeway(d time.Duration) Option {
	return func(c *Codec) { c.leeway = d }
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec returns a codec for the given secret. An empty secret is a
// configuration error and the caller should refuse to start.
func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Sign serializes the claims and signs them with HMAC-SHA256.
func (c *Codec) Sign(claims Claims) (string, error) {
	if err := claims.validateShape(); err != nil {
		return "", err
	}
	if c.issuer != "" {
		claims.Issuer = c.issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// Verify reports whether the signature is valid and now is within [nbf, exp].
func (c *Codec) Verify(token string) bool {
	_, err := c.Extract(token)
	return err == nil
}

// Extract returns the claims of a token that passes signature and temporal
// validation. The signature is always checked before any claim is trusted.
func (c *Codec) Extract(token string) (Claims, error) {
	return c.parse(token, c.parser(
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
	))
}

// ExtractUnverifiedExpiry returns the claims of a token with a genuine
// signature even if it has expired or is not yet valid. Use it only to recover
// the token id of a session being torn down.
func (c *Codec) ExtractUnverifiedExpiry(token string) (Claims, error) {
	claims, err := c.parse(token, c.parser(jwt.WithoutClaimsValidation()))
	if err != nil {
		return Claims{}, err
	}

	// WithoutClaimsValidation skips Claims.Validate too.
	if err := claims.validateShape(); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (c *Codec) parser(opts ...jwt.ParserOption) *jwt.Parser {
	opts = append(opts,
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	return jwt.NewParser(opts...)
}

func (c *Codec) parse(token string, parser *jwt.Parser) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMalformed
	}

	var claims Claims
	parsed, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrAlgMismatch
		}
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, mapParseError(err)
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidSig
	}

	claims.normalize()
	return claims, nil
}

// mapParseError folds golang-jwt errors into the jwtx sentinels.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrAlgMismatch):
		return ErrAlgMismatch
	case errors.Is(err, ErrInvalidClaim):
		return ErrInvalidClaim
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing), errors.Is(err, jwt.ErrTokenInvalidClaims):
		return ErrInvalidClaim
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
