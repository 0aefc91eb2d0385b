package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tokengate/pkg/jwtx"
	"github.com/aussiebroadwan/tokengate/pkg/metricsx"
	"github.com/aussiebroadwan/tokengate/pkg/slogx"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRefresh       = "Authorization-refresh"

	CookieAccess  = "token"
	CookieRefresh = "refresh_token"

	bearerPrefix = "Bearer "
)

var (
	ErrMissingCredential     = errors.New("httpx: missing credential")
	ErrWrongKind             = errors.New("httpx: token kind not accepted")
	ErrRevoked               = errors.New("httpx: token revoked")
	ErrRevocationUnavailable = errors.New("httpx: revocation store unavailable")
)

// RevocationChecker answers whether a token id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// GateConfig holds the collaborators shared by every gate of a router.
type GateConfig struct {
	Verifier    jwtx.Verifier
	Revocations RevocationChecker // nil disables the revocation veto

	// FailOpen admits access-only traffic when the revocation store errors.
	// Gates that admit refresh tokens always fail closed.
	FailOpen bool

	Metrics *metricsx.Metrics
}

// RequireKinds admits requests carrying a valid, unrevoked token whose kind is
// in kinds. With no kinds the gate passes every request through untouched.
//
// The credential comes from "Authorization: Bearer". Gates admitting refresh
// tokens also accept the Authorization-refresh header and then the
// refresh_token cookie; gates admitting access tokens fall back to the token
// cookie. Every rejection is the same 401; the reason is only logged and
// counted.
func RequireKinds(cfg GateConfig, kinds ...jwtx.Kind) Middleware {
	set := NewKindSet(kinds...)
	gate := set.Name()

	return func(next http.Handler) http.Handler {
		if set.Empty() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, claims, err := authorize(ctx, cfg, set, r)
			if err != nil {
				reason := rejectionReason(err)
				log.Warn("request rejected by gate", "gate", gate, "reason", reason, "err", err)
				cfg.Metrics.GateRejected(gate, reason)
				writeBearerError(w)
				return
			}

			ctx = contextWithAuth(ctx, raw, claims)
			ctx = slogx.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authorize(ctx context.Context, cfg GateConfig, set KindSet, r *http.Request) (string, jwtx.Claims, error) {
	raw := credentialFromRequest(r, set)
	if raw == "" {
		return "", jwtx.Claims{}, ErrMissingCredential
	}

	claims, err := cfg.Verifier.Extract(raw)
	if err != nil {
		return "", jwtx.Claims{}, err
	}

	if !set.Has(claims.Kind) {
		return "", jwtx.Claims{}, ErrWrongKind
	}
	if set.refreshOnly() && claims.Kind != jwtx.KindRefresh {
		return "", jwtx.Claims{}, ErrWrongKind
	}

	if cfg.Revocations == nil {
		return raw, claims, nil
	}

	revoked, err := cfg.Revocations.IsRevoked(ctx, claims.ID)
	switch {
	case err != nil:
		if cfg.FailOpen && !set.Has(jwtx.KindRefresh) {
			slogx.FromContext(ctx).Warn("revocation lookup failed, admitting token", "jti", claims.ID, "err", err)
			return raw, claims, nil
		}
		return "", jwtx.Claims{}, errors.Join(ErrRevocationUnavailable, err)
	case revoked:
		return "", jwtx.Claims{}, ErrRevoked
	}

	return raw, claims, nil
}

func credentialFromRequest(r *http.Request, set KindSet) string {
	if tok := bearer(r.Header.Get(HeaderAuthorization)); tok != "" {
		return tok
	}
	if set.Has(jwtx.KindRefresh) {
		if tok := Credential(r, HeaderRefresh, CookieRefresh); tok != "" {
			return tok
		}
	}
	if set.Has(jwtx.KindAccess) {
		return cookieValue(r, CookieAccess)
	}
	return ""
}

// Credential returns the bearer token of header, falling back to the value of
// cookie. The header wins when both are present.
func Credential(r *http.Request, header, cookie string) string {
	if tok := bearer(r.Header.Get(header)); tok != "" {
		return tok
	}
	return cookieValue(r, cookie)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// bearer returns the token of a "Bearer <token>" value, or "".
func bearer(v string) string {
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrWrongKind):
		return "wrong_kind"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrRevocationUnavailable):
		return "revocation_unavailable"
	case errors.Is(err, jwtx.ErrExpired):
		return "expired"
	case errors.Is(err, jwtx.ErrNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, jwtx.ErrInvalidSig), errors.Is(err, jwtx.ErrAlgMismatch):
		return "bad_signature"
	case errors.Is(err, jwtx.ErrIssuer):
		return "issuer"
	default:
		return "malformed"
	}
}

// writeBearerError is the RFC 6750 challenge. The body is identical for every
// reason so callers cannot tell why the token was refused.
func writeBearerError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "unauthorized",
		"error_description": "unauthorized",
	})
}
