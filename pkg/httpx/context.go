package httpx

import (
	"context"

	"github.com/aussiebroadwan/tokengate/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyToken  ctxKey = "token"  // raw bearer credential
	CtxKeyClaims ctxKey = "claims" // full jwtx.Claims
)

// UserIDFromContext returns the authenticated user id set by RequireKinds.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyUserID).(string)
	return v, ok && v != ""
}

// TokenFromContext returns the raw credential the request was authorized with.
func TokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyToken).(string)
	return v, ok && v != ""
}

// ClaimsFromContext returns the verified claims of the request credential.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	v, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return v, ok
}

func contextWithAuth(ctx context.Context, raw string, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.UserID)
	ctx = context.WithValue(ctx, CtxKeyToken, raw)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}
