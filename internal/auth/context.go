package auth

import "context"

type ctxKey int

const (
	ctxKeyPrincipal ctxKey = iota
	ctxKeyToken
)

// ContextWithPrincipal returns a child context carrying the verified
// principal. Set by the authentication middleware after token verification.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext reports the principal attached to ctx, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}

// ContextWithToken returns a child context carrying the raw access token.
// Logout needs the token itself, not just the principal, to locate the
// session by its hash. An empty token attaches nothing.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyToken, token)
}

// TokenFromContext reports the raw access token attached to ctx, if any.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, ok := ctx.Value(ctxKeyToken).(string)
	return token, ok && token != ""
}
