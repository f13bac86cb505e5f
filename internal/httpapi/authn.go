package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"reqsphere.io/internal/apperr"
	"reqsphere.io/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// requireAuth verifies the bearer access token and confirms its session is
// still live in the registry, so terminated sessions stop working before the
// token itself expires. The verified principal and raw token land on the
// request context.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return a.authenticate(next, true)
}

// requireToken verifies the bearer access token but skips the session
// liveness check. The logout endpoints use it: a token whose session is
// already terminated must still be able to log out, and succeed.
func (a *API) requireToken(next http.Handler) http.Handler {
	return a.authenticate(next, false)
}

func (a *API) authenticate(next http.Handler, checkSession bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			a.writeError(w, r, apperr.Authentication(err.Error()))
			return
		}

		claims, err := a.tokens.Verify(r.Context(), token, auth.KindAccess)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				a.writeError(w, r, apperr.Authentication("token has expired"))
			case errors.Is(err, auth.ErrInvalidTokenKind):
				a.writeError(w, r, apperr.Authentication("wrong token type"))
			default:
				a.writeError(w, r, apperr.Authentication("invalid token"))
			}
			return
		}

		if checkSession {
			live, err := a.sessions.IsValid(r.Context(), auth.HashToken(token))
			if err != nil {
				a.writeError(w, r, err)
				return
			}
			if !live {
				a.writeError(w, r, apperr.Authentication("session is no longer active"))
				return
			}
		}

		principal := auth.Principal{
			UserID:   claims.Subject,
			TenantID: claims.TenantID,
			Role:     auth.Role(claims.Role),
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
