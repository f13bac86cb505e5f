package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"reqsphere.io/internal/ids"
	"reqsphere.io/internal/obs"
)

const issuer = "reqsphere"

// TokenKind is the closed category of a signed token. A token verified for
// kind K must carry kind K; signature validity alone is never sufficient.
type TokenKind string

const (
	KindAccess        TokenKind = "access"
	KindRefresh       TokenKind = "refresh"
	KindPasswordReset TokenKind = "password_reset"
	KindInvitation    TokenKind = "invitation"
	KindAPIKey        TokenKind = "api_key"
)

// Claims is the claim set shared by every token kind.
type Claims struct {
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role,omitempty"`
	Kind     string `json:"kind"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenTTLs configures per-kind lifetimes. API keys never expire.
type TokenTTLs struct {
	Access        time.Duration
	Refresh       time.Duration
	PasswordReset time.Duration
	Invitation    time.Duration
}

// DefaultTokenTTLs returns the standard lifetimes.
func DefaultTokenTTLs() TokenTTLs {
	return TokenTTLs{
		Access:        30 * time.Minute,
		Refresh:       7 * 24 * time.Hour,
		PasswordReset: time.Hour,
		Invitation:    7 * 24 * time.Hour,
	}
}

// TokenService issues and verifies signed HS256 tokens of every kind through
// a single codec.
type TokenService struct {
	secret  []byte
	ttls    TokenTTLs
	revoked RevocationSet
	now     func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithRevocationSet enables jti revocation checks for API keys and consumed
// password-reset tokens.
func WithRevocationSet(set RevocationSet) TokenOption {
	return func(s *TokenService) { s.revoked = set }
}

// NewTokenService constructs a TokenService.
func NewTokenService(secret string, ttls TokenTTLs, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is not configured")
	}
	s := &TokenService{
		secret: []byte(secret),
		ttls:   ttls,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueInput describes a token to mint. TTL overrides the kind default when
// positive; it is ignored for API keys, which never expire.
type IssueInput struct {
	Kind     TokenKind
	Subject  string
	TenantID string
	Role     Role
	Email    string
	TTL      time.Duration
}

// Issue mints a signed token. Refresh, invitation, password-reset, and
// API-key tokens carry a unique jti.
func (s *TokenService) Issue(in IssueInput) (string, *Claims, error) {
	if strings.TrimSpace(in.Subject) == "" && in.Kind != KindInvitation {
		return "", nil, errors.New("auth: token subject is required")
	}
	ttl, err := s.ttlFor(in.Kind, in.TTL)
	if err != nil {
		return "", nil, err
	}

	now := s.now().UTC()
	claims := &Claims{
		TenantID: in.TenantID,
		Kind:     string(in.Kind),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  in.Subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if in.Role != "" {
		if !in.Role.Valid() {
			return "", nil, errors.New("auth: unknown role")
		}
		claims.Role = string(in.Role)
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	switch in.Kind {
	case KindRefresh, KindInvitation, KindPasswordReset, KindAPIKey:
		claims.ID = ids.New()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Verify checks the token structurally (signature, then expiry) and only
// then compares its kind against expected: a structurally valid token of the
// wrong kind fails with ErrInvalidTokenKind. Kinds subject to revocation are
// additionally checked against the revocation set.
func (s *TokenService) Verify(ctx context.Context, tokenString string, expected TokenKind) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		obs.ObserveTokenVerification(string(expected), "invalid")
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			obs.ObserveTokenVerification(string(expected), "expired")
			return nil, ErrTokenExpired
		}
		obs.ObserveTokenVerification(string(expected), "invalid")
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		obs.ObserveTokenVerification(string(expected), "invalid")
		return nil, ErrInvalidToken
	}

	if TokenKind(claims.Kind) != expected {
		obs.ObserveTokenVerification(string(expected), "wrong_kind")
		return nil, ErrInvalidTokenKind
	}

	if s.revoked != nil && claims.ID != "" {
		switch expected {
		case KindAPIKey, KindPasswordReset:
			revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
			if err != nil {
				return nil, err
			}
			if revoked {
				obs.ObserveTokenVerification(string(expected), "revoked")
				return nil, ErrTokenRevoked
			}
		}
	}

	obs.ObserveTokenVerification(string(expected), "ok")
	return claims, nil
}

// RevokeJTI adds a jti to the revocation set. A zero ttl keeps the entry
// indefinitely (API keys); otherwise it may lapse with the token's own
// expiry.
func (s *TokenService) RevokeJTI(ctx context.Context, jti string, ttl time.Duration) error {
	if s.revoked == nil {
		return errors.New("auth: no revocation set configured")
	}
	return s.revoked.Revoke(ctx, jti, ttl)
}

// AccessTTL exposes the access token lifetime for expires_in responses.
func (s *TokenService) AccessTTL() time.Duration { return s.ttls.Access }

func (s *TokenService) ttlFor(kind TokenKind, override time.Duration) (time.Duration, error) {
	if kind == KindAPIKey {
		// Non-expiring; revocable only through the jti set.
		return 0, nil
	}
	if override > 0 {
		return override, nil
	}
	switch kind {
	case KindAccess:
		return s.ttls.Access, nil
	case KindRefresh:
		return s.ttls.Refresh, nil
	case KindPasswordReset:
		return s.ttls.PasswordReset, nil
	case KindInvitation:
		return s.ttls.Invitation, nil
	default:
		return 0, errors.New("auth: unknown token kind")
	}
}
