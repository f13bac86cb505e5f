package auth

import (
	"context"
	"time"
)

// UserStore manages user persistence. Email lookups are case-insensitive.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// TenantStore manages tenant lookup and creation.
type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	Find(ctx context.Context, id string) (*Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
}

// InvitationStore manages durable invitation records.
type InvitationStore interface {
	Create(ctx context.Context, inv *Invitation) error
	Find(ctx context.Context, id string) (*Invitation, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
}

// SessionRegistry is the slice of the session subsystem the authentication
// service needs: creating sessions at login and invalidating them on logout
// and password changes.
type SessionRegistry interface {
	Create(ctx context.Context, s *Session) error
	Invalidate(ctx context.Context, tokenHash string) error
	InvalidateAll(ctx context.Context, userID string) error
}

// RevocationSet tracks revoked token jti values (consumed password-reset
// tokens, revoked API keys).
type RevocationSet interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
