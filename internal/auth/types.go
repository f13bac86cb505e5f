package auth

import "time"

// PlaceholderTenantID is assigned to users who register without an
// invitation or tenant; they stay PENDING until they create or join one.
const PlaceholderTenantID = "00000000-0000-0000-0000-000000000000"

// User status values.
const (
	StatusActive    = "active"
	StatusPending   = "pending"
	StatusSuspended = "suspended"
)

// Tenant is an isolated customer organization.
type Tenant struct {
	ID        string
	Name      string
	Subdomain string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// User is a human account belonging to exactly one tenant.
type User struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string
	FullName     string
	Role         Role
	Status       string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is one login. Multiple concurrent sessions per user are allowed.
// TokenHash identifies the session by the SHA-256 of its access token.
type Session struct {
	ID             string
	UserID         string
	TokenHash      string
	IP             string
	UserAgent      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	IsActive       bool
	TerminatedAt   *time.Time
}

// Invitation invites an email address into a tenant with a role. Consumed at
// most once; invalid after expiry or first use regardless of token validity.
type Invitation struct {
	ID        string
	Email     string
	TenantID  string
	Role      Role
	Token     string
	InvitedBy string
	Message   string
	ExpiresAt time.Time
	IsUsed    bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Principal is the verified identity attached to a request.
type Principal struct {
	UserID      string
	TenantID    string
	Role        Role
	Status      string
	Permissions map[string]struct{}
}

// NewPrincipal builds a principal from a user, resolving role permissions.
func NewPrincipal(u *User) Principal {
	perms := u.Role.Permissions()
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return Principal{
		UserID:      u.ID,
		TenantID:    u.TenantID,
		Role:        u.Role,
		Status:      u.Status,
		Permissions: set,
	}
}

// HasPermission reports whether the principal holds the permission key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}
