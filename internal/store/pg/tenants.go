package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"reqsphere.io/internal/auth"
)

// Tenants implements auth.TenantStore.
type Tenants struct {
	db DB
}

var _ auth.TenantStore = (*Tenants)(nil)

// NewTenants creates the tenant repository.
func NewTenants(db DB) *Tenants {
	return &Tenants{db: db}
}

const tenantColumns = `id, name, subdomain, created_at, updated_at, deleted_at`

func (s *Tenants) Create(ctx context.Context, t *auth.Tenant) error {
	_, err := s.db.Exec(ctx, `
		insert into tenants (id, name, subdomain, created_at, updated_at)
		values ($1, $2, $3, $4, $5)
	`, t.ID, t.Name, t.Subdomain, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrAlreadyExists
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

// Find returns the tenant by id including soft-deleted rows; callers decide
// how to treat DeletedAt.
func (s *Tenants) Find(ctx context.Context, id string) (*auth.Tenant, error) {
	return s.scanTenant(ctx, `select `+tenantColumns+` from tenants where id = $1`, id)
}

// FindBySubdomain resolves a live tenant; soft-deleted tenants do not match.
func (s *Tenants) FindBySubdomain(ctx context.Context, subdomain string) (*auth.Tenant, error) {
	return s.scanTenant(ctx, `
		select `+tenantColumns+` from tenants where subdomain = $1 and deleted_at is null
	`, subdomain)
}

func (s *Tenants) scanTenant(ctx context.Context, query string, args ...any) (*auth.Tenant, error) {
	var t auth.Tenant
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&t.ID,
		&t.Name,
		&t.Subdomain,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return &t, nil
}
