package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reqsphere.io/internal/auth"
)

// Users implements auth.UserStore.
type Users struct {
	db DB
}

var _ auth.UserStore = (*Users)(nil)

// NewUsers creates the user repository.
func NewUsers(db DB) *Users {
	return &Users{db: db}
}

const userColumns = `id, tenant_id, email, password_hash, full_name, role, status, is_active, last_login_at, created_at, updated_at`

func (s *Users) Create(ctx context.Context, u *auth.User) error {
	_, err := s.db.Exec(ctx, `
		insert into users (id, tenant_id, email, password_hash, full_name, role, status, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.TenantID, u.Email, u.PasswordHash, u.FullName, string(u.Role), u.Status, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Users) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.scanUser(ctx, `select `+userColumns+` from users where id = $1`, id)
}

// FindByEmail looks a user up case-insensitively; the unique index on
// lower(email) makes the comparison cheap.
func (s *Users) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.scanUser(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`, email)
}

func (s *Users) Update(ctx context.Context, u *auth.User) error {
	u.UpdatedAt = time.Now().UTC()
	ct, err := s.db.Exec(ctx, `
		update users
		set email = $1, full_name = $2, role = $3, status = $4, is_active = $5, updated_at = $6
		where id = $7
	`, u.Email, u.FullName, string(u.Role), u.Status, u.IsActive, u.UpdatedAt, u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrAlreadyExists
		}
		return fmt.Errorf("update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Users) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	ct, err := s.db.Exec(ctx, `
		update users set password_hash = $1, updated_at = now() where id = $2
	`, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Users) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		update users set last_login_at = $1 where id = $2
	`, at, userID)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (s *Users) scanUser(ctx context.Context, query string, args ...any) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	err := s.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.TenantID,
		&u.Email,
		&u.PasswordHash,
		&u.FullName,
		&role,
		&u.Status,
		&u.IsActive,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = auth.Role(role)
	return &u, nil
}
