package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reqsphere.io/internal/auth"
)

// Invitations implements auth.InvitationStore. Rows are keyed by the
// invitation token's jti.
type Invitations struct {
	db DB
}

var _ auth.InvitationStore = (*Invitations)(nil)

// NewInvitations creates the invitation repository.
func NewInvitations(db DB) *Invitations {
	return &Invitations{db: db}
}

func (s *Invitations) Create(ctx context.Context, inv *auth.Invitation) error {
	_, err := s.db.Exec(ctx, `
		insert into invitations (id, email, tenant_id, role, token, invited_by, message, expires_at, is_used, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)
	`, inv.ID, inv.Email, inv.TenantID, string(inv.Role), inv.Token, inv.InvitedBy, inv.Message, inv.ExpiresAt, inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrAlreadyExists
		}
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (s *Invitations) Find(ctx context.Context, id string) (*auth.Invitation, error) {
	var (
		inv  auth.Invitation
		role string
	)
	err := s.db.QueryRow(ctx, `
		select id, email, tenant_id, role, token, invited_by, message, expires_at, is_used, used_at, created_at
		from invitations where id = $1
	`, id).Scan(
		&inv.ID,
		&inv.Email,
		&inv.TenantID,
		&role,
		&inv.Token,
		&inv.InvitedBy,
		&inv.Message,
		&inv.ExpiresAt,
		&inv.IsUsed,
		&inv.UsedAt,
		&inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("scan invitation: %w", err)
	}
	inv.Role = auth.Role(role)
	return &inv, nil
}

// MarkUsed consumes the invitation. Marking an already-used invitation fails
// with ErrNotFound so a concurrent double registration cannot consume it
// twice.
func (s *Invitations) MarkUsed(ctx context.Context, id string, at time.Time) error {
	ct, err := s.db.Exec(ctx, `
		update invitations set is_used = true, used_at = $1
		where id = $2 and is_used = false
	`, at, id)
	if err != nil {
		return fmt.Errorf("mark invitation used: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}
