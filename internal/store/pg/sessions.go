package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reqsphere.io/internal/auth"
	"reqsphere.io/internal/session"
)

// Sessions implements session.Store.
type Sessions struct {
	db DB
}

var _ session.Store = (*Sessions)(nil)

// NewSessions creates the session repository.
func NewSessions(db DB) *Sessions {
	return &Sessions{db: db}
}

const sessionColumns = `id, user_id, token_hash, ip, user_agent, created_at, expires_at, last_activity_at, is_active, terminated_at`

func (s *Sessions) Create(ctx context.Context, sess *auth.Session) error {
	_, err := s.db.Exec(ctx, `
		insert into sessions (id, user_id, token_hash, ip, user_agent, created_at, expires_at, last_activity_at, is_active)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.IP, sess.UserAgent, sess.CreatedAt, sess.ExpiresAt, sess.LastActivityAt, sess.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrAlreadyExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Sessions) FindByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	var sess auth.Session
	err := s.db.QueryRow(ctx, `
		select `+sessionColumns+` from sessions where token_hash = $1
	`, tokenHash).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.TokenHash,
		&sess.IP,
		&sess.UserAgent,
		&sess.CreatedAt,
		&sess.ExpiresAt,
		&sess.LastActivityAt,
		&sess.IsActive,
		&sess.TerminatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &sess, nil
}

func (s *Sessions) ListActiveForUser(ctx context.Context, userID string) ([]*auth.Session, error) {
	rows, err := s.db.Query(ctx, `
		select `+sessionColumns+` from sessions
		where user_id = $1 and is_active = true
		order by created_at desc
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		var sess auth.Session
		if err := rows.Scan(
			&sess.ID,
			&sess.UserID,
			&sess.TokenHash,
			&sess.IP,
			&sess.UserAgent,
			&sess.CreatedAt,
			&sess.ExpiresAt,
			&sess.LastActivityAt,
			&sess.IsActive,
			&sess.TerminatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

func (s *Sessions) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		update sessions set last_activity_at = $1 where token_hash = $2 and is_active = true
	`, at, tokenHash)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *Sessions) Terminate(ctx context.Context, tokenHash string, at time.Time) error {
	ct, err := s.db.Exec(ctx, `
		update sessions set is_active = false, terminated_at = $1
		where token_hash = $2 and is_active = true
	`, at, tokenHash)
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Sessions) TerminateAllForUser(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		update sessions set is_active = false, terminated_at = $1
		where user_id = $2 and is_active = true
	`, at, userID)
	if err != nil {
		return fmt.Errorf("terminate sessions: %w", err)
	}
	return nil
}

func (s *Sessions) TerminateExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `
		update sessions set is_active = false, terminated_at = $1
		where is_active = true and expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("terminate expired sessions: %w", err)
	}
	return ct.RowsAffected(), nil
}
