package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reqsphere.io/internal/auth"
)

func newUsersFixture(t *testing.T) (*Users, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewUsers(mock), mock
}

func sampleUser() *auth.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.User{
		ID:           "u-1",
		TenantID:     "t-1",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		FullName:     "Alice Smith",
		Role:         auth.RoleContributor,
		Status:       auth.StatusActive,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userRow(u *auth.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "email", "password_hash", "full_name",
		"role", "status", "is_active", "last_login_at", "created_at", "updated_at",
	}).AddRow(
		u.ID, u.TenantID, u.Email, u.PasswordHash, u.FullName,
		string(u.Role), u.Status, u.IsActive, u.LastLoginAt, u.CreatedAt, u.UpdatedAt,
	)
}

func TestUsersCreate(t *testing.T) {
	repo, mock := newUsersFixture(t)
	defer mock.Close()

	u := sampleUser()
	mock.ExpectExec("insert into users").
		WithArgs(u.ID, u.TenantID, u.Email, u.PasswordHash, u.FullName,
			string(u.Role), u.Status, u.IsActive, u.CreatedAt, u.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersCreateDuplicateEmail(t *testing.T) {
	repo, mock := newUsersFixture(t)
	defer mock.Close()

	u := sampleUser()
	mock.ExpectExec("insert into users").
		WithArgs(u.ID, u.TenantID, u.Email, u.PasswordHash, u.FullName,
			string(u.Role), u.Status, u.IsActive, u.CreatedAt, u.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := repo.Create(context.Background(), u)
	assert.True(t, errors.Is(err, auth.ErrAlreadyExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersFindByEmailIsCaseInsensitive(t *testing.T) {
	repo, mock := newUsersFixture(t)
	defer mock.Close()

	u := sampleUser()
	mock.ExpectQuery(`lower\(email\) = lower\(\$1\)`).
		WithArgs("Alice@Example.COM").
		WillReturnRows(userRow(u))

	got, err := repo.FindByEmail(context.Background(), "Alice@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, auth.RoleContributor, got.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersFindNotFound(t *testing.T) {
	repo, mock := newUsersFixture(t)
	defer mock.Close()

	mock.ExpectQuery("select .+ from users where id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Find(context.Background(), "missing")
	assert.True(t, errors.Is(err, auth.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersUpdatePassword(t *testing.T) {
	repo, mock := newUsersFixture(t)
	defer mock.Close()

	mock.ExpectExec("update users set password_hash").
		WithArgs("newhash", "u-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), "u-1", "newhash"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersUpdatePasswordUnknownUser(t *testing.T) {
	repo, mock := newUsersFixture(t)
	defer mock.Close()

	mock.ExpectExec("update users set password_hash").
		WithArgs("newhash", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdatePassword(context.Background(), "missing", "newhash")
	assert.True(t, errors.Is(err, auth.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
