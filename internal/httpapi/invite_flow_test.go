package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"reqsphere.io/internal/auth"
)

// seedUser creates a user directly in the store, bypassing registration.
func (f *fixture) seedUser(t *testing.T, email, password, tenantID string, role auth.Role) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	u := &auth.User{
		ID:           "seed-" + email,
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Status:       auth.StatusActive,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) loginSeeded(t *testing.T, email, password string) string {
	t.Helper()
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	rec := f.doForm(t, "/auth/login", form, reqOpts{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["access_token"].(string)
}

func TestInvitationFlow(t *testing.T) {
	f := newFixture(t, acmeTenant())
	f.seedUser(t, "admin@example.com", "Adm1nSecret", "t-acme", auth.RoleAdmin)
	adminToken := f.loginSeeded(t, "admin@example.com", "Adm1nSecret")

	// Admin invites a new contributor.
	rec := f.doJSON(t, http.MethodPost, "/auth/invite", map[string]any{
		"email": "newbie@example.com",
		"role":  "contributor",
	}, reqOpts{bearer: adminToken})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	invToken := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, invToken)

	// The signup form can preview the invitation.
	rec = f.doJSON(t, http.MethodGet, "/auth/invitation/"+invToken, nil, reqOpts{})
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decodeBody(t, rec)
	assert.Equal(t, "newbie@example.com", preview["email"])
	assert.Equal(t, "t-acme", preview["tenant_id"])
	assert.Equal(t, "contributor", preview["role"])

	// Registering consumes it; the invitation dictates tenant and role.
	rec = f.doJSON(t, http.MethodPost, "/auth/register", map[string]any{
		"email":            "newbie@example.com",
		"password":         "Sup3rSecret",
		"invitation_token": invToken,
		"tenant_id":        "some-other-tenant",
	}, reqOpts{})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "t-acme", created["tenant_id"])
	assert.Equal(t, "contributor", created["role"])
	assert.Equal(t, auth.StatusActive, created["status"])

	// Consumed invitations are invalid even though the token has not expired.
	rec = f.doJSON(t, http.MethodGet, "/auth/invitation/"+invToken, nil, reqOpts{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvitationEmailMustMatch(t *testing.T) {
	f := newFixture(t, acmeTenant())
	f.seedUser(t, "admin@example.com", "Adm1nSecret", "t-acme", auth.RoleAdmin)
	adminToken := f.loginSeeded(t, "admin@example.com", "Adm1nSecret")

	rec := f.doJSON(t, http.MethodPost, "/auth/invite", map[string]any{
		"email": "invited@example.com",
		"role":  "viewer",
	}, reqOpts{bearer: adminToken})
	require.Equal(t, http.StatusCreated, rec.Code)
	invToken := decodeBody(t, rec)["token"].(string)

	rec = f.doJSON(t, http.MethodPost, "/auth/register", map[string]any{
		"email":            "intruder@example.com",
		"password":         "Sup3rSecret",
		"invitation_token": invToken,
	}, reqOpts{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInviteRequiresAdminRole(t *testing.T) {
	f := newFixture(t, acmeTenant())
	f.seedUser(t, "viewer@example.com", "V1ewerSecret", "t-acme", auth.RoleViewer)
	viewerToken := f.loginSeeded(t, "viewer@example.com", "V1ewerSecret")

	rec := f.doJSON(t, http.MethodPost, "/auth/invite", map[string]any{
		"email": "someone@example.com",
		"role":  "viewer",
	}, reqOpts{bearer: viewerToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInviteExistingUserConflicts(t *testing.T) {
	f := newFixture(t, acmeTenant())
	f.seedUser(t, "admin@example.com", "Adm1nSecret", "t-acme", auth.RoleAdmin)
	f.seedUser(t, "taken@example.com", "Tak3nSecret", "t-acme", auth.RoleViewer)
	adminToken := f.loginSeeded(t, "admin@example.com", "Adm1nSecret")

	rec := f.doJSON(t, http.MethodPost, "/auth/invite", map[string]any{
		"email": "taken@example.com",
		"role":  "viewer",
	}, reqOpts{bearer: adminToken})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
