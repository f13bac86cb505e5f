package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"reqsphere.io/internal/apperr"
	"reqsphere.io/internal/auth"
	"reqsphere.io/internal/tenant"
)

var validate = validator.New()

// userResponse is the public projection of a user.
type userResponse struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:          u.ID,
		TenantID:    u.TenantID,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        string(u.Role),
		Status:      u.Status,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         userResponse `json:"user"`
}

func toTokenResponse(res *auth.AuthResult) tokenResponse {
	return tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(res.ExpiresIn.Seconds()),
		User:         toUserResponse(res.User),
	}
}

// decodeJSON reads a JSON body into dst and runs struct validation.
func (a *API) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			a.writeError(w, r, apperr.Validation("request body is required"))
		} else {
			a.writeError(w, r, apperr.Validation("invalid JSON body"))
		}
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			a.writeError(w, r, apperr.Validation("invalid field: "+strings.ToLower(verrs[0].Field())))
		} else {
			a.writeError(w, r, apperr.Validation("invalid request body"))
		}
		return false
	}
	return true
}

type registerRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	FullName        string `json:"full_name"`
	TenantID        string `json:"tenant_id"`
	InvitationToken string `json:"invitation_token"`
}

// Register creates a user. An invitation token overrides the tenant; without
// one the tenant may come from the request body or the resolved tenancy
// context.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	tenantID := req.TenantID
	if tc, ok := tenant.FromContext(r.Context()); ok {
		tenantID = tenant.StampTenant(tc, tenantID)
	}

	user, err := a.svc.Register(r.Context(), auth.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		FullName:        req.FullName,
		TenantID:        tenantID,
		InvitationToken: req.InvitationToken,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	_ = a.audit.Event(r.Context(), "auth.register", user.ID, map[string]any{
		"tenant_id": user.TenantID,
		"role":      string(user.Role),
	})
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login authenticates form-encoded credentials. The username field carries
// the email (OAuth2 password-grant convention); a plain email field works
// too.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.writeError(w, r, apperr.Validation("invalid form body"))
		return
	}
	email := r.PostFormValue("username")
	if email == "" {
		email = r.PostFormValue("email")
	}
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		a.writeError(w, r, apperr.Validation("username and password are required"))
		return
	}
	remember := r.PostFormValue("remember_me") == "true"

	var subdomain string
	if tc, ok := tenant.FromContext(r.Context()); ok {
		subdomain = tc.TenantSubdomain
	}

	res, err := a.svc.Authenticate(r.Context(), auth.AuthenticateInput{
		Email:           email,
		Password:        password,
		TenantSubdomain: subdomain,
		RememberMe:      remember,
		IP:              clientIP(r),
		UserAgent:       r.UserAgent(),
	})
	if err != nil {
		_ = a.audit.Event(r.Context(), "auth.login_failed", "", map[string]any{
			"email": strings.ToLower(strings.TrimSpace(email)),
		})
		a.writeError(w, r, err)
		return
	}

	_ = a.audit.Event(r.Context(), "auth.login", res.User.ID, map[string]any{
		"tenant_id": res.User.TenantID,
	})
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshToken exchanges a refresh token for a fresh access token.
func (a *API) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	res, err := a.svc.Refresh(r.Context(), req.RefreshToken, clientIP(r), r.UserAgent())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(res))
}

// Logout terminates the current session. Always reports success.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := auth.TokenFromContext(r.Context()); ok {
		a.svc.Logout(r.Context(), token)
	}
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		_ = a.audit.Event(r.Context(), "auth.logout", principal.UserID, nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
}

// LogoutAll terminates every session of the current user. Always reports
// success.
func (a *API) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
		a.svc.LogoutAll(r.Context(), principal.UserID)
		_ = a.audit.Event(r.Context(), "auth.logout_all", principal.UserID, nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out from all sessions"})
}

// Me returns the current user's profile.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Authentication("not authenticated"))
		return
	}
	user, err := a.svc.CurrentUser(r.Context(), principal.UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type updateMeRequest struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

// UpdateMe updates the current user's profile fields.
func (a *API) UpdateMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Authentication("not authenticated"))
		return
	}
	var req updateMeRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	user, err := a.svc.UpdateProfile(r.Context(), principal.UserID, auth.ProfileUpdate{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// ChangePassword rotates the password and invalidates every session.
func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Authentication("not authenticated"))
		return
	}
	var req changePasswordRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	if err := a.svc.ChangePassword(r.Context(), principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		a.writeError(w, r, err)
		return
	}

	_ = a.audit.Event(r.Context(), "auth.password_changed", principal.UserID, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Password changed successfully. Please log in again.",
	})
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestPasswordReset always reports success so responses never reveal
// whether an email is registered. The reset token leaves through the mail
// pipeline, never through this response.
func (a *API) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	if _, err := a.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			a.logger.ErrorContext(r.Context(), "password reset request failed",
				slog.String("error", err.Error()))
		}
	} else {
		_ = a.audit.Event(r.Context(), "auth.password_reset_requested", "", map[string]any{
			"email": strings.ToLower(strings.TrimSpace(req.Email)),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "If the email address is registered, a reset link has been sent.",
	})
}

type confirmResetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ConfirmPasswordReset consumes a reset token and sets the new password.
func (a *API) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	if err := a.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		a.writeError(w, r, err)
		return
	}

	_ = a.audit.Event(r.Context(), "auth.password_reset_completed", "", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Password has been reset. Please log in with your new password.",
	})
}

type inviteRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Role    string `json:"role" validate:"required"`
	Message string `json:"message"`
}

type invitationResponse struct {
	Email     string    `json:"email"`
	TenantID  string    `json:"tenant_id"`
	Role      string    `json:"role"`
	Token     string    `json:"token,omitempty"`
	Message   string    `json:"message,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Invite creates an invitation into the caller's tenant. Requires an admin
// role, enforced by the service.
func (a *API) Invite(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Authentication("not authenticated"))
		return
	}
	var req inviteRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	inv, err := a.svc.InviteUser(r.Context(), auth.InviteInput{
		InviterID: principal.UserID,
		TenantID:  principal.TenantID,
		Email:     req.Email,
		Role:      auth.Role(req.Role),
		Message:   req.Message,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	_ = a.audit.Event(r.Context(), "auth.invitation_created", principal.UserID, map[string]any{
		"tenant_id": inv.TenantID,
		"email":     inv.Email,
		"role":      string(inv.Role),
	})
	writeJSON(w, http.StatusCreated, invitationResponse{
		Email:     inv.Email,
		TenantID:  inv.TenantID,
		Role:      string(inv.Role),
		Token:     inv.Token,
		Message:   inv.Message,
		ExpiresAt: inv.ExpiresAt,
	})
}

// VerifyInvitation looks an invitation up by its token for the signup form.
func (a *API) VerifyInvitation(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	inv, err := a.svc.VerifyInvitation(r.Context(), token)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invitationResponse{
		Email:     inv.Email,
		TenantID:  inv.TenantID,
		Role:      string(inv.Role),
		Message:   inv.Message,
		ExpiresAt: inv.ExpiresAt,
	})
}

// Providers lists the configured authentication providers. Password is the
// only built-in; OAuth providers appear here once configured.
func (a *API) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": []map[string]any{
			{"name": "password", "type": "credentials", "enabled": true},
		},
	})
}
