package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"reqsphere.io/internal/apperr"
	"reqsphere.io/internal/ids"
	"reqsphere.io/internal/obs"
)

const minPasswordLength = 8

// invalidCredentials is the single message used for every credential
// failure, so responses never reveal whether an email is registered.
const invalidCredentials = "Invalid email or password"

// Service orchestrates registration, login, token refresh, password
// lifecycle, and invitations.
type Service struct {
	users       UserStore
	tenants     TenantStore
	invitations InvitationStore
	sessions    SessionRegistry
	tokens      *TokenService
	hasher      *Hasher
	logger      *slog.Logger

	sessionTTL  time.Duration
	rememberTTL time.Duration
	now         func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithSessionTTLs overrides the default and remember-me session lifetimes.
func WithSessionTTLs(standard, remember time.Duration) ServiceOption {
	return func(s *Service) {
		if standard > 0 {
			s.sessionTTL = standard
		}
		if remember > 0 {
			s.rememberTTL = remember
		}
	}
}

// WithServiceClock overrides the time source, for tests.
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the authentication service.
func NewService(
	users UserStore,
	tenants TenantStore,
	invitations InvitationStore,
	sessions SessionRegistry,
	tokens *TokenService,
	hasher *Hasher,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		users:       users,
		tenants:     tenants,
		invitations: invitations,
		sessions:    sessions,
		tokens:      tokens,
		hasher:      hasher,
		logger:      logger,
		sessionTTL:  24 * time.Hour,
		rememberTTL: 7 * 24 * time.Hour,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashToken returns the SHA-256 hex digest identifying a session by its
// access token string.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email           string
	Password        string
	FullName        string
	TenantID        string
	InvitationToken string
}

// Register creates a new user. An invitation token, when present, dictates
// the tenant and role regardless of caller-supplied values. Without an
// invitation and without a tenant, the user is parked on the placeholder
// tenant with PENDING status until they create or join a tenant.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	if existing, err := s.users.FindByEmail(ctx, email); err == nil && existing != nil {
		return nil, apperr.Conflict("a user with this email already exists")
	} else if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	tenantID := strings.TrimSpace(in.TenantID)
	role := RoleOwner
	status := StatusActive
	var invitation *Invitation

	switch {
	case in.InvitationToken != "":
		inv, err := s.consumeInvitationTarget(ctx, in.InvitationToken, email)
		if err != nil {
			return nil, err
		}
		invitation = inv
		tenantID = inv.TenantID
		role = inv.Role
	case tenantID == "":
		tenantID = PlaceholderTenantID
		status = StatusPending
	default:
		if _, err := s.tenants.Find(ctx, tenantID); err != nil {
			return nil, apperr.NotFound("tenant")
		}
		role = RoleContributor
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		Role:         role,
		Status:       status,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) || errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict("a user with this email already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if invitation != nil {
		if err := s.invitations.MarkUsed(ctx, invitation.ID, now); err != nil {
			s.logger.ErrorContext(ctx, "mark invitation used",
				slog.String("invitation_id", invitation.ID),
				slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.TenantID),
		slog.String("role", string(user.Role)))
	return user, nil
}

// AuthenticateInput holds login parameters.
type AuthenticateInput struct {
	Email           string
	Password        string
	TenantSubdomain string
	RememberMe      bool
	IP              string
	UserAgent       string
}

// AuthResult is a successful login.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Principal    Principal
	User         *User
}

// Authenticate verifies credentials and opens a session. Account-state
// checks run before the password comparison so a suspended account reports
// suspension regardless of password correctness; unknown email and wrong
// password share one generic message.
func (s *Service) Authenticate(ctx context.Context, in AuthenticateInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		obs.ObserveLogin("invalid_credentials")
		return nil, apperr.Authentication(invalidCredentials)
	}
	if !user.IsActive {
		obs.ObserveLogin("inactive")
		return nil, apperr.Authentication("Account is deactivated")
	}
	if user.Status == StatusSuspended {
		obs.ObserveLogin("suspended")
		return nil, apperr.Authentication("Account is suspended")
	}
	if user.Status == StatusPending {
		obs.ObserveLogin("pending")
		return nil, apperr.Authentication("Account is pending activation")
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		obs.ObserveLogin("invalid_credentials")
		return nil, apperr.Authentication(invalidCredentials)
	}

	if sub := strings.TrimSpace(in.TenantSubdomain); sub != "" {
		tenant, err := s.tenants.FindBySubdomain(ctx, sub)
		if err != nil || tenant.ID != user.TenantID {
			obs.ObserveLogin("invalid_credentials")
			return nil, apperr.Authentication(invalidCredentials)
		}
	}

	access, _, err := s.tokens.Issue(IssueInput{
		Kind:     KindAccess,
		Subject:  user.ID,
		TenantID: user.TenantID,
		Role:     user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, _, err := s.tokens.Issue(IssueInput{
		Kind:     KindRefresh,
		Subject:  user.ID,
		TenantID: user.TenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.openSession(ctx, user.ID, access, in.RememberMe, in.IP, in.UserAgent); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.ErrorContext(ctx, "update last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
	}
	user.LastLoginAt = &now

	obs.ObserveLogin("success")
	s.logger.InfoContext(ctx, "user authenticated",
		slog.String("user_id", user.ID),
		slog.String("tenant_id", user.TenantID))

	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.tokens.AccessTTL(),
		Principal:    NewPrincipal(user),
		User:         user,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The user
// is re-fetched so role or status changes since login take effect.
func (s *Service) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*AuthResult, error) {
	claims, err := s.tokens.Verify(ctx, refreshToken, KindRefresh)
	if err != nil {
		return nil, apperr.Authentication("invalid or expired refresh token")
	}

	user, err := s.users.Find(ctx, claims.Subject)
	if err != nil {
		return nil, apperr.Authentication("invalid or expired refresh token")
	}
	if !user.IsActive || user.Status != StatusActive {
		return nil, apperr.Authentication("account is no longer active")
	}

	access, _, err := s.tokens.Issue(IssueInput{
		Kind:     KindAccess,
		Subject:  user.ID,
		TenantID: user.TenantID,
		Role:     user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	if err := s.openSession(ctx, user.ID, access, false, ip, userAgent); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &AuthResult{
		AccessToken: access,
		ExpiresIn:   s.tokens.AccessTTL(),
		Principal:   NewPrincipal(user),
		User:        user,
	}, nil
}

// Logout terminates the session matching the access token. It never fails
// visibly: internal errors are logged and swallowed, and logging out an
// already-terminated session succeeds.
func (s *Service) Logout(ctx context.Context, accessToken string) {
	if strings.TrimSpace(accessToken) == "" {
		return
	}
	if err := s.sessions.Invalidate(ctx, HashToken(accessToken)); err != nil {
		s.logger.ErrorContext(ctx, "logout", slog.String("error", err.Error()))
	}
}

// LogoutAll terminates every session for the user. Like Logout, internal
// failures are not surfaced.
func (s *Service) LogoutAll(ctx context.Context, userID string) {
	if err := s.sessions.InvalidateAll(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "logout all",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}
}

// CurrentUser loads the live user record for a verified principal.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, apperr.NotFound("user")
	}
	return user, nil
}

// ProfileUpdate holds the caller-editable profile fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	FullName *string
	Email    *string
}

// UpdateProfile applies a profile update. An email change is checked for
// conflicts the same way registration is.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*User, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, apperr.NotFound("user")
	}
	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" {
			return nil, apperr.Validation("email cannot be empty")
		}
		if email != user.Email {
			if existing, err := s.users.FindByEmail(ctx, email); err == nil && existing != nil {
				return nil, apperr.Conflict("a user with this email already exists")
			}
			user.Email = email
		}
	}
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, apperr.Conflict("a user with this email already exists")
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// ChangePassword verifies the current password, stores the new one, and
// invalidates every session for the user.
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return apperr.NotFound("user")
	}
	ok, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return apperr.Authentication("current password is incorrect")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.sessions.InvalidateAll(ctx, userID); err != nil {
		return fmt.Errorf("invalidate sessions: %w", err)
	}
	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", userID))
	return nil
}

// RequestPasswordReset issues a reset token for the email's account. A
// missing email fails with NotFound internally; the HTTP boundary converts
// that into the same generic success as a real request.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", apperr.NotFound("user")
	}
	token, _, err := s.tokens.Issue(IssueInput{
		Kind:     KindPasswordReset,
		Subject:  user.ID,
		TenantID: user.TenantID,
	})
	if err != nil {
		return "", fmt.Errorf("issue reset token: %w", err)
	}
	s.logger.InfoContext(ctx, "password reset requested", slog.String("user_id", user.ID))
	return token, nil
}

// ResetPassword consumes a reset token, stores the new password, and
// invalidates every session. The token's jti enters the revocation set for
// its remaining lifetime so it cannot be replayed.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.tokens.Verify(ctx, token, KindPasswordReset)
	if err != nil {
		return apperr.InvalidToken("invalid or expired reset token")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.Find(ctx, claims.Subject)
	if err != nil {
		return apperr.NotFound("user")
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.sessions.InvalidateAll(ctx, user.ID); err != nil {
		return fmt.Errorf("invalidate sessions: %w", err)
	}

	if claims.ID != "" && claims.ExpiresAt != nil {
		remaining := claims.ExpiresAt.Time.Sub(s.now())
		if remaining > 0 {
			if err := s.tokens.RevokeJTI(ctx, claims.ID, remaining); err != nil {
				s.logger.ErrorContext(ctx, "revoke reset token",
					slog.String("jti", claims.ID),
					slog.String("error", err.Error()))
			}
		}
	}

	s.logger.InfoContext(ctx, "password reset completed", slog.String("user_id", user.ID))
	return nil
}

// InviteInput holds the parameters for inviting a user into a tenant.
type InviteInput struct {
	InviterID string
	TenantID  string
	Email     string
	Role      Role
	Message   string
}

// InviteUser creates an invitation token and its durable record. The record
// is keyed by the token's jti; token and record exist together or not at
// all.
func (s *Service) InviteUser(ctx context.Context, in InviteInput) (*Invitation, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	if !in.Role.Valid() {
		return nil, apperr.Validation("unknown role")
	}

	inviter, err := s.users.Find(ctx, in.InviterID)
	if err != nil {
		return nil, apperr.NotFound("user")
	}
	if inviter.TenantID != in.TenantID {
		return nil, apperr.Authorization("cannot invite into another tenant")
	}
	if !inviter.Role.AtLeast(RoleAdmin) {
		return nil, apperr.Authorization("inviting users requires an admin role")
	}

	if existing, err := s.users.FindByEmail(ctx, email); err == nil && existing != nil {
		return nil, apperr.Conflict("a user with this email already exists")
	}

	token, claims, err := s.tokens.Issue(IssueInput{
		Kind:     KindInvitation,
		Subject:  in.InviterID,
		TenantID: in.TenantID,
		Role:     in.Role,
		Email:    email,
	})
	if err != nil {
		return nil, fmt.Errorf("issue invitation token: %w", err)
	}

	inv := &Invitation{
		ID:        claims.ID,
		Email:     email,
		TenantID:  in.TenantID,
		Role:      in.Role,
		Token:     token,
		InvitedBy: in.InviterID,
		Message:   strings.TrimSpace(in.Message),
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: s.now().UTC(),
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	s.logger.InfoContext(ctx, "invitation created",
		slog.String("invitation_id", inv.ID),
		slog.String("tenant_id", inv.TenantID),
		slog.String("role", string(inv.Role)))
	return inv, nil
}

// VerifyInvitation checks both the signed token and the durable record: an
// unexpired token whose record is used or missing is invalid.
func (s *Service) VerifyInvitation(ctx context.Context, token string) (*Invitation, error) {
	claims, err := s.tokens.Verify(ctx, token, KindInvitation)
	if err != nil {
		return nil, invalidInvitation()
	}
	inv, err := s.invitations.Find(ctx, claims.ID)
	if err != nil {
		return nil, invalidInvitation()
	}
	if inv.IsUsed || s.now().After(inv.ExpiresAt) {
		return nil, invalidInvitation()
	}
	return inv, nil
}

// consumeInvitationTarget validates an invitation for a registration and
// checks the registering email matches the invited one.
func (s *Service) consumeInvitationTarget(ctx context.Context, token, email string) (*Invitation, error) {
	inv, err := s.VerifyInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Email != email {
		return nil, invalidInvitation()
	}
	return inv, nil
}

func invalidInvitation() error {
	return apperr.InvalidToken("invitation is invalid, used, or expired")
}

func (s *Service) openSession(ctx context.Context, userID, accessToken string, remember bool, ip, userAgent string) error {
	ttl := s.sessionTTL
	if remember {
		ttl = s.rememberTTL
	}
	now := s.now().UTC()
	return s.sessions.Create(ctx, &Session{
		ID:             ids.New(),
		UserID:         userID,
		TokenHash:      HashToken(accessToken),
		IP:             ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
		IsActive:       true,
	})
}

// validatePassword enforces minimum password complexity.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return apperr.Validation("password must contain an uppercase letter, a lowercase letter, and a digit")
	}
	return nil
}
