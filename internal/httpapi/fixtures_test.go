package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"reqsphere.io/internal/audit"
	"reqsphere.io/internal/auth"
	"reqsphere.io/internal/session"
	"reqsphere.io/internal/tenant"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// --- in-memory stores ---

type memUsers struct {
	mu    sync.Mutex
	byID  map[string]*auth.User
	byEml map[string]*auth.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*auth.User{}, byEml: map[string]*auth.User{}}
}

func (s *memUsers) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.byEml[key]; ok {
		return auth.ErrAlreadyExists
	}
	cp := *u
	s.byID[u.ID] = &cp
	s.byEml[key] = &cp
	return nil
}

func (s *memUsers) Find(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEml[strings.ToLower(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) Update(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[u.ID]
	if !ok {
		return auth.ErrNotFound
	}
	delete(s.byEml, strings.ToLower(old.Email))
	cp := *u
	s.byID[u.ID] = &cp
	s.byEml[strings.ToLower(u.Email)] = &cp
	return nil
}

func (s *memUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *memUsers) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[userID]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

type memTenants struct {
	mu    sync.Mutex
	byID  map[string]*auth.Tenant
	bySub map[string]*auth.Tenant
}

func newMemTenants(tenants ...*auth.Tenant) *memTenants {
	s := &memTenants{byID: map[string]*auth.Tenant{}, bySub: map[string]*auth.Tenant{}}
	for _, t := range tenants {
		s.byID[t.ID] = t
		s.bySub[t.Subdomain] = t
	}
	return s
}

func (s *memTenants) Create(_ context.Context, t *auth.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[t.ID] = t
	s.bySub[t.Subdomain] = t
	return nil
}

func (s *memTenants) Find(_ context.Context, id string) (*auth.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return t, nil
}

func (s *memTenants) FindBySubdomain(_ context.Context, sub string) (*auth.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.bySub[sub]
	if !ok || t.DeletedAt != nil {
		return nil, auth.ErrNotFound
	}
	return t, nil
}

type memInvitations struct {
	mu   sync.Mutex
	byID map[string]*auth.Invitation
}

func newMemInvitations() *memInvitations {
	return &memInvitations{byID: map[string]*auth.Invitation{}}
}

func (s *memInvitations) Create(_ context.Context, inv *auth.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	s.byID[inv.ID] = &cp
	return nil
}

func (s *memInvitations) Find(_ context.Context, id string) (*auth.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *memInvitations) MarkUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok || inv.IsUsed {
		return auth.ErrNotFound
	}
	inv.IsUsed = true
	inv.UsedAt = &at
	return nil
}

type memSessions struct {
	mu     sync.Mutex
	byHash map[string]*auth.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byHash: map[string]*auth.Session{}}
}

func (s *memSessions) Create(_ context.Context, sess *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.byHash[sess.TokenHash] = &cp
	return nil
}

func (s *memSessions) FindByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byHash[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memSessions) ListActiveForUser(_ context.Context, userID string) ([]*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.Session
	for _, sess := range s.byHash {
		if sess.UserID == userID && sess.IsActive {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memSessions) Touch(_ context.Context, tokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byHash[tokenHash]; ok {
		sess.LastActivityAt = at
	}
	return nil
}

func (s *memSessions) Terminate(_ context.Context, tokenHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byHash[tokenHash]
	if !ok || !sess.IsActive {
		return auth.ErrNotFound
	}
	sess.IsActive = false
	sess.TerminatedAt = &at
	return nil
}

func (s *memSessions) TerminateAllForUser(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.byHash {
		if sess.UserID == userID && sess.IsActive {
			sess.IsActive = false
			sess.TerminatedAt = &at
		}
	}
	return nil
}

func (s *memSessions) TerminateExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sess := range s.byHash {
		if sess.IsActive && now.After(sess.ExpiresAt) {
			sess.IsActive = false
			n++
		}
	}
	return n, nil
}

type memCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemCache() *memCache { return &memCache{keys: map[string]bool{}} }

func (c *memCache) Has(_ context.Context, tokenHash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[tokenHash], nil
}

func (c *memCache) Put(_ context.Context, tokenHash string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[tokenHash] = true
	return nil
}

func (c *memCache) Evict(_ context.Context, tokenHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, tokenHash)
	return nil
}

// --- fixture ---

type fixture struct {
	api     *API
	handler http.Handler
	users   *memUsers
	tenants *memTenants
}

func newFixture(t *testing.T, tenants ...*auth.Tenant) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	tokens, err := auth.NewTokenService(testSecret, auth.DefaultTokenTTLs())
	require.NoError(t, err)

	users := newMemUsers()
	tenantStore := newMemTenants(tenants...)
	invitations := newMemInvitations()
	registry := session.NewRegistry(newMemSessions(), newMemCache(), time.Minute, logger)

	svc := auth.NewService(users, tenantStore, invitations, registry, tokens,
		auth.NewHasher(bcrypt.MinCost), logger)
	resolver := tenant.NewResolver(tenantStore, tokens, nil, "example.com", logger)

	api := New(svc, tokens, registry, resolver, audit.New(logger), logger, ReadyProbe{}, "test")
	return &fixture{
		api:     api,
		handler: api.Handler(),
		users:   users,
		tenants: tenantStore,
	}
}

type reqOpts struct {
	host   string
	bearer string
	header map[string]string
}

func (f *fixture) doJSON(t *testing.T, method, path string, body any, opts reqOpts) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, "http://example.com"+path, rd)
	req.Header.Set("Content-Type", "application/json")
	f.apply(req, opts)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) doForm(t *testing.T, path string, form url.Values, opts reqOpts) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "http://example.com"+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	f.apply(req, opts)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) apply(req *http.Request, opts reqOpts) {
	if opts.host != "" {
		req.Host = opts.host
	}
	if opts.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+opts.bearer)
	}
	for k, v := range opts.header {
		req.Header.Set(k, v)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// register + login and return the access token.
func (f *fixture) loginUser(t *testing.T, email, password, tenantID string) (string, map[string]any) {
	t.Helper()
	rec := f.doJSON(t, http.MethodPost, "/auth/register", map[string]any{
		"email":     email,
		"password":  password,
		"full_name": "Test User",
		"tenant_id": tenantID,
	}, reqOpts{})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	rec = f.doForm(t, "/auth/login", form, reqOpts{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	return body["access_token"].(string), body
}
