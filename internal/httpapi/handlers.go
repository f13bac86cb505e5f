// Package httpapi is the HTTP surface of the auth core.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reqsphere.io/internal/apperr"
	"reqsphere.io/internal/audit"
	"reqsphere.io/internal/auth"
	"reqsphere.io/internal/obs"
	"reqsphere.io/internal/session"
	"reqsphere.io/internal/tenant"
)

// Pinger is the readiness slice of the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the backing services before reporting ready.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// API wires the route tree.
type API struct {
	router     chi.Router
	svc        *auth.Service
	tokens     *auth.TokenService
	sessions   *session.Registry
	resolver   *tenant.Resolver
	audit      *audit.Log
	logger     *slog.Logger
	readyProbe ReadyProbe
	version    string
}

// New builds the API and mounts all routes.
func New(
	svc *auth.Service,
	tokens *auth.TokenService,
	sessions *session.Registry,
	resolver *tenant.Resolver,
	auditLog *audit.Log,
	logger *slog.Logger,
	rp ReadyProbe,
	version string,
) *API {
	a := &API{
		router:     chi.NewRouter(),
		svc:        svc,
		tokens:     tokens,
		sessions:   sessions,
		resolver:   resolver,
		audit:      auditLog,
		logger:     logger,
		readyProbe: rp,
		version:    version,
	}

	r := a.router
	r.Use(RequestID)
	r.Use(Logging(logger))
	r.Use(SecurityHeaders)
	r.Use(CORS)

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/auth", func(r chi.Router) {
		// Public endpoints; tenant resolution is attempted but optional.
		r.Group(func(r chi.Router) {
			r.Use(a.tenantContext(false))
			r.Post("/register", a.Register)
			r.Post("/login", a.Login)
			r.Post("/refresh", a.RefreshToken)
			r.Post("/password-reset", a.RequestPasswordReset)
			r.Post("/password-reset/confirm", a.ConfirmPasswordReset)
			r.Get("/invitation/{token}", a.VerifyInvitation)
			r.Get("/providers", a.Providers)
		})

		// Logout endpoints check the token but not session liveness, so
		// logging out an already-terminated session still returns success.
		r.Group(func(r chi.Router) {
			r.Use(a.tenantContext(true))
			r.Use(a.requireToken)
			r.Post("/logout", a.Logout)
			r.Post("/logout-all", a.LogoutAll)
		})

		// Authenticated endpoints.
		r.Group(func(r chi.Router) {
			r.Use(a.tenantContext(true))
			r.Use(a.requireAuth)
			r.Get("/me", a.Me)
			r.Put("/me", a.UpdateMe)
			r.Post("/change-password", a.ChangePassword)
			r.Post("/invite", a.Invite)
		})
	})

	return a
}

// Handler returns the instrumented root handler.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "reqsphere-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error through the apperr taxonomy. Unclassified errors
// surface as a generic 500 so internals never leak.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	code := apperr.Code(err)
	message := "an internal error occurred"
	var appErr *apperr.Error
	if errors.As(err, &appErr) && status < http.StatusInternalServerError {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
