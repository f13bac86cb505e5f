package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reqsphere.io/internal/audit"
	"reqsphere.io/internal/auth"
	"reqsphere.io/internal/config"
	"reqsphere.io/internal/httpapi"
	"reqsphere.io/internal/obs"
	"reqsphere.io/internal/session"
	"reqsphere.io/internal/store/pg"
	"reqsphere.io/internal/tenant"
)

// Overridden at build time via -ldflags.
var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := obs.NewLogger("reqsphere-auth", cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pg.Open(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Error("open postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := session.NewRedisClient(ctx, cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("open redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	users := pg.NewUsers(pool)
	tenants := pg.NewTenants(pool)
	invitations := pg.NewInvitations(pool)
	sessionStore := pg.NewSessions(pool)

	registry := session.NewRegistry(sessionStore, session.NewRedisCache(redisClient),
		cfg.SessionCacheTTL, logger)

	tokens, err := auth.NewTokenService(cfg.JWTSecret, auth.TokenTTLs{
		Access:        cfg.AccessTTL,
		Refresh:       cfg.RefreshTTL,
		PasswordReset: cfg.ResetTTL,
		Invitation:    cfg.InvitationTTL,
	}, auth.WithRevocationSet(session.NewRedisRevocationSet(redisClient)))
	if err != nil {
		logger.Error("token service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	svc := auth.NewService(users, tenants, invitations, registry, tokens,
		auth.NewHasher(cfg.BcryptCost), logger,
		auth.WithSessionTTLs(cfg.SessionTTL, cfg.RememberSessionTTL))

	tenantCache, err := tenant.NewCache(1024, cfg.SessionCacheTTL)
	if err != nil {
		logger.Error("tenant cache", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer tenantCache.Close()
	resolver := tenant.NewResolver(tenants, tokens, tenantCache, cfg.BaseHost, logger)

	api := httpapi.New(svc, tokens, registry, resolver, audit.New(logger), logger,
		httpapi.ReadyProbe{DB: pool}, version)

	handler := httpapi.RateLimit(api.Handler(), 50, 25)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Periodically terminate expired durable session rows.
	go func() {
		ticker := time.NewTicker(cfg.SessionSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := registry.CleanupExpired(ctx)
				if err != nil {
					logger.Error("session sweep", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					logger.Info("session sweep", slog.Int64("terminated", n))
				}
			}
		}
	}()

	logger.Info("starting reqsphere-auth",
		slog.String("version", version),
		slog.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
