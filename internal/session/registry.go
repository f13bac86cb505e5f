// Package session tracks active sessions across a fast cache tier and a
// durable store. The durable store is the system of record; the cache is an
// optimization and is corrected from the store on any disagreement.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"reqsphere.io/internal/apperr"
	"reqsphere.io/internal/auth"
	"reqsphere.io/internal/obs"
)

// Store is the durable session store.
type Store interface {
	Create(ctx context.Context, s *auth.Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error)
	ListActiveForUser(ctx context.Context, userID string) ([]*auth.Session, error)
	Touch(ctx context.Context, tokenHash string, at time.Time) error
	Terminate(ctx context.Context, tokenHash string, at time.Time) error
	TerminateAllForUser(ctx context.Context, userID string, at time.Time) error
	TerminateExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cache is the fast session-validity tier. A present key means the session
// was recently confirmed valid.
type Cache interface {
	Has(ctx context.Context, tokenHash string) (bool, error)
	Put(ctx context.Context, tokenHash string, ttl time.Duration) error
	Evict(ctx context.Context, tokenHash string) error
}

// Registry implements cache-aside session validation with write-through
// invalidation (durable store first, cache second).
type Registry struct {
	store    Store
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures Registry behavior.
type Option func(*Registry)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry constructs a Registry. cacheTTL bounds the window during which
// a just-invalidated session may still validate from cache.
func NewRegistry(store Store, cache Cache, cacheTTL time.Duration, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// readBackoff bounds retries of idempotent reads against transient failures.
func readBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewExponential(50*time.Millisecond))
}

// IsValid reports whether the session identified by tokenHash is active. A
// cache hit is trusted; on a miss the durable store decides and, when the
// session is live, repopulates the cache.
func (r *Registry) IsValid(ctx context.Context, tokenHash string) (bool, error) {
	hit, err := r.cache.Has(ctx, tokenHash)
	if err != nil {
		// Cache trouble is not fatal; fall through to the store.
		r.logger.WarnContext(ctx, "session cache read failed", slog.String("error", err.Error()))
	} else if hit {
		obs.ObserveSessionCache("hit")
		return true, nil
	}

	var sess *auth.Session
	err = retry.Do(ctx, readBackoff(), func(ctx context.Context) error {
		var ferr error
		sess, ferr = r.store.FindByTokenHash(ctx, tokenHash)
		if ferr != nil && !isNotFound(ferr) {
			return retry.RetryableError(ferr)
		}
		return ferr
	})
	if err != nil {
		if isNotFound(err) {
			obs.ObserveSessionCache("invalid")
			return false, nil
		}
		return false, fmt.Errorf("find session: %w", err)
	}

	now := r.now().UTC()
	if !sess.IsActive || now.After(sess.ExpiresAt) {
		obs.ObserveSessionCache("invalid")
		return false, nil
	}

	obs.ObserveSessionCache("miss")
	if err := r.cache.Put(ctx, tokenHash, r.cacheTTL); err != nil {
		r.logger.WarnContext(ctx, "session cache write failed", slog.String("error", err.Error()))
	}
	if err := r.store.Touch(ctx, tokenHash, now); err != nil {
		r.logger.WarnContext(ctx, "session touch failed", slog.String("error", err.Error()))
	}
	return true, nil
}

// Create persists the session and primes the cache.
func (r *Registry) Create(ctx context.Context, s *auth.Session) error {
	if err := r.store.Create(ctx, s); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if err := r.cache.Put(ctx, s.TokenHash, r.cacheTTL); err != nil {
		r.logger.WarnContext(ctx, "session cache prime failed", slog.String("error", err.Error()))
	}
	return nil
}

// Invalidate terminates the session in the durable store, then evicts it
// from the cache. Terminating an unknown or already-terminated session is
// not an error.
func (r *Registry) Invalidate(ctx context.Context, tokenHash string) error {
	if err := r.store.Terminate(ctx, tokenHash, r.now().UTC()); err != nil && !isNotFound(err) {
		return fmt.Errorf("terminate session: %w", err)
	}
	if err := r.cache.Evict(ctx, tokenHash); err != nil {
		r.logger.WarnContext(ctx, "session cache evict failed", slog.String("error", err.Error()))
	}
	return nil
}

// InvalidateAll terminates every session for the user, evicting each known
// active session from the cache so the change takes effect immediately
// rather than after the cache TTL.
func (r *Registry) InvalidateAll(ctx context.Context, userID string) error {
	active, err := r.store.ListActiveForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if err := r.store.TerminateAllForUser(ctx, userID, r.now().UTC()); err != nil {
		return fmt.Errorf("terminate sessions: %w", err)
	}
	for _, s := range active {
		if err := r.cache.Evict(ctx, s.TokenHash); err != nil {
			r.logger.WarnContext(ctx, "session cache evict failed",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// CleanupExpired marks stale durable rows terminated. Safe to call
// repeatedly; run it on a timer.
func (r *Registry) CleanupExpired(ctx context.Context) (int64, error) {
	var n int64
	err := retry.Do(ctx, readBackoff(), func(ctx context.Context) error {
		var serr error
		n, serr = r.store.TerminateExpired(ctx, r.now().UTC())
		if serr != nil {
			return retry.RetryableError(serr)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return n, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, auth.ErrNotFound) || errors.Is(err, apperr.ErrNotFound)
}
