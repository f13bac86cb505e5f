// Package audit writes structured audit events for security-relevant actions:
// registrations, logins, password changes, invitations, session termination.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext extracts the audit request id, if present.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// Log emits audit events through a structured logger.
type Log struct {
	logger *slog.Logger
}

// New creates an audit log writing through logger.
func New(logger *slog.Logger) *Log {
	return &Log{logger: logger.With(slog.String("type", "audit"))}
}

// Event writes one audit entry enriched with request context. actorID may be
// empty for unauthenticated events such as failed logins.
func (l *Log) Event(ctx context.Context, event, actorID string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}

	attrs := make([]slog.Attr, 0, len(fields)+2)
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if actorID != "" {
		attrs = append(attrs, slog.String("user_id", actorID))
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	l.logger.LogAttrs(ctx, slog.LevelInfo, event, attrs...)
	return nil
}
