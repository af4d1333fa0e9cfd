package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ProfileMirror mirrors the resolved plan onto the user's entitlement-facing
// profile field. Best-effort: failures are logged as warnings and never fail
// the reconciliation, since the Subscription record is the source of truth.
type ProfileMirror func(ctx context.Context, userID uuid.UUID, plan Plan) error

// Option configures optional engine dependencies.
type Option func(*Engine)

// WithLogger sets the structured logger. A discard logger is used otherwise.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithDeduper installs a webhook event dedupe guard for at-least-once
// delivery. Without one, idempotency rests on the overwrite semantics alone.
func WithDeduper(d Deduper) Option {
	return func(e *Engine) { e.dedupe = d }
}

// WithProfileMirror installs the best-effort plan mirror.
func WithProfileMirror(m ProfileMirror) Option {
	return func(e *Engine) { e.mirror = m }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
