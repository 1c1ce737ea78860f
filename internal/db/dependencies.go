package db

import (
	"context"
	"time"
)

// Client is the single owner of on-disk state. Callers hold only derived
// in-memory caches that resynchronize lazily.
type Client interface {
	Close() error

	// GetViolation returns nil if the user has no record or the record has
	// expired (logical expiry wins over a stale count).
	GetViolation(ctx context.Context, userID int64, now time.Time) (*ViolationRecord, error)
	// IncrementViolation atomically creates or bumps the user's record,
	// extending its expiry to now+retention, and returns the resulting count.
	IncrementViolation(ctx context.Context, userID int64, username string, now time.Time, retention time.Duration) (int, error)
	// ResetViolations deletes the record unconditionally. Idempotent.
	ResetViolations(ctx context.Context, userID int64) error
	CountActiveViolations(ctx context.Context, now time.Time) (int, error)

	AddSpamEvent(ctx context.Context, event *SpamEvent) error
	GetStats(ctx context.Context, now time.Time) (*Stats, error)

	GetDailyUsage(ctx context.Context, date string) (int, error)
	SetDailyUsage(ctx context.Context, date string, count int) error
}
