package moderation

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spamsentry/spamsentry/internal/db"
)

type violationStore interface {
	GetViolation(ctx context.Context, userID int64, now time.Time) (*db.ViolationRecord, error)
	IncrementViolation(ctx context.Context, userID int64, username string, now time.Time, retention time.Duration) (int, error)
	ResetViolations(ctx context.Context, userID int64) error
	CountActiveViolations(ctx context.Context, now time.Time) (int, error)
}

// ViolationLedger owns the violation-record lifecycle. Expiry is a sliding
// window: every new violation extends the record by the retention period.
type ViolationLedger struct {
	store     violationStore
	retention time.Duration
	clock     Clock
	logger    *log.Entry
}

func NewViolationLedger(store violationStore, retention time.Duration, clock Clock) *ViolationLedger {
	if clock == nil {
		clock = SystemClock
	}
	return &ViolationLedger{
		store:     store,
		retention: retention,
		clock:     clock,
		logger:    log.WithField("object", "ViolationLedger"),
	}
}

// RecordViolation bumps the user's count and returns it with the resulting
// tier. An expired record counts as absent, so the increment restarts at 1.
func (l *ViolationLedger) RecordViolation(ctx context.Context, userID int64, username string) (int, Tier, error) {
	count, err := l.store.IncrementViolation(ctx, userID, username, l.clock.Now(), l.retention)
	if err != nil {
		return 0, "", err
	}
	l.logger.WithField("user_id", userID).WithField("count", count).Info("violation recorded")
	return count, TierForCount(count), nil
}

// Reset clears the user's record. Resetting an absent record is a no-op.
func (l *ViolationLedger) Reset(ctx context.Context, userID int64) error {
	if err := l.store.ResetViolations(ctx, userID); err != nil {
		return err
	}
	l.logger.WithField("user_id", userID).Info("violations reset")
	return nil
}

// PeekCount reads the current count without mutating anything; dry-run mode
// uses it to report the would-be tier.
func (l *ViolationLedger) PeekCount(ctx context.Context, userID int64) (int, error) {
	record, err := l.store.GetViolation(ctx, userID, l.clock.Now())
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, nil
	}
	return record.ViolationCount, nil
}

func (l *ViolationLedger) ActiveCount(ctx context.Context) (int, error) {
	return l.store.CountActiveViolations(ctx, l.clock.Now())
}
