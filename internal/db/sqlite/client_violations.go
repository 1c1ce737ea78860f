package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spamsentry/spamsentry/internal/db"
)

func (s *sqliteClient) GetViolation(ctx context.Context, userID int64, now time.Time) (*db.ViolationRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var record db.ViolationRecord
	err := s.db.GetContext(ctx, &record, `
		SELECT user_id, username, violation_count, last_violation_at, created_at, reset_at
		FROM violations
		WHERE user_id = ? AND reset_at > ?
	`, userID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// IncrementViolation performs the read-increment-write in a single transaction,
// so two concurrent events from the same user cannot both observe the same
// count. An expired row is purged first and the increment starts over from 1.
func (s *sqliteClient) IncrementViolation(ctx context.Context, userID int64, username string, now time.Time, retention time.Duration) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	rollback := true
	defer func() {
		if rollback {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.WithError(err).Error("failed to rollback violation increment")
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM violations WHERE user_id = ? AND reset_at <= ?`, userID, now); err != nil {
		return 0, fmt.Errorf("purge expired record: %w", err)
	}

	resetAt := now.Add(retention)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO violations (user_id, username, violation_count, last_violation_at, created_at, reset_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			violation_count = violation_count + 1,
			username = excluded.username,
			last_violation_at = excluded.last_violation_at,
			reset_at = excluded.reset_at
	`, userID, username, now, now, resetAt); err != nil {
		return 0, fmt.Errorf("upsert violation: %w", err)
	}

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT violation_count FROM violations WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("read violation count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit violation increment: %w", err)
	}
	rollback = false
	return count, nil
}

func (s *sqliteClient) ResetViolations(ctx context.Context, userID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM violations WHERE user_id = ?`, userID)
	return err
}

func (s *sqliteClient) CountActiveViolations(ctx context.Context, now time.Time) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM violations WHERE reset_at > ?`, now)
	return count, err
}
