package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iamwavecut/tool"

	"github.com/spamsentry/spamsentry/internal/db"
)

func (s *sqliteClient) GetDailyUsage(ctx context.Context, date string) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var usage db.DailyUsage
	err := s.db.GetContext(ctx, &usage, `SELECT date, count FROM api_usage WHERE date = ?`, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return usage.Count, nil
}

func (s *sqliteClient) SetDailyUsage(ctx context.Context, date string, count int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return tool.Err(s.db.ExecContext(ctx, `
		INSERT INTO api_usage (date, count) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET count = excluded.count
	`, date, count))
}
