package sqlite

import (
	"context"
	"time"

	"github.com/iamwavecut/tool"

	"github.com/spamsentry/spamsentry/internal/db"
)

func (s *sqliteClient) AddSpamEvent(ctx context.Context, event *db.SpamEvent) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return tool.Err(s.db.ExecContext(ctx, `
		INSERT INTO spam_events (user_id, username, message_text, score, action, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.UserID,
		event.Username,
		event.MessageText,
		event.Score,
		event.Action,
		event.CreatedAt,
	))
}

func (s *sqliteClient) GetStats(ctx context.Context, now time.Time) (*db.Stats, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := &db.Stats{ActionCounts: map[string]int{}}
	weekAgo := now.AddDate(0, 0, -7)

	if err := s.db.GetContext(ctx, &stats.APIToday, `
		SELECT COALESCE((SELECT count FROM api_usage WHERE date = ?), 0)
	`, now.Format(time.DateOnly)); err != nil {
		return nil, err
	}

	if err := s.db.GetContext(ctx, &stats.MessagesThisWeek, `
		SELECT COUNT(*) FROM spam_events WHERE created_at >= ?
	`, weekAgo); err != nil {
		return nil, err
	}
	stats.SpamThisWeek = stats.MessagesThisWeek

	rows, err := s.db.QueryxContext(ctx, `
		SELECT action, COUNT(*) FROM spam_events WHERE created_at >= ? GROUP BY action
	`, weekAgo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		stats.ActionCounts[action] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.GetContext(ctx, &stats.ActiveViolations, `
		SELECT COUNT(*) FROM violations WHERE reset_at > ?
	`, now); err != nil {
		return nil, err
	}

	return stats, nil
}
