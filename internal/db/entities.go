package db

import "time"

type (
	// ViolationRecord tracks a user's consecutive violations. A record whose
	// ResetAt is in the past is logically absent and gets purged lazily.
	ViolationRecord struct {
		UserID          int64     `db:"user_id"`
		Username        string    `db:"username"`
		ViolationCount  int       `db:"violation_count"`
		LastViolationAt time.Time `db:"last_violation_at"`
		CreatedAt       time.Time `db:"created_at"`
		ResetAt         time.Time `db:"reset_at"`
	}

	// SpamEvent is an append-only audit entry, never updated or deleted.
	SpamEvent struct {
		ID          int64     `db:"id"`
		UserID      int64     `db:"user_id"`
		Username    string    `db:"username"`
		MessageText string    `db:"message_text"`
		Score       float64   `db:"score"`
		Action      string    `db:"action"`
		CreatedAt   time.Time `db:"created_at"`
	}

	// DailyUsage holds one row per calendar day; only today's row is mutated.
	DailyUsage struct {
		Date  string `db:"date"`
		Count int    `db:"count"`
	}

	// Stats aggregates the numbers the admin /stats command reports.
	Stats struct {
		APIToday         int
		MessagesThisWeek int
		SpamThisWeek     int
		ActionCounts     map[string]int
		ActiveViolations int
	}
)
