package moderation

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spamsentry/spamsentry/internal/observability"
)

type usageStore interface {
	GetDailyUsage(ctx context.Context, date string) (int, error)
	SetDailyUsage(ctx context.Context, date string, count int) error
}

// RateLimiter gates classifier calls against the daily budget. It caches
// today's count in memory and resynchronizes from the store lazily on day
// rollover, so it self-heals across restarts and midnight without a timer.
//
// TryAcquire and Commit are not a single atomic reservation: two concurrent
// checks can both pass when one slot remains. The slight overshoot is an
// accepted trade-off; the quota models call volume, not a hard cap.
type RateLimiter struct {
	store  usageStore
	limit  int
	clock  Clock
	logger *log.Entry

	mu        sync.Mutex
	day       string
	count     int
	announced bool
}

func NewRateLimiter(store usageStore, limit int, clock Clock) *RateLimiter {
	if clock == nil {
		clock = SystemClock
	}
	return &RateLimiter{
		store:  store,
		limit:  limit,
		clock:  clock,
		logger: log.WithField("object", "RateLimiter"),
	}
}

// TryAcquire reports whether a classification call may proceed today. It does
// not reserve a slot; the caller invokes Commit once per call actually made.
// The exhaustion transition is logged exactly once per day.
func (r *RateLimiter) TryAcquire(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refreshLocked(ctx)
	if r.count < r.limit {
		return true
	}
	if !r.announced {
		r.logger.WithField("count", r.count).WithField("limit", r.limit).
			Warn("daily API limit reached, spam detection disabled until rollover")
		r.announced = true
	}
	return false
}

// Commit increments today's counter and persists it. A persistence failure is
// returned for logging, but the in-memory counter stays authoritative for the
// rest of the process lifetime.
func (r *RateLimiter) Commit(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refreshLocked(ctx)
	r.count++
	observability.SetQuotaRemaining(r.remainingLocked())
	return r.store.SetDailyUsage(ctx, r.day, r.count)
}

func (r *RateLimiter) Remaining(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refreshLocked(ctx)
	return r.remainingLocked()
}

// Usage returns today's count and the configured limit.
func (r *RateLimiter) Usage(ctx context.Context) (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refreshLocked(ctx)
	return r.count, r.limit
}

func (r *RateLimiter) remainingLocked() int {
	return max(0, r.limit-r.count)
}

// refreshLocked reloads the counter from the store whenever the wall-clock
// calendar day differs from the cached one.
func (r *RateLimiter) refreshLocked(ctx context.Context) {
	today := r.clock.Now().Format(time.DateOnly)
	if today == r.day {
		return
	}
	count, err := r.store.GetDailyUsage(ctx, today)
	if err != nil {
		r.logger.WithError(err).Error("cant load persisted usage, starting the day from zero")
		count = 0
	}
	r.day = today
	r.count = count
	r.announced = false
	observability.SetQuotaRemaining(r.remainingLocked())
	r.logger.WithField("date", today).WithField("count", count).Debug("usage counter refreshed")
}
