package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memUsageStore struct {
	mu     sync.Mutex
	counts map[string]int
	getErr error
	setErr error
	sets   int
}

func newMemUsageStore() *memUsageStore {
	return &memUsageStore{counts: map[string]int{}}
}

func (s *memUsageStore) GetDailyUsage(_ context.Context, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return 0, s.getErr
	}
	return s.counts[date], nil
}

func (s *memUsageStore) SetDailyUsage(_ context.Context, date string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.counts[date] = count
	return nil
}

func (s *memUsageStore) persisted(date string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[date]
}

func TestRateLimiterExhaustsDailyBudget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newMemUsageStore()
	limiter := NewRateLimiter(store, 3, clock)

	for i := 0; i < 3; i++ {
		if !limiter.TryAcquire(ctx) {
			t.Fatalf("acquire %d: unexpectedly denied", i+1)
		}
		if err := limiter.Commit(ctx); err != nil {
			t.Fatalf("commit %d: %v", i+1, err)
		}
	}

	if limiter.TryAcquire(ctx) {
		t.Fatal("acquire beyond limit: unexpectedly allowed")
	}
	if got := limiter.Remaining(ctx); got != 0 {
		t.Fatalf("remaining: got %d want 0", got)
	}
	if got := store.persisted("2025-06-01"); got != 3 {
		t.Fatalf("persisted count: got %d want 3", got)
	}
}

func TestRateLimiterResumesPersistedCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newMemUsageStore()
	store.counts["2025-06-01"] = 5

	limiter := NewRateLimiter(store, 5, clock)
	if limiter.TryAcquire(ctx) {
		t.Fatal("fresh limiter should resume the persisted count and deny")
	}
}

func TestRateLimiterDayRollover(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC))
	store := newMemUsageStore()
	limiter := NewRateLimiter(store, 1, clock)

	if !limiter.TryAcquire(ctx) {
		t.Fatal("first acquire denied")
	}
	if err := limiter.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if limiter.TryAcquire(ctx) {
		t.Fatal("second acquire should be denied")
	}

	clock.Advance(time.Hour)

	if !limiter.TryAcquire(ctx) {
		t.Fatal("acquire after midnight should be allowed again")
	}
	used, limit := limiter.Usage(ctx)
	if used != 0 || limit != 1 {
		t.Fatalf("usage after rollover: got %d/%d want 0/1", used, limit)
	}
}

func TestRateLimiterAnnouncesExhaustionOncePerDay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewRateLimiter(newMemUsageStore(), 0, clock)

	limiter.TryAcquire(ctx)
	if !limiter.announced {
		t.Fatal("exhaustion not announced")
	}
	limiter.TryAcquire(ctx)
	if !limiter.announced {
		t.Fatal("announcement flag lost")
	}

	clock.Advance(24 * time.Hour)
	limiter.Remaining(ctx)
	if limiter.announced {
		t.Fatal("announcement flag should reset on rollover")
	}
}

func TestRateLimiterCommitSurvivesPersistFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newMemUsageStore()
	store.setErr = errors.New("disk full")
	limiter := NewRateLimiter(store, 10, clock)

	if err := limiter.Commit(ctx); err == nil {
		t.Fatal("expected persist error")
	}
	used, _ := limiter.Usage(ctx)
	if used != 1 {
		t.Fatalf("in-memory count: got %d want 1", used)
	}
}

func TestRateLimiterStartsFromZeroOnLoadFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newMemUsageStore()
	store.getErr = errors.New("corrupt row")
	limiter := NewRateLimiter(store, 1, clock)

	if !limiter.TryAcquire(ctx) {
		t.Fatal("load failure should not block the day")
	}
}
