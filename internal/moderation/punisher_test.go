package moderation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spamsentry/spamsentry/internal/chat"
	"github.com/spamsentry/spamsentry/internal/db"
)

type stubAdapter struct {
	mu       sync.Mutex
	deleted  []chat.MessageRef
	messages map[int64][]string
	kicked   []int64
	banned   []int64
	admins   []int64
	fileData []byte

	deleteErr error
	sendErr   error
	kickErr   error
	banErr    error
	listErr   error
	fetchErr  error
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{messages: map[int64][]string{}}
}

func (a *stubAdapter) DeleteMessage(_ context.Context, ref chat.MessageRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deleteErr != nil {
		return a.deleteErr
	}
	a.deleted = append(a.deleted, ref)
	return nil
}

func (a *stubAdapter) SendDirectMessage(_ context.Context, userID int64, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return a.sendErr
	}
	a.messages[userID] = append(a.messages[userID], text)
	return nil
}

func (a *stubAdapter) KickMember(_ context.Context, _, userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.kickErr != nil {
		return a.kickErr
	}
	a.kicked = append(a.kicked, userID)
	return nil
}

func (a *stubAdapter) BanMember(_ context.Context, _, userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.banErr != nil {
		return a.banErr
	}
	a.banned = append(a.banned, userID)
	return nil
}

func (a *stubAdapter) ListAdministrators(_ context.Context, _ int64) ([]int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.admins, nil
}

func (a *stubAdapter) FetchFile(_ context.Context, _ string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.fileData, nil
}

type memAuditStore struct {
	mu     sync.Mutex
	events []*db.SpamEvent
	err    error
}

func (s *memAuditStore) AddSpamEvent(_ context.Context, event *db.SpamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func newTestEngine(adapter *stubAdapter, audit *memAuditStore, clock Clock) *PunishmentEngine {
	ledger := NewViolationLedger(newMemViolationStore(), 30*24*time.Hour, clock)
	return NewPunishmentEngine(adapter, ledger, audit, clock)
}

func testOffense(score float64) Offense {
	return Offense{
		Message:     chat.MessageRef{ChatID: -100, MessageID: 555},
		UserID:      42,
		Username:    "spammer",
		MessageText: "buy signals, DM me",
		Score:       score,
	}
}

func TestEngineEscalatesThroughTiers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	adapter := newStubAdapter()
	audit := &memAuditStore{}
	engine := newTestEngine(adapter, audit, clock)

	want := []Tier{TierWarn, TierKick, TierBan}
	for i, wantTier := range want {
		tier, err := engine.Enforce(ctx, testOffense(9.1))
		if err != nil {
			t.Fatalf("enforce %d: %v", i+1, err)
		}
		if tier != wantTier {
			t.Fatalf("enforce %d: got tier %q want %q", i+1, tier, wantTier)
		}
	}

	if len(adapter.deleted) != 3 {
		t.Fatalf("deleted messages: got %d want 3", len(adapter.deleted))
	}
	if len(adapter.kicked) != 1 || adapter.kicked[0] != 42 {
		t.Fatalf("kicked: got %v", adapter.kicked)
	}
	if len(adapter.banned) != 1 || adapter.banned[0] != 42 {
		t.Fatalf("banned: got %v", adapter.banned)
	}
	if len(audit.events) != 3 {
		t.Fatalf("audit events: got %d want 3", len(audit.events))
	}
	for i, action := range []string{"warn", "kick", "ban"} {
		if audit.events[i].Action != action {
			t.Fatalf("audit action %d: got %q want %q", i, audit.events[i].Action, action)
		}
	}

	notices := adapter.messages[42]
	if len(notices) != 3 {
		t.Fatalf("notices: got %d want 3", len(notices))
	}
	if !strings.Contains(notices[1], "may rejoin") {
		t.Fatalf("kick notice should mention rejoining: %q", notices[1])
	}
	if strings.Contains(strings.ToLower(notices[2]), "next time") {
		t.Fatalf("ban notice must not promise a next time: %q", notices[2])
	}
}

func TestEngineWritesAuditDespitePlatformFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	adapter := newStubAdapter()
	adapter.deleteErr = errors.New("message already gone")
	adapter.sendErr = errors.New("user blocked the bot")
	adapter.kickErr = errors.New("not enough rights")
	audit := &memAuditStore{}
	engine := newTestEngine(adapter, audit, clock)

	for i := 0; i < 2; i++ {
		if _, err := engine.Enforce(ctx, testOffense(8.5)); err != nil {
			t.Fatalf("enforce %d: %v", i+1, err)
		}
	}

	if len(audit.events) != 2 {
		t.Fatalf("audit events: got %d want 2", len(audit.events))
	}
	if audit.events[1].Action != "kick" {
		t.Fatalf("second audit action: got %q want kick", audit.events[1].Action)
	}
}

func TestEngineSkipsPunishmentWhenLedgerFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	adapter := newStubAdapter()
	audit := &memAuditStore{}

	store := newMemViolationStore()
	store.err = errors.New("database is locked")
	ledger := NewViolationLedger(store, time.Hour, clock)
	engine := NewPunishmentEngine(adapter, ledger, audit, clock)

	if _, err := engine.Enforce(ctx, testOffense(9.9)); err == nil {
		t.Fatal("expected ledger error")
	}
	if len(adapter.deleted) != 0 || len(audit.events) != 0 {
		t.Fatal("no action should be taken when the ledger write fails")
	}
}

func TestEngineTruncatesAuditedText(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	adapter := newStubAdapter()
	audit := &memAuditStore{}
	engine := newTestEngine(adapter, audit, clock)

	offense := testOffense(9.0)
	offense.MessageText = strings.Repeat("я", 1500)
	if _, err := engine.Enforce(ctx, offense); err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if got := len([]rune(audit.events[0].MessageText)); got != 1000 {
		t.Fatalf("audited text length: got %d want 1000", got)
	}
}
