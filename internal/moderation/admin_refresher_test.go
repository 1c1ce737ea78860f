package moderation

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestAdminRefresherRefreshesOnStart(t *testing.T) {
	t.Parallel()

	w, err := LoadWhitelist(filepath.Join(t.TempDir(), "whitelist.yml"))
	if err != nil {
		t.Fatalf("load whitelist: %v", err)
	}
	adapter := newStubAdapter()
	adapter.admins = []int64{7}

	refresher := NewAdminRefresher(w, adapter, -100, time.Hour)
	if err := refresher.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = refresher.Stop(context.Background()) })

	if !w.IsAdmin(7) {
		t.Fatal("initial refresh did not populate the roster")
	}
	if err := refresher.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestAdminRefresherDisabledWithoutTargetChat(t *testing.T) {
	t.Parallel()

	w, err := LoadWhitelist(filepath.Join(t.TempDir(), "whitelist.yml"))
	if err != nil {
		t.Fatalf("load whitelist: %v", err)
	}
	adapter := newStubAdapter()
	adapter.admins = []int64{7}

	refresher := NewAdminRefresher(w, adapter, 0, time.Hour)
	if err := refresher.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if w.IsAdmin(7) {
		t.Fatal("refresher should be inert without a target chat")
	}
	if err := refresher.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
