package moderation

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spamsentry/spamsentry/internal/chat"
)

// AdminRefresher keeps the whitelist's volatile admin set in sync with the
// live administrator roster. Admin status is never persisted; a user demoted
// between refreshes keeps the exemption until the next tick.
type AdminRefresher struct {
	whitelist *Whitelist
	adapter   chat.Adapter
	chatID    int64
	interval  time.Duration
	logger    *log.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAdminRefresher(whitelist *Whitelist, adapter chat.Adapter, chatID int64, interval time.Duration) *AdminRefresher {
	return &AdminRefresher{
		whitelist: whitelist,
		adapter:   adapter,
		chatID:    chatID,
		interval:  interval,
		logger:    log.WithField("object", "AdminRefresher"),
	}
}

// Start performs an initial refresh and then refreshes on the interval.
// Refresher is a no-op when no target chat is configured, since the roster
// of "the group" is undefined then.
func (r *AdminRefresher) Start(ctx context.Context) error {
	if r.chatID == 0 {
		r.logger.Info("no target chat configured, admin refresh disabled")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.refresh(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.refresh(runCtx)
			}
		}
	}()
	return nil
}

func (r *AdminRefresher) Stop(_ context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	return nil
}

func (r *AdminRefresher) refresh(ctx context.Context) {
	if err := r.whitelist.RefreshAdmins(ctx, r.adapter, r.chatID); err != nil {
		r.logger.WithError(err).Warn("cant refresh admin roster")
	}
}
