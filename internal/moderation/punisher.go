package moderation

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/spamsentry/spamsentry/internal/chat"
	"github.com/spamsentry/spamsentry/internal/db"
	"github.com/spamsentry/spamsentry/internal/observability"
)

const (
	warnNotice = "Your message was flagged as spam and removed. " +
		"This is a warning. Repeated violations will get you removed from the group."
	kickNotice = "Your message was flagged as spam and removed. " +
		"This is your second violation, so you have been removed from the group. " +
		"You may rejoin, but further violations will result in a permanent ban."
	banNotice = "Your message was flagged as spam and removed. " +
		"After repeated violations you have been permanently banned from the group."
)

type auditStore interface {
	AddSpamEvent(ctx context.Context, event *db.SpamEvent) error
}

// Offense describes one confirmed spam message for the engine to act on.
type Offense struct {
	Message     chat.MessageRef
	UserID      int64
	Username    string
	MessageText string
	Score       float64
}

// PunishmentEngine applies the escalation ladder to a confirmed offense.
// Platform failures (delete, notify, kick, ban) are logged and swallowed so
// the ledger and the audit trail stay consistent regardless of API hiccups.
type PunishmentEngine struct {
	adapter chat.Adapter
	ledger  *ViolationLedger
	audit   auditStore
	clock   Clock
	logger  *log.Entry
}

func NewPunishmentEngine(adapter chat.Adapter, ledger *ViolationLedger, audit auditStore, clock Clock) *PunishmentEngine {
	if clock == nil {
		clock = SystemClock
	}
	return &PunishmentEngine{
		adapter: adapter,
		ledger:  ledger,
		audit:   audit,
		clock:   clock,
		logger:  log.WithField("object", "PunishmentEngine"),
	}
}

// Enforce records the violation, removes the message and applies the tier
// action. The audit event is written whenever the ledger update succeeded,
// even if every platform call failed.
func (e *PunishmentEngine) Enforce(ctx context.Context, offense Offense) (Tier, error) {
	entry := e.logger.WithField("user_id", offense.UserID).WithField("score", offense.Score)

	count, tier, err := e.ledger.RecordViolation(ctx, offense.UserID, offense.Username)
	if err != nil {
		return "", errors.Wrap(err, "cant record violation")
	}
	entry = entry.WithField("count", count).WithField("tier", tier)

	if err := e.adapter.DeleteMessage(ctx, offense.Message); err != nil {
		entry.WithError(err).Warn("cant delete message")
	}

	switch tier {
	case TierWarn:
		e.notify(ctx, entry, offense.UserID, warnNotice)
	case TierKick:
		if err := e.adapter.KickMember(ctx, offense.Message.ChatID, offense.UserID); err != nil {
			entry.WithError(err).Warn("cant kick member")
		}
		e.notify(ctx, entry, offense.UserID, kickNotice)
	case TierBan:
		if err := e.adapter.BanMember(ctx, offense.Message.ChatID, offense.UserID); err != nil {
			entry.WithError(err).Warn("cant ban member")
		}
		e.notify(ctx, entry, offense.UserID, banNotice)
	}

	observability.RecordSpamAction(string(tier))
	entry.Info("punishment applied")

	event := &db.SpamEvent{
		UserID:      offense.UserID,
		Username:    offense.Username,
		MessageText: truncate(offense.MessageText, 1000),
		Score:       offense.Score,
		Action:      string(tier),
		CreatedAt:   e.clock.Now(),
	}
	if err := e.audit.AddSpamEvent(ctx, event); err != nil {
		return tier, errors.Wrap(err, "cant write audit event")
	}
	return tier, nil
}

func (e *PunishmentEngine) notify(ctx context.Context, entry *log.Entry, userID int64, text string) {
	// DMs fail for users who never started the bot; that is expected.
	if err := e.adapter.SendDirectMessage(ctx, userID, text); err != nil {
		entry.WithError(err).Debug("cant notify user")
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
