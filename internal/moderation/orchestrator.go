package moderation

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/spamsentry/spamsentry/internal/bot"
	"github.com/spamsentry/spamsentry/internal/chat"
	"github.com/spamsentry/spamsentry/internal/detector"
	"github.com/spamsentry/spamsentry/internal/observability"
)

type classifier interface {
	Classify(ctx context.Context, text string) (detector.Verdict, error)
	ClassifyImage(ctx context.Context, data []byte, mimeType, caption string) (detector.Verdict, error)
}

// OrchestratorOptions carries the moderation knobs from configuration.
type OrchestratorOptions struct {
	SpamThreshold float64
	DryRun        bool
	// WhitelistEnabled gates the exemption check; the whitelist itself is
	// always managed so admins can edit it while enforcement is off.
	WhitelistEnabled bool
	// TargetChatID limits moderation to one group; zero means every group
	// the bot is in.
	TargetChatID int64
}

// Orchestrator is the moderation pipeline: gate, classify, punish. Internal
// failures never block message delivery; on any error the message passes.
type Orchestrator struct {
	detector  classifier
	limiter   *RateLimiter
	ledger    *ViolationLedger
	engine    *PunishmentEngine
	whitelist *Whitelist
	adapter   chat.Adapter
	opts      OrchestratorOptions
	logger    *log.Entry
}

func NewOrchestrator(
	detector classifier,
	limiter *RateLimiter,
	ledger *ViolationLedger,
	engine *PunishmentEngine,
	whitelist *Whitelist,
	adapter chat.Adapter,
	opts OrchestratorOptions,
) *Orchestrator {
	return &Orchestrator{
		detector:  detector,
		limiter:   limiter,
		ledger:    ledger,
		engine:    engine,
		whitelist: whitelist,
		adapter:   adapter,
		opts:      opts,
		logger:    log.WithField("object", "Orchestrator"),
	}
}

// Handle implements bot.Handler. It returns proceed=false only when the
// message was identified as spam and acted upon (or would have been, in dry
// run); everything else falls through to the next handler.
func (o *Orchestrator) Handle(ctx context.Context, u *api.Update, tgChat *api.Chat, user *api.User) (bool, error) {
	msg := u.Message
	if msg == nil || tgChat == nil || user == nil {
		return true, nil
	}
	if tgChat.Type != "group" && tgChat.Type != "supergroup" {
		return true, nil
	}
	if o.opts.TargetChatID != 0 && tgChat.ID != o.opts.TargetChatID {
		return true, nil
	}
	if user.IsBot || msg.IsCommand() {
		return true, nil
	}

	content := bot.ExtractContentFromMessage(msg)
	hasPhoto := len(msg.Photo) > 0
	if content == "" && !hasPhoto {
		return true, nil
	}

	entry := o.logger.WithFields(log.Fields{
		"correlation_id": uuid.NewRandom().String(),
		"chat_id":        tgChat.ID,
		"user_id":        user.ID,
	})

	if o.opts.WhitelistEnabled && o.whitelist.IsProtected(user.ID) {
		entry.Debug("user is whitelisted, skipping")
		return true, nil
	}

	if !o.limiter.TryAcquire(ctx) {
		entry.Debug("daily API limit reached, passing message through")
		return true, nil
	}

	verdict, err := o.classify(ctx, entry, msg, content)
	if err != nil {
		// A pre-send failure costs nothing; a failure after the request
		// went out still consumed the provider's quota.
		if !detector.IsNotSent(err) {
			o.commit(ctx, entry)
		}
		entry.WithError(err).Error("classification failed, passing message through")
		return true, nil
	}
	o.commit(ctx, entry)
	observability.RecordMessageChecked()

	entry = entry.WithField("score", verdict.Score).WithField("rationale", verdict.Rationale)
	if verdict.Score < o.opts.SpamThreshold {
		entry.Debug("message is clean")
		return true, nil
	}
	observability.Logger.Warn("spam message detected",
		zap.Int64("user_id", user.ID),
		zap.Float64("score", verdict.Score),
	)

	if o.opts.DryRun {
		count, err := o.ledger.PeekCount(ctx, user.ID)
		if err != nil {
			entry.WithError(err).Warn("cant peek violation count")
		}
		entry.WithField("would_be_action", TierForCount(count+1)).
			Info("dry run: spam detected, no action taken")
		return false, nil
	}

	offense := Offense{
		Message:     chat.MessageRef{ChatID: tgChat.ID, MessageID: msg.MessageID},
		UserID:      user.ID,
		Username:    bot.GetUN(user),
		MessageText: content,
		Score:       verdict.Score,
	}
	if _, err := o.engine.Enforce(ctx, offense); err != nil {
		entry.WithError(err).Error("punishment incomplete")
	}
	return false, nil
}

// classify routes photos through image classification, falling back to the
// caption text when the file download fails.
func (o *Orchestrator) classify(ctx context.Context, entry *log.Entry, msg *api.Message, content string) (detector.Verdict, error) {
	if len(msg.Photo) == 0 {
		return o.detector.Classify(ctx, content)
	}

	// Telegram orders PhotoSize ascending; the last one is the original.
	fileID := msg.Photo[len(msg.Photo)-1].FileID
	data, err := o.adapter.FetchFile(ctx, fileID)
	if err != nil {
		entry.WithError(err).Warn("cant fetch photo, classifying caption only")
		return o.detector.Classify(ctx, content)
	}
	return o.detector.ClassifyImage(ctx, data, "image/jpeg", content)
}

func (o *Orchestrator) commit(ctx context.Context, entry *log.Entry) {
	if err := o.limiter.Commit(ctx); err != nil {
		entry.WithError(err).Error("cant persist API usage")
	}
}
