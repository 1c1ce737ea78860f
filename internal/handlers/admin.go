package handlers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/spamsentry/spamsentry/internal/bot"
	"github.com/spamsentry/spamsentry/internal/moderation"
)

const genericFailureNotice = "Something went wrong, please try again later."

// Admin serves the moderation commands. Only group administrators may use
// them; everyone else falls through to the moderation pipeline.
type Admin struct {
	s         bot.Service
	ledger    *moderation.ViolationLedger
	limiter   *moderation.RateLimiter
	whitelist *moderation.Whitelist
	clock     moderation.Clock
}

func NewAdmin(
	s bot.Service,
	ledger *moderation.ViolationLedger,
	limiter *moderation.RateLimiter,
	whitelist *moderation.Whitelist,
	clock moderation.Clock,
) *Admin {
	if clock == nil {
		clock = moderation.SystemClock
	}
	return &Admin{
		s:         s,
		ledger:    ledger,
		limiter:   limiter,
		whitelist: whitelist,
		clock:     clock,
	}
}

func (a *Admin) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
	if chat == nil || user == nil {
		return true, nil
	}

	switch {
	case
		u.Message == nil,
		user.IsBot,
		!u.Message.IsCommand():
		return true, nil
	}
	m := u.Message

	var reply string
	switch m.Command() {
	case "stats":
		if !a.isAdmin(chat.ID, user.ID) {
			return true, nil
		}
		reply = a.stats(ctx)
	case "whitelist":
		if !a.isAdmin(chat.ID, user.ID) {
			return true, nil
		}
		reply = a.whitelistCommand(m.CommandArguments())
	case "reset_user":
		if !a.isAdmin(chat.ID, user.ID) {
			return true, nil
		}
		reply = a.resetUser(ctx, m.CommandArguments())
	default:
		a.getLogEntry().Trace("unknown command")
		return true, nil
	}

	msg := api.NewMessage(chat.ID, reply)
	msg.DisableNotification = true
	if _, err := a.s.GetBot().Send(msg); err != nil {
		a.getLogEntry().WithError(err).Warn("cant send command reply")
	}
	return false, nil
}

// isAdmin consults the cached roster first and falls back to a live member
// lookup, so commands work even before the first roster refresh.
func (a *Admin) isAdmin(chatID, userID int64) bool {
	if a.whitelist.IsAdmin(userID) {
		return true
	}

	chatMember, err := a.s.GetBot().GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			UserID: userID,
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
		},
	})
	if err != nil {
		a.getLogEntry().WithError(err).Warn("cant get chat member")
		return false
	}
	return chatMember.IsCreator() || chatMember.IsAdministrator()
}

func (a *Admin) stats(ctx context.Context) string {
	stats, err := a.s.GetDB().GetStats(ctx, a.clock.Now())
	if err != nil {
		a.getLogEntry().WithError(err).Error("cant load stats")
		return genericFailureNotice
	}
	used, limit := a.limiter.Usage(ctx)

	var b strings.Builder
	b.WriteString("Moderation stats\n")
	fmt.Fprintf(&b, "API calls today: %d/%d\n", used, limit)
	fmt.Fprintf(&b, "Messages checked this week: %d\n", stats.MessagesThisWeek)
	fmt.Fprintf(&b, "Spam caught this week: %d\n", stats.SpamThisWeek)
	fmt.Fprintf(&b, "Users with active violations: %d\n", stats.ActiveViolations)
	fmt.Fprintf(&b, "Whitelisted users: %d\n", a.whitelist.Size())

	if len(stats.ActionCounts) > 0 {
		b.WriteString("Actions taken:\n")
		actions := make([]string, 0, len(stats.ActionCounts))
		for action := range stats.ActionCounts {
			actions = append(actions, action)
		}
		sort.Strings(actions)
		for _, action := range actions {
			fmt.Fprintf(&b, "  %s: %d\n", action, stats.ActionCounts[action])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Admin) whitelistCommand(arguments string) string {
	args := strings.Fields(arguments)
	if len(args) == 0 {
		return "Usage: /whitelist list | add <user_id> | remove <user_id>"
	}

	switch args[0] {
	case "list":
		ids := a.whitelist.Users()
		if len(ids) == 0 {
			return "The whitelist is empty."
		}
		lines := make([]string, 0, len(ids)+1)
		lines = append(lines, "Whitelisted users:")
		for _, id := range ids {
			lines = append(lines, strconv.FormatInt(id, 10))
		}
		return strings.Join(lines, "\n")

	case "add":
		userID, err := parseUserID(args[1:])
		if err != nil {
			return "Usage: /whitelist add <user_id>"
		}
		added, err := a.whitelist.Add(userID)
		if err != nil {
			a.getLogEntry().WithError(err).Error("cant persist whitelist")
			return genericFailureNotice
		}
		if !added {
			return fmt.Sprintf("User %d is already whitelisted.", userID)
		}
		return fmt.Sprintf("User %d added to the whitelist.", userID)

	case "remove":
		userID, err := parseUserID(args[1:])
		if err != nil {
			return "Usage: /whitelist remove <user_id>"
		}
		removed, err := a.whitelist.Remove(userID)
		if err != nil {
			a.getLogEntry().WithError(err).Error("cant persist whitelist")
			return genericFailureNotice
		}
		if !removed {
			return fmt.Sprintf("User %d is not on the whitelist.", userID)
		}
		return fmt.Sprintf("User %d removed from the whitelist.", userID)

	default:
		return "Usage: /whitelist list | add <user_id> | remove <user_id>"
	}
}

func (a *Admin) resetUser(ctx context.Context, arguments string) string {
	userID, err := parseUserID(strings.Fields(arguments))
	if err != nil {
		return "Usage: /reset_user <user_id>"
	}
	if err := a.ledger.Reset(ctx, userID); err != nil {
		a.getLogEntry().WithError(err).Error("cant reset violations")
		return genericFailureNotice
	}
	return fmt.Sprintf("Violations for user %d have been reset.", userID)
}

func parseUserID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one argument")
	}
	return strconv.ParseInt(args[0], 10, 64)
}

func (a *Admin) getLogEntry() *log.Entry {
	return log.WithField("context", "admin")
}
