package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
)

const fileFetchTimeout = 30 * time.Second

// TelegramAdapter implements Adapter on top of the Bot API client.
type TelegramAdapter struct {
	bot        *api.BotAPI
	httpClient *http.Client
}

func NewTelegramAdapter(bot *api.BotAPI) *TelegramAdapter {
	return &TelegramAdapter{
		bot:        bot,
		httpClient: &http.Client{Timeout: fileFetchTimeout},
	}
}

func (t *TelegramAdapter) DeleteMessage(ctx context.Context, ref MessageRef) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := t.bot.Request(api.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (t *TelegramAdapter) SendDirectMessage(ctx context.Context, userID int64, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := api.NewMessage(userID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send direct message: %w", err)
	}
	return nil
}

// KickMember uses the unban call with only-if-banned disabled, which removes
// a present member while leaving them free to rejoin.
func (t *TelegramAdapter) KickMember(ctx context.Context, chatID, userID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	config := api.UnbanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		OnlyIfBanned: false,
	}
	if _, err := t.bot.Request(config); err != nil {
		return fmt.Errorf("failed to kick user: %w", err)
	}
	return nil
}

func (t *TelegramAdapter) BanMember(ctx context.Context, chatID, userID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	config := api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	}
	if _, err := t.bot.Request(config); err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}
	return nil
}

func (t *TelegramAdapter) ListAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	admins, err := t.bot.GetChatAdministrators(api.ChatAdministratorsConfig{
		ChatConfig: api.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list administrators: %w", err)
	}
	ids := make([]int64, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.User.ID)
	}
	return ids, nil
}

func (t *TelegramAdapter) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create file request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}
	return data, nil
}
