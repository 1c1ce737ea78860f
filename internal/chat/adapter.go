package chat

import "context"

// MessageRef is an opaque handle to a platform message, sufficient to delete it.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Adapter abstracts the messaging platform. Every operation may fail with a
// platform error; callers treat those as non-fatal.
type Adapter interface {
	DeleteMessage(ctx context.Context, ref MessageRef) error
	SendDirectMessage(ctx context.Context, userID int64, text string) error
	// KickMember removes the user from the chat in a mode that permits rejoining.
	KickMember(ctx context.Context, chatID, userID int64) error
	// BanMember removes the user permanently.
	BanMember(ctx context.Context, chatID, userID int64) error
	ListAdministrators(ctx context.Context, chatID int64) ([]int64, error)
	// FetchFile downloads a platform file (used for image classification).
	FetchFile(ctx context.Context, fileID string) ([]byte, error)
}
