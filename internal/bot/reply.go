package bot

import (
	"context"

	"github.com/khmerdict/dictbot/internal/user"
)

//go:generate mockgen -source=reply.go -destination=../mocks/bot/mock_reply.go -package=mock_bot

// MaxMessageLength is Telegram's limit on the text of one message.
const MaxMessageLength = 4096

// Reply is a platform-neutral answer.
type Reply struct {
	Text     string
	Markdown bool
	Buttons  [][]Button
}

// Button is an inline keyboard button. Exactly one of Callback and URL is set.
type Button struct {
	Label    string
	Callback CallbackTag
	URL      string
}

// MessageRef addresses a message the bot sent or is answering.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Replier delivers replies to the chat platform.
type Replier interface {
	Send(ctx context.Context, chatID int64, reply Reply) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, reply Reply) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// UsageRecorder counts messages per user.
type UsageRecorder interface {
	Upsert(ctx context.Context, p user.Profile) error
}

// Reporter renders the administrator summary for the caller.
type Reporter interface {
	Report(ctx context.Context, callerID int64) (string, error)
}
