package botapi

import (
	"context"
	"errors"
	"time"
)

// ErrFatal marks Bot API failures that retrying cannot fix, such as a revoked
// token. Transport adapters wrap it.
var ErrFatal = errors.New("fatal bot api error")

// UpdateSource is the getUpdates endpoint. offset 0 means "no offset".
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]RawUpdate, error)
}

// Button is one inline keyboard button carrying a callback payload.
type Button struct {
	Text string
	Data map[string]any
}

// SendOptions tweak an outbound message.
type SendOptions struct {
	Keyboard [][]Button
	// PlainText disables HTML parse mode.
	PlainText bool
}

type SendOption func(*SendOptions)

func WithKeyboard(rows [][]Button) SendOption {
	return func(o *SendOptions) { o.Keyboard = rows }
}

func WithPlainText() SendOption {
	return func(o *SendOptions) { o.PlainText = true }
}

func ApplySendOptions(opts []SendOption) SendOptions {
	var o SendOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Notifier is the outbound side of the Bot API used by handlers.
type Notifier interface {
	PostMessage(ctx context.Context, chatID int64, text string, opts ...SendOption) error
	AnswerCallback(ctx context.Context, callbackID string) error
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts ...SendOption) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// CommandPublisher publishes the bot's command menu.
type CommandPublisher interface {
	SetCommands(ctx context.Context, commands []CommandInfo) error
}

// ChatInfo reads chat-level counters.
type ChatInfo interface {
	MemberCount(ctx context.Context, chatID int64) (int, error)
}

// Grid lays buttons out in rows of the given width.
func Grid(buttons []Button, columns int) [][]Button {
	if columns <= 0 {
		columns = 1
	}
	var rows [][]Button
	for start := 0; start < len(buttons); start += columns {
		end := min(start+columns, len(buttons))
		rows = append(rows, buttons[start:end])
	}
	return rows
}
