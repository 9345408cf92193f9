// Package handlers holds the bot's commands and callback actions.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/zhaopengme/statsbot/pkg/botapi"
	"github.com/zhaopengme/statsbot/pkg/dispatch"
	"github.com/zhaopengme/statsbot/pkg/stats"
	"github.com/zhaopengme/statsbot/pkg/store"
)

const (
	KeyStart         = "start"
	KeyChannels      = "channels"
	KeyStats         = "stats"
	KeyHelp          = "help"
	KeyForward       = dispatch.KeyForward
	KeySelectChannel = "select_channel"
	KeyClose         = "close"
)

var ErrUnexpectedUpdate = errors.New("unexpected update type")

type Users interface {
	GetUser(ctx context.Context, userID int64) (*store.User, error)
	CreateUser(ctx context.Context, u store.User) error
}

type Chats interface {
	GetChat(ctx context.Context, chatID int64) (*store.Chat, error)
	ListChats(ctx context.Context) ([]store.Chat, error)
	CreateChat(ctx context.Context, c store.Chat) error
}

type Reports interface {
	ChannelLines(ctx context.Context, chatID int64) ([]string, error)
	SummaryLines(ctx context.Context, chats []store.Chat) ([]string, error)
}

// Deps are the long-lived services handlers share.
type Deps struct {
	Users   Users
	Chats   Chats
	Reports Reports

	// PerMessage caps report entries per outbound message.
	PerMessage int
	// KeyboardColumns is the width of the channel picker.
	KeyboardColumns int
	// ActionField is the callback payload key naming the action.
	ActionField string
}

func (d *Deps) actionField() string {
	if d.ActionField == "" {
		return dispatch.DefaultActionField
	}
	return d.ActionField
}

// Register adds every handler to b. Keys with a description form the
// command menu, in this order.
func Register(b *dispatch.RegistryBuilder, deps *Deps) *dispatch.RegistryBuilder {
	return b.
		Register(dispatch.Registration{
			Key:         KeyStart,
			Description: "Start the bot",
			Factory:     forMessage(deps, func(h base, m *botapi.Message) dispatch.Handler { return &StartHandler{base: h, msg: m} }),
		}).
		Register(dispatch.Registration{
			Key:         KeyChannels,
			Description: "Pick a channel to see its stats",
			Factory:     forMessage(deps, func(h base, m *botapi.Message) dispatch.Handler { return &ChannelsHandler{base: h, msg: m} }),
		}).
		Register(dispatch.Registration{
			Key:         KeyStats,
			Description: "Weekly statistics for your channels",
			Factory:     forMessage(deps, func(h base, m *botapi.Message) dispatch.Handler { return &StatsHandler{base: h, msg: m} }),
		}).
		Register(dispatch.Registration{
			Key:         KeyHelp,
			Description: "List available commands",
			Factory:     forMessage(deps, func(h base, m *botapi.Message) dispatch.Handler { return &HelpHandler{base: h, msg: m} }),
		}).
		Register(dispatch.Registration{
			Key:     KeyForward,
			Factory: forMessage(deps, func(h base, m *botapi.Message) dispatch.Handler { return &ForwardHandler{base: h, msg: m} }),
		}).
		Register(dispatch.Registration{
			Key:     KeySelectChannel,
			Factory: forCallback(deps, func(h base, cb *botapi.Callback) dispatch.Handler { return &SelectChannelHandler{base: h, cb: cb} }),
		}).
		Register(dispatch.Registration{
			Key:     KeyClose,
			Factory: forCallback(deps, func(h base, cb *botapi.Callback) dispatch.Handler { return &CloseHandler{base: h, cb: cb} }),
		})
}

type base struct {
	env  *dispatch.Env
	deps *Deps
}

func (b base) post(ctx context.Context, chatID int64, text string, opts ...botapi.SendOption) error {
	if err := b.env.Notifier.PostMessage(ctx, chatID, text, opts...); err != nil {
		return fmt.Errorf("post message to %d: %w", chatID, err)
	}
	return nil
}

// postReport sends the per-day report of one channel to chatID.
func (b base) postReport(ctx context.Context, chatID int64, channel store.Chat) error {
	lines, err := b.deps.Reports.ChannelLines(ctx, channel.ChatID)
	if err != nil {
		return fmt.Errorf("build report for %d: %w", channel.ChatID, err)
	}
	if len(lines) == 0 {
		return b.post(ctx, chatID, fmt.Sprintf(noDataReply, html.EscapeString(displayTitle(channel))))
	}
	for _, text := range stats.Batch(lines, b.deps.PerMessage) {
		if err := b.post(ctx, chatID, text); err != nil {
			return err
		}
	}
	return nil
}

// wrong wraps a handler that was resolved for an update of the wrong shape,
// e.g. a callback whose action names a command.
type wrong struct {
	u botapi.Update
}

func (w wrong) Handle(context.Context) error {
	return fmt.Errorf("%w: %T", ErrUnexpectedUpdate, w.u)
}

func forMessage(deps *Deps, build func(base, *botapi.Message) dispatch.Handler) dispatch.Factory {
	return func(env *dispatch.Env, u botapi.Update) dispatch.Handler {
		msg, ok := u.(*botapi.Message)
		if !ok {
			return wrong{u: u}
		}
		return build(base{env: env, deps: deps}, msg)
	}
}

func forCallback(deps *Deps, build func(base, *botapi.Callback) dispatch.Handler) dispatch.Factory {
	return func(env *dispatch.Env, u botapi.Update) dispatch.Handler {
		cb, ok := u.(*botapi.Callback)
		if !ok {
			return wrong{u: u}
		}
		return build(base{env: env, deps: deps}, cb)
	}
}

func displayTitle(c store.Chat) string {
	switch {
	case c.Title != "":
		return c.Title
	case c.Username != "":
		return "@" + c.Username
	default:
		return fmt.Sprintf("%d", c.ChatID)
	}
}
