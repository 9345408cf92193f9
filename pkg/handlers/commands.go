package handlers

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/zhaopengme/statsbot/pkg/botapi"
	"github.com/zhaopengme/statsbot/pkg/ingest"
	"github.com/zhaopengme/statsbot/pkg/logger"
	"github.com/zhaopengme/statsbot/pkg/stats"
	"github.com/zhaopengme/statsbot/pkg/store"
)

const (
	greeting = `Hi there, this bot collects statistics for Telegram channels.
Forward me a post from a channel to start tracking it.
Use /channels or /stats to see the numbers at any time.`

	noChatsReply = "You have no channels yet. Forward me a post from a channel to start tracking it."

	pickChannelText = "Select the channel to display the stats for:"

	addedReply = `Channel "%s" added. Use /stats to see its numbers.`

	noDataReply = `No data collected for "%s" yet. Check back in a few minutes.`

	unknownChannelReply = "I don't track channel %d. Forward me one of its posts first."
)

type StartHandler struct {
	base
	msg *botapi.Message
}

// Handle greets the user and remembers them on first contact.
func (h *StartHandler) Handle(ctx context.Context) error {
	if peer := h.msg.From; peer != nil {
		user, err := h.deps.Users.GetUser(ctx, peer.ID)
		if err != nil {
			return err
		}
		if user == nil {
			if err := h.deps.Users.CreateUser(ctx, store.User{UserID: peer.ID, Username: peer.Username}); err != nil {
				return err
			}
			logger.InfoCF("handlers", "New user", map[string]interface{}{
				"user_id": peer.ID,
			})
		}
	}
	return h.post(ctx, h.msg.ChatID(), greeting, botapi.WithPlainText())
}

// ForwardHandler registers the channel a forwarded post came from and
// records the forward.
type ForwardHandler struct {
	base
	msg *botapi.Message
}

func (h *ForwardHandler) Handle(ctx context.Context) error {
	origin := h.msg.ForwardFromChat
	if origin == nil {
		return fmt.Errorf("%w: message %d carries no forward origin", ErrUnexpectedUpdate, h.msg.MessageID)
	}

	chat, err := h.deps.Chats.GetChat(ctx, origin.ChatID)
	if err != nil {
		return err
	}
	if chat == nil {
		chat = &store.Chat{
			ChatID:   origin.ChatID,
			Title:    origin.Title,
			Username: origin.Username,
		}
		if h.msg.From != nil {
			chat.AddedBy = h.msg.From.ID
		}
		if err := h.deps.Chats.CreateChat(ctx, *chat); err != nil {
			return err
		}
		logger.InfoCF("handlers", "Channel registered", map[string]interface{}{
			"chat_id": chat.ChatID,
			"title":   chat.Title,
		})
	}

	if h.env.Ingest != nil {
		row := ingest.Row{
			Table:   store.TableChannelForwards,
			Symbols: map[string]string{"chat_id": strconv.FormatInt(origin.ChatID, 10)},
			Columns: map[string]any{"message_id": int64(h.msg.MessageID)},
		}
		if h.msg.From != nil {
			row.Columns["user_id"] = h.msg.From.ID
		}
		h.env.Ingest.Enqueue(row)
	}

	return h.post(ctx, h.msg.ChatID(), fmt.Sprintf(addedReply, html.EscapeString(displayTitle(*chat))))
}

// ChannelsHandler shows an inline keyboard with one button per channel.
type ChannelsHandler struct {
	base
	msg *botapi.Message
}

func (h *ChannelsHandler) Handle(ctx context.Context) error {
	chats, err := h.deps.Chats.ListChats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		return h.post(ctx, h.msg.ChatID(), noChatsReply, botapi.WithPlainText())
	}

	field := h.deps.actionField()
	buttons := make([]botapi.Button, 0, len(chats))
	for _, c := range chats {
		buttons = append(buttons, botapi.Button{
			Text: displayTitle(c),
			Data: map[string]any{field: KeySelectChannel, "cid": c.ChatID},
		})
	}
	columns := h.deps.KeyboardColumns
	if columns <= 0 {
		columns = 2
	}
	rows := botapi.Grid(buttons, columns)
	rows = append(rows, []botapi.Button{{Text: "Close", Data: map[string]any{field: KeyClose}}})

	return h.post(ctx, h.msg.ChatID(), pickChannelText, botapi.WithKeyboard(rows))
}

// StatsHandler sends a summary for every channel, or the daily report of
// one channel when its id is given: /stats -1001234567890.
type StatsHandler struct {
	base
	msg *botapi.Message
}

func (h *StatsHandler) Handle(ctx context.Context) error {
	chatID := h.msg.ChatID()

	if cmd := h.msg.Command; cmd != nil && len(cmd.Params) > 0 {
		id, err := strconv.ParseInt(cmd.Params[0], 10, 64)
		if err != nil {
			return h.post(ctx, chatID, "Usage: /stats [channel id]", botapi.WithPlainText())
		}
		channel, err := h.deps.Chats.GetChat(ctx, id)
		if err != nil {
			return err
		}
		if channel == nil {
			return h.post(ctx, chatID, fmt.Sprintf(unknownChannelReply, id), botapi.WithPlainText())
		}
		return h.postReport(ctx, chatID, *channel)
	}

	chats, err := h.deps.Chats.ListChats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		return h.post(ctx, chatID, noChatsReply, botapi.WithPlainText())
	}

	lines, err := h.deps.Reports.SummaryLines(ctx, chats)
	if err != nil {
		return fmt.Errorf("build summary: %w", err)
	}
	for _, text := range stats.Batch(lines, h.deps.PerMessage) {
		if err := h.post(ctx, chatID, text); err != nil {
			return err
		}
	}
	return nil
}

type HelpHandler struct {
	base
	msg *botapi.Message
}

func (h *HelpHandler) Handle(ctx context.Context) error {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, c := range h.env.Registry.Commands() {
		fmt.Fprintf(&b, "/%s - %s\n", c.Command, c.Description)
	}
	return h.post(ctx, h.msg.ChatID(), strings.TrimRight(b.String(), "\n"), botapi.WithPlainText())
}
