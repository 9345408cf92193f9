package handlers

import (
	"context"
	"fmt"
	"html"

	"golang.org/x/sync/errgroup"

	"github.com/zhaopengme/statsbot/pkg/botapi"
	"github.com/zhaopengme/statsbot/pkg/logger"
)

// SelectChannelHandler answers a channel picker button: it acknowledges the
// callback, turns the picker into a header and posts the channel report.
type SelectChannelHandler struct {
	base
	cb *botapi.Callback
}

func (h *SelectChannelHandler) Handle(ctx context.Context) error {
	cid, ok := h.cb.Int64("cid")
	if !ok {
		logger.WarnCF("handlers", "No cid in callback payload", map[string]interface{}{
			"callback_id": h.cb.ID,
		})
		return h.env.Notifier.AnswerCallback(ctx, h.cb.ID)
	}
	if h.cb.Message == nil {
		return fmt.Errorf("%w: callback %s has no message", ErrUnexpectedUpdate, h.cb.ID)
	}
	chatID := h.cb.ChatID()

	channel, err := h.deps.Chats.GetChat(ctx, cid)
	if err != nil {
		return err
	}
	if channel == nil {
		if err := h.env.Notifier.AnswerCallback(ctx, h.cb.ID); err != nil {
			return err
		}
		return h.post(ctx, chatID, fmt.Sprintf(unknownChannelReply, cid), botapi.WithPlainText())
	}

	header := fmt.Sprintf("Stats for <b>%s</b>:", html.EscapeString(displayTitle(*channel)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.env.Notifier.AnswerCallback(gctx, h.cb.ID)
	})
	g.Go(func() error {
		return h.env.Notifier.EditMessageText(gctx, chatID, h.cb.Message.MessageID, header)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("acknowledge channel pick: %w", err)
	}

	return h.postReport(ctx, chatID, *channel)
}

// CloseHandler removes the channel picker.
type CloseHandler struct {
	base
	cb *botapi.Callback
}

func (h *CloseHandler) Handle(ctx context.Context) error {
	if err := h.env.Notifier.AnswerCallback(ctx, h.cb.ID); err != nil {
		return err
	}
	if h.cb.Message == nil {
		return nil
	}
	return h.env.Notifier.DeleteMessage(ctx, h.cb.ChatID(), h.cb.Message.MessageID)
}
