// Package stats collects channel counters on a schedule and turns stored
// series into report lines.
package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adhocore/gronx"

	"github.com/zhaopengme/statsbot/pkg/botapi"
	"github.com/zhaopengme/statsbot/pkg/ingest"
	"github.com/zhaopengme/statsbot/pkg/logger"
	"github.com/zhaopengme/statsbot/pkg/store"
)

const DefaultCron = "*/5 * * * *"

type ChatLister interface {
	ListChats(ctx context.Context) ([]store.Chat, error)
}

// Collector samples the member count of every registered channel whenever
// its cron expression fires and enqueues one channel_members row per channel.
type Collector struct {
	chats ChatLister
	info  botapi.ChatInfo
	rows  ingest.Enqueuer
	cron  string
	now   func() time.Time
}

func NewCollector(chats ChatLister, info botapi.ChatInfo, rows ingest.Enqueuer, cronExpr string) (*Collector, error) {
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid collector cron expression: %s", cronExpr)
	}
	return &Collector{
		chats: chats,
		info:  info,
		rows:  rows,
		cron:  cronExpr,
		now:   time.Now,
	}, nil
}

// Run sleeps until each cron tick and collects, until ctx is cancelled.
// Collections run inline, so a slow round delays the next tick instead of
// overlapping it.
func (c *Collector) Run(ctx context.Context) {
	logger.InfoCF("stats", "Collector started", map[string]interface{}{
		"cron": c.cron,
	})
	defer logger.InfoC("stats", "Collector stopped")

	for {
		now := c.now()
		next, err := gronx.NextTickAfter(c.cron, now.UTC(), false)
		if err != nil {
			logger.ErrorCF("stats", "Cannot compute next collection tick", map[string]interface{}{
				"cron":  c.cron,
				"error": err.Error(),
			})
			next = now.Add(time.Minute)
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := c.CollectOnce(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorCF("stats", "Collection round failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// CollectOnce samples every registered channel once and returns how many
// rows were enqueued. A failing channel is logged and skipped.
func (c *Collector) CollectOnce(ctx context.Context) (int, error) {
	chats, err := c.chats.ListChats(ctx)
	if err != nil {
		return 0, fmt.Errorf("list chats: %w", err)
	}

	at := c.now()
	collected := 0
	for _, chat := range chats {
		if ctx.Err() != nil {
			return collected, ctx.Err()
		}
		n, err := c.info.MemberCount(ctx, chat.ChatID)
		if err != nil {
			logger.WarnCF("stats", "Failed to read member count", map[string]interface{}{
				"chat_id": chat.ChatID,
				"error":   err.Error(),
			})
			continue
		}
		c.rows.Enqueue(ingest.Row{
			Table:   store.TableChannelMembers,
			Symbols: map[string]string{"chat_id": strconv.FormatInt(chat.ChatID, 10)},
			Columns: map[string]any{"members": int64(n)},
			At:      at,
		})
		collected++
	}

	logger.DebugCF("stats", "Collection round finished", map[string]interface{}{
		"chats":     len(chats),
		"collected": collected,
	})
	return collected, nil
}
