// Package poller implements cursor-based long polling of the Bot API.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/zhaopengme/statsbot/pkg/botapi"
	"github.com/zhaopengme/statsbot/pkg/logger"
)

const (
	DefaultTimeout = 60 * time.Second
	DefaultMargin  = 5 * time.Second
)

// Cursor tracks the last seen update id. The zero value is unset.
type Cursor struct {
	lastSeen int
	set      bool
}

// LastSeen returns the last seen update id and whether one was recorded.
func (c Cursor) LastSeen() (int, bool) {
	return c.lastSeen, c.set
}

// Offset returns the getUpdates offset, 0 when no update has been seen.
func (c Cursor) Offset() int {
	if !c.set {
		return 0
	}
	return c.lastSeen + 1
}

// Advance moves the cursor to id. It never moves backwards.
func (c *Cursor) Advance(id int) {
	if c.set && id <= c.lastSeen {
		return
	}
	c.lastSeen = id
	c.set = true
}

// LongPoller owns the cursor. It is not safe for concurrent use.
type LongPoller struct {
	source  botapi.UpdateSource
	cursor  Cursor
	timeout time.Duration
	margin  time.Duration
}

func NewLongPoller(source botapi.UpdateSource, timeout, margin time.Duration) *LongPoller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if margin < 0 {
		margin = DefaultMargin
	}
	return &LongPoller{
		source:  source,
		timeout: timeout,
		margin:  margin,
	}
}

// Cursor returns a copy of the current cursor.
func (p *LongPoller) Cursor() Cursor {
	return p.cursor
}

// FetchBatch performs one long-poll request and returns updates in the
// order the server sent them. Errors are returned as is; retrying is the
// caller's business.
func (p *LongPoller) FetchBatch(ctx context.Context) ([]botapi.RawUpdate, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout+p.margin)
	defer cancel()

	offset := p.cursor.Offset()
	updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("get updates (offset %d): %w", offset, err)
	}

	if len(updates) == 0 {
		return nil, nil
	}

	p.cursor.Advance(updates[len(updates)-1].UpdateID)

	last, _ := p.cursor.LastSeen()
	logger.DebugCF("poller", "Fetched updates", map[string]interface{}{
		"count":     len(updates),
		"offset":    offset,
		"last_seen": last,
	})

	return updates, nil
}
