// StatsBot - Telegram channel statistics bot
// License: MIT
//
// Copyright (c) 2026 StatsBot contributors

package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zhaopengme/statsbot/pkg/logger"
	"github.com/zhaopengme/statsbot/pkg/metrics"
)

const (
	DefaultWatermark     = 1024
	DefaultFlushInterval = 5 * time.Second
	DefaultPollWait      = 100 * time.Millisecond

	flushTimeout = 10 * time.Second
)

const (
	triggerWatermark = "watermark"
	triggerInterval  = "interval"
	triggerShutdown  = "shutdown"
)

// Sender buffers rows and ships them to the store. Only the writer
// goroutine calls it.
type Sender interface {
	Write(ctx context.Context, row Row, at time.Time) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

type WriterConfig struct {
	// Watermark is the buffered row count that forces a flush.
	Watermark int
	// FlushInterval bounds how long buffered rows wait for a flush.
	FlushInterval time.Duration
	// PollWait is how long one dequeue waits before the loop re-checks
	// the running flag and the flush interval.
	PollWait time.Duration
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.Watermark <= 0 {
		c.Watermark = DefaultWatermark
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.PollWait <= 0 {
		c.PollWait = DefaultPollWait
	}
	return c
}

// WriterStats are cumulative counters, safe to read from any goroutine.
type WriterStats struct {
	Written uint64
	Dropped uint64
	Flushes uint64
}

// Writer drains a Queue on its own goroutine and flushes by watermark or by
// elapsed time. Rows without a timestamp are stamped when they are written,
// not when they were enqueued, so queueing latency shows up as skew.
type Writer struct {
	queue  *Queue
	sender Sender
	cfg    WriterConfig
	now    func() time.Time

	running atomic.Bool
	started atomic.Bool
	stopped atomic.Bool
	done    chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	flushes atomic.Uint64

	// owned by the worker goroutine
	pending   int
	lastFlush time.Time
}

func NewWriter(queue *Queue, sender Sender, cfg WriterConfig) *Writer {
	return &Writer{
		queue:  queue,
		sender: sender,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling it twice, or after Stop, is
// a no-op.
func (w *Writer) Start() {
	if w.stopped.Load() || !w.started.CompareAndSwap(false, true) {
		return
	}
	w.running.Store(true)
	if w.stopped.Load() {
		w.running.Store(false)
	}
	go w.run()
}

// Stop asks the worker to finish. It does not wait; use Wait or Close.
func (w *Writer) Stop() {
	w.stopped.Store(true)
	w.running.Store(false)
}

// Wait blocks until the worker has exited.
func (w *Writer) Wait() {
	if !w.started.Load() {
		return
	}
	<-w.done
}

// Close stops the worker and waits for the final flush. Rows enqueued after
// the worker has left its loop stay in the queue.
func (w *Writer) Close() {
	w.Stop()
	w.Wait()
}

func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Flushes: w.flushes.Load(),
	}
}

func (w *Writer) run() {
	defer close(w.done)

	ctx := context.Background()
	logger.InfoCF("ingest", "Enter ingestion loop", map[string]interface{}{
		"watermark":      w.cfg.Watermark,
		"flush_interval": w.cfg.FlushInterval.String(),
	})

	w.lastFlush = w.now()
	for w.running.Load() {
		if row, ok := w.queue.Pop(w.cfg.PollWait); ok {
			w.write(ctx, row)
		}
		w.flushIfStale(ctx)
	}

	for {
		row, ok := w.queue.Pop(0)
		if !ok {
			break
		}
		w.write(ctx, row)
	}
	if w.pending > 0 {
		w.flush(ctx, triggerShutdown)
	}

	if err := w.sender.Close(ctx); err != nil {
		logger.ErrorCF("ingest", "Failed to close store sender", map[string]interface{}{
			"error": err.Error(),
		})
	}

	stats := w.Stats()
	logger.InfoCF("ingest", "Ingestion loop shut down", map[string]interface{}{
		"written": humanize.Comma(int64(stats.Written)),
		"dropped": humanize.Comma(int64(stats.Dropped)),
		"flushes": humanize.Comma(int64(stats.Flushes)),
	})
}

func (w *Writer) write(ctx context.Context, row Row) {
	at := row.At
	if at.IsZero() {
		at = w.now()
	}

	if err := w.sender.Write(ctx, row, at); err != nil {
		w.dropped.Add(1)
		metrics.RowsDropped.WithLabelValues("write").Inc()
		logger.ErrorCF("ingest", "Dropping row rejected by sender", map[string]interface{}{
			"table": row.Table,
			"error": err.Error(),
		})
		return
	}

	w.pending++
	w.written.Add(1)
	metrics.RowsWritten.Inc()

	logger.DebugCF("ingest", "Buffered row", map[string]interface{}{
		"table":   row.Table,
		"pending": w.pending,
	})

	if w.pending >= w.cfg.Watermark {
		w.flush(ctx, triggerWatermark)
	}
}

// flushIfStale flushes buffered rows once FlushInterval has passed since the
// last flush. An empty buffer counts as freshly flushed.
func (w *Writer) flushIfStale(ctx context.Context) {
	if w.pending == 0 {
		w.lastFlush = w.now()
		return
	}
	if w.now().Sub(w.lastFlush) > w.cfg.FlushInterval {
		w.flush(ctx, triggerInterval)
	}
}

func (w *Writer) flush(ctx context.Context, trigger string) {
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	start := time.Now()
	err := w.sender.Flush(ctx)
	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	metrics.Flushes.WithLabelValues(trigger).Inc()
	w.flushes.Add(1)

	n := w.pending
	w.pending = 0
	w.lastFlush = w.now()

	if err != nil {
		w.dropped.Add(uint64(n))
		metrics.RowsDropped.WithLabelValues("flush").Add(float64(n))
		logger.ErrorCF("ingest", "Flush failed, buffered rows dropped", map[string]interface{}{
			"trigger": trigger,
			"rows":    n,
			"error":   err.Error(),
		})
		return
	}

	logger.DebugCF("ingest", "Flushed rows", map[string]interface{}{
		"trigger": trigger,
		"rows":    n,
	})
}
