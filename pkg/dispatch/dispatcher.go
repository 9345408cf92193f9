// StatsBot - Telegram channel statistics bot
// License: MIT
//
// Copyright (c) 2026 StatsBot contributors

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/zhaopengme/statsbot/pkg/botapi"
	"github.com/zhaopengme/statsbot/pkg/ingest"
	"github.com/zhaopengme/statsbot/pkg/logger"
	"github.com/zhaopengme/statsbot/pkg/metrics"
)

const (
	OutcomeOK           = "ok"
	OutcomeError        = "error"
	OutcomePanic        = "panic"
	OutcomeUnknown      = "unknown"
	OutcomeUnclassified = "unclassified"
)

const (
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second

	// TableBotUpdates receives one row per processed update.
	TableBotUpdates = "bot_updates"
)

// UnrecognizedCommandFormat is the reply to a command nobody registered.
const UnrecognizedCommandFormat = "Unrecognized command /%s. Say what?"

// BatchFetcher is the long poller as seen by the dispatcher.
type BatchFetcher interface {
	FetchBatch(ctx context.Context) ([]botapi.RawUpdate, error)
}

// Dispatcher runs the poll, classify, resolve, invoke cycle on a single
// goroutine. Updates are handled strictly one after another.
type Dispatcher struct {
	fetcher    BatchFetcher
	classifier *Classifier
	registry   *Registry
	env        *Env

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewDispatcher(fetcher BatchFetcher, classifier *Classifier, registry *Registry, env *Env) *Dispatcher {
	if env == nil {
		env = &Env{}
	}
	if env.Registry == nil {
		env.Registry = registry
	}
	return &Dispatcher{
		fetcher:    fetcher,
		classifier: classifier,
		registry:   registry,
		env:        env,
		MinBackoff: DefaultMinBackoff,
		MaxBackoff: DefaultMaxBackoff,
	}
}

// Run loops until ctx is cancelled, returning nil, or until the update source
// reports a botapi.ErrFatal error, which is returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger.InfoC("dispatch", "Enter updates-processing loop")
	defer logger.InfoC("dispatch", "Updates-processing loop stopped")

	delay := d.MinBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := d.fetcher.FetchBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, botapi.ErrFatal) {
				logger.ErrorCF("dispatch", "Update source failed permanently", map[string]interface{}{
					"error": err.Error(),
				})
				return err
			}

			metrics.PollErrors.Inc()
			logger.WarnCF("dispatch", "Polling failed, retrying", map[string]interface{}{
				"error":    err.Error(),
				"retry_in": delay.String(),
			})

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			delay = min(delay*2, d.MaxBackoff)
			continue
		}
		delay = d.MinBackoff

		for _, raw := range updates {
			if ctx.Err() != nil {
				return nil
			}
			d.ProcessUpdate(ctx, raw)
		}
	}
}

// ProcessUpdate classifies, resolves and invokes one update and returns its
// outcome. Handler errors and panics never escape.
func (d *Dispatcher) ProcessUpdate(ctx context.Context, raw botapi.RawUpdate) string {
	start := time.Now()
	traceID := uuid.NewString()

	cls, ok := d.classifier.Classify(raw)
	if !ok {
		logger.WarnCF("dispatch", "Unrecognized update type, skipping processing", map[string]interface{}{
			"update_id": raw.UpdateID,
			"trace_id":  traceID,
		})
		d.record(cls, "", OutcomeUnclassified, time.Since(start))
		return OutcomeUnclassified
	}

	factory, found := d.registry.Resolve(cls.Key)
	if !found {
		d.unrecognized(ctx, cls, traceID)
		d.record(cls, "", OutcomeUnknown, time.Since(start))
		return OutcomeUnknown
	}

	logger.DebugCF("dispatch", "Dispatching update", map[string]interface{}{
		"update_id": cls.UpdateID,
		"key":       cls.Key,
		"trace_id":  traceID,
	})

	outcome := d.invoke(ctx, factory, cls, traceID)
	elapsed := time.Since(start)
	metrics.HandlerDuration.WithLabelValues(cls.Key).Observe(elapsed.Seconds())
	d.record(cls, cls.Key, outcome, elapsed)
	return outcome
}

func (d *Dispatcher) invoke(ctx context.Context, factory Factory, cls Classification, traceID string) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("dispatch", "Handler panicked", map[string]interface{}{
				"update_id": cls.UpdateID,
				"key":       cls.Key,
				"trace_id":  traceID,
				"panic":     fmt.Sprint(r),
				"stack":     string(debug.Stack()),
			})
			outcome = OutcomePanic
		}
	}()

	h := factory(d.env, cls.Update)
	if h == nil {
		return OutcomeOK
	}
	if err := h.Handle(ctx); err != nil {
		logger.ErrorCF("dispatch", "Handler failed", map[string]interface{}{
			"update_id": cls.UpdateID,
			"key":       cls.Key,
			"trace_id":  traceID,
			"error":     err.Error(),
		})
		return OutcomeError
	}
	return OutcomeOK
}

func (d *Dispatcher) unrecognized(ctx context.Context, cls Classification, traceID string) {
	if msg, ok := cls.Update.(*botapi.Message); ok && msg.Command != nil && d.env.Notifier != nil {
		text := fmt.Sprintf(UnrecognizedCommandFormat, msg.Command.Name)
		if err := d.env.Notifier.PostMessage(ctx, msg.ChatID(), text, botapi.WithPlainText()); err != nil {
			logger.ErrorCF("dispatch", "Failed to send unrecognized command notice", map[string]interface{}{
				"chat_id": msg.ChatID(),
				"error":   err.Error(),
			})
		}
	}

	logger.WarnCF("dispatch", "No handler found for key", map[string]interface{}{
		"update_id": cls.UpdateID,
		"key":       cls.Key,
		"trace_id":  traceID,
	})
}

// record counts the update and enqueues its bot_updates row. keyLabel is
// empty for unresolved keys so user-controlled strings never become labels.
func (d *Dispatcher) record(cls Classification, keyLabel, outcome string, elapsed time.Duration) {
	if keyLabel == "" {
		keyLabel = outcome
	}
	metrics.Updates.WithLabelValues(keyLabel, outcome).Inc()

	if d.env.Ingest == nil {
		return
	}
	d.env.Ingest.Enqueue(ingest.Row{
		Table:   TableBotUpdates,
		Symbols: map[string]string{"key": keyLabel, "outcome": outcome},
		Columns: map[string]any{
			"update_id":   int64(cls.UpdateID),
			"duration_ms": float64(elapsed.Microseconds()) / 1000,
		},
	})
}
