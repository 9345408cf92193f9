// StatsBot - Telegram channel statistics bot
// License: MIT
//
// Copyright (c) 2026 StatsBot contributors

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhaopengme/statsbot/pkg/channels"
	"github.com/zhaopengme/statsbot/pkg/config"
	"github.com/zhaopengme/statsbot/pkg/dispatch"
	"github.com/zhaopengme/statsbot/pkg/handlers"
	"github.com/zhaopengme/statsbot/pkg/ingest"
	"github.com/zhaopengme/statsbot/pkg/logger"
	"github.com/zhaopengme/statsbot/pkg/metrics"
	"github.com/zhaopengme/statsbot/pkg/poller"
	"github.com/zhaopengme/statsbot/pkg/stats"
	"github.com/zhaopengme/statsbot/pkg/store"
)

func runCmd(args []string) {
	cfg, err := loadConfig(parseFlags("run", args))
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runBot(ctx, cfg); err != nil {
		logger.ErrorCF("main", "Bot stopped with error", map[string]interface{}{
			"error": err.Error(),
		})
		logger.Sync()
		os.Exit(1)
	}
}

// runBot wires every component and blocks until ctx is cancelled or the
// update source fails for good. Shutdown runs in reverse: dispatch and the
// collector stop first, then the writer flushes, then the database closes.
func runBot(ctx context.Context, cfg *config.Config) error {
	db, err := store.Connect(ctx, cfg.QuestDB.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.CreateSchema(ctx, db); err != nil {
		return err
	}

	client, err := channels.NewTelegramClient(cfg.Telegram)
	if err != nil {
		return err
	}

	queue := ingest.NewQueue()
	writer := ingest.NewWriter(queue, store.NewQuestDBSender(cfg.QuestDB.ILP), ingest.WriterConfig{
		Watermark:     cfg.Ingest.Watermark,
		FlushInterval: cfg.Ingest.FlushInterval(),
		PollWait:      cfg.Ingest.PollWait(),
	})
	writer.Start()
	defer writer.Close()

	loc := cfg.Stats.Location()
	chats := store.NewChatDAO(db)
	deps := &handlers.Deps{
		Users:           store.NewUserDAO(db),
		Chats:           chats,
		Reports:         stats.NewReporter(store.NewReportStore(db, loc), loc, cfg.Stats.WeeksBack),
		PerMessage:      cfg.Stats.PerMessage,
		KeyboardColumns: cfg.Stats.KeyboardColumns,
		ActionField:     cfg.Dispatch.ActionField,
	}
	registry, err := handlers.Register(dispatch.NewRegistryBuilder(), deps).Build()
	if err != nil {
		return fmt.Errorf("build handler registry: %w", err)
	}

	if err := client.SetCommands(ctx, registry.Commands()); err != nil {
		logger.WarnCF("main", "Failed to publish command menu", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	collector, err := stats.NewCollector(chats, client, queue, cfg.Stats.Cron)
	if err != nil {
		return err
	}

	lp := poller.NewLongPoller(client, cfg.Telegram.PollTimeout(), cfg.Telegram.PollMargin())
	dispatcher := dispatch.NewDispatcher(lp, dispatch.NewClassifier(cfg.Dispatch.ActionField), registry, &dispatch.Env{
		Notifier: client,
		Ingest:   queue,
		Registry: registry,
	})

	logger.InfoCF("main", "Bot started", map[string]interface{}{
		"username": client.Username(),
		"version":  formatVersion(),
		"commands": len(registry.Commands()),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		collector.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	err = g.Wait()

	logger.InfoCF("main", "Shutting down", map[string]interface{}{
		"queued_rows": queue.Len(),
	})
	return err
}
