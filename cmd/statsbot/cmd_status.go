// StatsBot - Telegram channel statistics bot
// License: MIT
//
// Copyright (c) 2026 StatsBot contributors

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/zhaopengme/statsbot/pkg/store"
)

func statusCmd(args []string) {
	opts := parseFlags("status", args)
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	fmt.Printf("%s statsbot Status\n", logo)
	fmt.Printf("Version: %s\n", formatVersion())
	build, _ := formatBuildInfo()
	if build != "" {
		fmt.Printf("Build: %s\n", build)
	}
	fmt.Println()

	if _, err := os.Stat(opts.configPath); err == nil {
		fmt.Println("Config:", opts.configPath, "✓")
	} else {
		fmt.Println("Config:", opts.configPath, "✗ (defaults and environment only)")
	}

	status := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "not set"
	}
	fmt.Println("Telegram token:", status(cfg.Telegram.Token != ""))
	fmt.Println("Collector cron:", cfg.Stats.Cron)
	fmt.Println("Timezone:", cfg.Stats.Location())

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Config check: ✗ %v\n", err)
	} else {
		fmt.Println("Config check: ✓")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := store.Connect(ctx, cfg.QuestDB.DSN)
	if err != nil {
		fmt.Printf("QuestDB: ✗ %v\n", err)
		return
	}
	defer db.Close()
	fmt.Println("QuestDB: ✓")

	chats, err := store.NewChatDAO(db).ListChats(ctx)
	if err != nil {
		fmt.Printf("Channels: ✗ %v\n", err)
		return
	}
	fmt.Printf("Channels: %d\n", len(chats))
}
