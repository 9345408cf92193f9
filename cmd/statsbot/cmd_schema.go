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

func schemaCmd(args []string) {
	cfg, err := loadConfig(parseFlags("schema", args))
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.Connect(ctx, cfg.QuestDB.DSN)
	if err != nil {
		fmt.Printf("Error connecting to QuestDB: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.CreateSchema(ctx, db); err != nil {
		fmt.Printf("Error creating schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s Schema ready\n", logo)
}
