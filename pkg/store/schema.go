package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zhaopengme/statsbot/pkg/logger"
)

const (
	TableUsers           = "users"
	TableChats           = "chats"
	TableChannelMembers  = "channel_members"
	TableChannelForwards = "channel_forwards"
	TableBotUpdates      = "bot_updates"
)

// schema is applied statement by statement; QuestDB's PG endpoint runs one
// statement per query.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id LONG,
		username STRING,
		ts TIMESTAMP
	) TIMESTAMP(ts) PARTITION BY YEAR WAL`,

	`CREATE TABLE IF NOT EXISTS chats (
		chat_id LONG,
		title STRING,
		username STRING,
		added_by LONG,
		ts TIMESTAMP
	) TIMESTAMP(ts) PARTITION BY YEAR WAL`,

	`CREATE TABLE IF NOT EXISTS channel_members (
		chat_id SYMBOL,
		members LONG,
		ts TIMESTAMP
	) TIMESTAMP(ts) PARTITION BY DAY WAL`,

	`CREATE TABLE IF NOT EXISTS channel_forwards (
		chat_id SYMBOL,
		user_id LONG,
		message_id LONG,
		ts TIMESTAMP
	) TIMESTAMP(ts) PARTITION BY DAY WAL`,

	`CREATE TABLE IF NOT EXISTS bot_updates (
		key SYMBOL,
		outcome SYMBOL,
		update_id LONG,
		duration_ms DOUBLE,
		ts TIMESTAMP
	) TIMESTAMP(ts) PARTITION BY DAY WAL`,
}

// CreateSchema creates missing tables. Existing tables are left untouched.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	logger.InfoCF("store", "Schema ready", map[string]interface{}{
		"tables": len(schema),
	})
	return nil
}
