// Package store talks to QuestDB: rows go in over the InfluxDB line protocol,
// lookups and reports come back over the PostgreSQL wire protocol.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/zhaopengme/statsbot/pkg/logger"
)

// Connect opens a connection pool to QuestDB's PG endpoint and verifies
// connectivity.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	logger.InfoCF("store", "Database connected", map[string]interface{}{
		"dsn": redactDSN(dsn),
	})
	return db, nil
}

// redactDSN hides the password of a URL-style DSN.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		if len(dsn) > 24 {
			return dsn[:24] + "..."
		}
		return dsn
	}
	return u.Redacted()
}
