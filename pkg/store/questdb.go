// StatsBot - Telegram channel statistics bot
// License: MIT
//
// Copyright (c) 2026 StatsBot contributors

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	qdb "github.com/questdb/go-questdb-client/v3"

	"github.com/zhaopengme/statsbot/pkg/ingest"
	"github.com/zhaopengme/statsbot/pkg/logger"
)

var ErrInvalidRow = errors.New("invalid row")

// QuestDBSender implements ingest.Sender on top of a QuestDB line sender.
// The connection is opened on first use and dropped after a failed flush so
// the next write reconnects. Only the ingest writer goroutine may use it.
type QuestDBSender struct {
	conf   string
	sender qdb.LineSender
}

func NewQuestDBSender(conf string) *QuestDBSender {
	return &QuestDBSender{conf: senderConf(conf)}
}

// senderConf turns off the client's own auto-flush for HTTP transports
// unless the conf sets it. The ingest writer decides when to flush.
func senderConf(conf string) string {
	if !strings.HasPrefix(conf, "http::") && !strings.HasPrefix(conf, "https::") {
		return conf
	}
	if strings.Contains(conf, "auto_flush=") {
		return conf
	}
	if !strings.HasSuffix(conf, ";") {
		conf += ";"
	}
	return conf + "auto_flush=off;"
}

func (s *QuestDBSender) connect(ctx context.Context) error {
	if s.sender != nil {
		return nil
	}
	sender, err := qdb.LineSenderFromConf(ctx, s.conf)
	if err != nil {
		return fmt.Errorf("connect questdb: %w", err)
	}
	s.sender = sender
	logger.InfoC("store", "Line sender connected")
	return nil
}

// Write buffers one row. Rows are validated before anything reaches the
// sender's buffer so a bad row never leaves a half-written line behind.
func (s *QuestDBSender) Write(ctx context.Context, row ingest.Row, at time.Time) error {
	if err := validateRow(row); err != nil {
		return err
	}
	if err := s.connect(ctx); err != nil {
		return err
	}

	line := s.sender.Table(row.Table)
	for _, name := range sortedKeys(row.Symbols) {
		line = line.Symbol(name, row.Symbols[name])
	}
	for _, name := range sortedKeys(row.Columns) {
		switch v := row.Columns[name].(type) {
		case int:
			line = line.Int64Column(name, int64(v))
		case int64:
			line = line.Int64Column(name, v)
		case float64:
			line = line.Float64Column(name, v)
		case string:
			line = line.StringColumn(name, v)
		case bool:
			line = line.BoolColumn(name, v)
		case time.Time:
			line = line.TimestampColumn(name, v)
		}
	}
	if err := line.At(ctx, at); err != nil {
		return fmt.Errorf("buffer %s row: %w", row.Table, err)
	}
	return nil
}

func (s *QuestDBSender) Flush(ctx context.Context) error {
	if s.sender == nil {
		return nil
	}
	if err := s.sender.Flush(ctx); err != nil {
		s.reset(ctx)
		return fmt.Errorf("flush questdb: %w", err)
	}
	return nil
}

func (s *QuestDBSender) Close(ctx context.Context) error {
	if s.sender == nil {
		return nil
	}
	err := s.sender.Close(ctx)
	s.sender = nil
	return err
}

func (s *QuestDBSender) reset(ctx context.Context) {
	if err := s.sender.Close(ctx); err != nil {
		logger.DebugCF("store", "Closing broken line sender", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.sender = nil
}

func validateRow(row ingest.Row) error {
	if row.Table == "" {
		return fmt.Errorf("%w: empty table name", ErrInvalidRow)
	}
	if len(row.Symbols) == 0 && len(row.Columns) == 0 {
		return fmt.Errorf("%w: %s row has no values", ErrInvalidRow, row.Table)
	}
	for name, v := range row.Columns {
		switch v.(type) {
		case int, int64, float64, string, bool, time.Time:
		default:
			return fmt.Errorf("%w: %s.%s has unsupported type %T", ErrInvalidRow, row.Table, name, v)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
