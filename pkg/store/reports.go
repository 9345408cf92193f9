package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DailyPoint is one calendar-day bucket of a per-channel series.
type DailyPoint struct {
	Day   time.Time
	Value int64
}

// ReportStore runs the aggregate queries behind /stats and channel reports.
// Days are aligned to the calendar of loc.
type ReportStore struct {
	db  *sql.DB
	loc *time.Location
}

func NewReportStore(db *sql.DB, loc *time.Location) *ReportStore {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportStore{db: db, loc: loc}
}

// DailyMembers returns the last member count seen on each day since since.
func (r *ReportStore) DailyMembers(ctx context.Context, chatID int64, since time.Time) ([]DailyPoint, error) {
	query := `SELECT ts, last(members) FROM channel_members
		WHERE chat_id = $1 AND ts >= $2
		SAMPLE BY 1d ALIGN TO CALENDAR TIME ZONE ` + r.zoneLiteral()
	return r.daily(ctx, "daily members", query, chatID, since)
}

// DailyForwards returns how many posts were forwarded to the bot per day.
func (r *ReportStore) DailyForwards(ctx context.Context, chatID int64, since time.Time) ([]DailyPoint, error) {
	query := `SELECT ts, count() FROM channel_forwards
		WHERE chat_id = $1 AND ts >= $2
		SAMPLE BY 1d ALIGN TO CALENDAR TIME ZONE ` + r.zoneLiteral()
	return r.daily(ctx, "daily forwards", query, chatID, since)
}

// LatestMembers returns the most recent member count per channel.
func (r *ReportStore) LatestMembers(ctx context.Context, since time.Time) (map[int64]int64, error) {
	return r.perChat(ctx, "latest members",
		`SELECT chat_id, last(members) FROM channel_members WHERE ts >= $1`, since)
}

// FirstMembers returns the earliest member count per channel since since.
func (r *ReportStore) FirstMembers(ctx context.Context, since time.Time) (map[int64]int64, error) {
	return r.perChat(ctx, "first members",
		`SELECT chat_id, first(members) FROM channel_members WHERE ts >= $1`, since)
}

// ForwardTotals counts forwarded posts per channel since since.
func (r *ReportStore) ForwardTotals(ctx context.Context, since time.Time) (map[int64]int64, error) {
	return r.perChat(ctx, "forward totals",
		`SELECT chat_id, count() FROM channel_forwards WHERE ts >= $1`, since)
}

func (r *ReportStore) daily(ctx context.Context, what, query string, chatID int64, since time.Time) ([]DailyPoint, error) {
	rows, err := r.db.QueryContext(ctx, query, strconv.FormatInt(chatID, 10), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("%s for %d: %w", what, chatID, err)
	}
	defer rows.Close()

	var points []DailyPoint
	for rows.Next() {
		var p DailyPoint
		if err := rows.Scan(&p.Day, &p.Value); err != nil {
			return nil, fmt.Errorf("%s for %d: %w", what, chatID, err)
		}
		p.Day = p.Day.In(r.loc)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s for %d: %w", what, chatID, err)
	}
	return points, nil
}

func (r *ReportStore) perChat(ctx context.Context, what, query string, since time.Time) (map[int64]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var (
			symbol string
			value  int64
		)
		if err := rows.Scan(&symbol, &value); err != nil {
			return nil, fmt.Errorf("%s: %w", what, err)
		}
		chatID, err := strconv.ParseInt(symbol, 10, 64)
		if err != nil {
			continue
		}
		out[chatID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return out, nil
}

func (r *ReportStore) zoneLiteral() string {
	return "'" + strings.ReplaceAll(r.loc.String(), "'", "''") + "'"
}
