package stats

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zhaopengme/statsbot/pkg/store"
)

const DefaultPerMessage = 15

const dayLayout = "Mon 02 Jan 2006"

// ReportSource is the read side of the store used for reports.
type ReportSource interface {
	DailyMembers(ctx context.Context, chatID int64, since time.Time) ([]store.DailyPoint, error)
	DailyForwards(ctx context.Context, chatID int64, since time.Time) ([]store.DailyPoint, error)
	LatestMembers(ctx context.Context, since time.Time) (map[int64]int64, error)
	FirstMembers(ctx context.Context, since time.Time) (map[int64]int64, error)
	ForwardTotals(ctx context.Context, since time.Time) (map[int64]int64, error)
}

// Reporter renders HTML report lines covering the last WeeksBack weeks.
type Reporter struct {
	src       ReportSource
	loc       *time.Location
	weeksBack int
	now       func() time.Time
}

func NewReporter(src ReportSource, loc *time.Location, weeksBack int) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	if weeksBack <= 0 {
		weeksBack = 1
	}
	return &Reporter{src: src, loc: loc, weeksBack: weeksBack, now: time.Now}
}

// Since is local midnight weeksBack weeks ago.
func (r *Reporter) Since() time.Time {
	now := r.now().In(r.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
	return midnight.AddDate(0, 0, -7*r.weeksBack)
}

type dayRow struct {
	day        time.Time
	members    int64
	hasMembers bool
	forwards   int64
}

// ChannelLines returns one entry per day with data, oldest first. An empty
// result means nothing has been collected for the channel yet.
func (r *Reporter) ChannelLines(ctx context.Context, chatID int64) ([]string, error) {
	since := r.Since()

	members, err := r.src.DailyMembers(ctx, chatID, since)
	if err != nil {
		return nil, err
	}
	forwards, err := r.src.DailyForwards(ctx, chatID, since)
	if err != nil {
		return nil, err
	}

	days := make(map[string]*dayRow)
	get := func(t time.Time) *dayRow {
		t = t.In(r.loc)
		key := t.Format(time.DateOnly)
		d, ok := days[key]
		if !ok {
			d = &dayRow{day: t}
			days[key] = d
		}
		return d
	}
	for _, p := range members {
		d := get(p.Day)
		d.members = p.Value
		d.hasMembers = true
	}
	for _, p := range forwards {
		get(p.Day).forwards = p.Value
	}

	ordered := make([]*dayRow, 0, len(days))
	for _, d := range days {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].day.Before(ordered[j].day) })

	lines := make([]string, 0, len(ordered))
	var (
		prev    int64
		hasPrev bool
	)
	for _, d := range ordered {
		var b strings.Builder
		fmt.Fprintf(&b, "<b>%s</b>\n", d.day.Format(dayLayout))
		if d.hasMembers {
			fmt.Fprintf(&b, "<code>%s</code> members", humanize.Comma(d.members))
			if hasPrev {
				fmt.Fprintf(&b, " (%s)", signed(d.members-prev))
			}
			b.WriteString("\n")
			prev, hasPrev = d.members, true
		}
		fmt.Fprintf(&b, "<code>%s</code> forwards\n", humanize.Comma(d.forwards))
		lines = append(lines, b.String())
	}
	return lines, nil
}

// SummaryLines returns one entry per chat with the latest member count, the
// change over the report window and the forward total.
func (r *Reporter) SummaryLines(ctx context.Context, chats []store.Chat) ([]string, error) {
	since := r.Since()

	latest, err := r.src.LatestMembers(ctx, since)
	if err != nil {
		return nil, err
	}
	first, err := r.src.FirstMembers(ctx, since)
	if err != nil {
		return nil, err
	}
	forwards, err := r.src.ForwardTotals(ctx, since)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(chats))
	for _, chat := range chats {
		var b strings.Builder
		fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(chatTitle(chat)))
		if n, ok := latest[chat.ChatID]; ok {
			fmt.Fprintf(&b, "<code>%s</code> members (%s since %s)\n",
				humanize.Comma(n), signed(n-first[chat.ChatID]), since.Format(dayLayout))
		} else {
			b.WriteString("<i>no member data yet</i>\n")
		}
		fmt.Fprintf(&b, "<code>%s</code> forwards\n", humanize.Comma(forwards[chat.ChatID]))
		lines = append(lines, b.String())
	}
	return lines, nil
}

// Batch joins lines into messages of at most perMessage entries each.
func Batch(lines []string, perMessage int) []string {
	if perMessage <= 0 {
		perMessage = DefaultPerMessage
	}
	var out []string
	for start := 0; start < len(lines); start += perMessage {
		end := min(start+perMessage, len(lines))
		out = append(out, strings.Join(lines[start:end], "\n"))
	}
	return out
}

func chatTitle(c store.Chat) string {
	switch {
	case c.Title != "":
		return c.Title
	case c.Username != "":
		return "@" + c.Username
	default:
		return fmt.Sprintf("%d", c.ChatID)
	}
}

func signed(n int64) string {
	if n > 0 {
		return "+" + humanize.Comma(n)
	}
	return humanize.Comma(n)
}
