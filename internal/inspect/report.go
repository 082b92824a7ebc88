package inspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/embedder/internal/journal"
)

// DefaultRecent is how many traffic rows a report lists when no limit is given.
const DefaultRecent = 20

// Report is the structured JSON representation of a traffic report.
type Report struct {
	Session  string                   `json:"session,omitempty"`
	Sessions []journal.Session        `json:"sessions"`
	Channels []journal.ChannelSummary `json:"channels"`
	Totals   Totals                   `json:"totals"`
	Recent   []journal.Row            `json:"recent"`
}

// Totals sums the channel aggregates.
type Totals struct {
	Messages int64 `json:"messages"`
	Misses   int64 `json:"misses"`
	Leaks    int64 `json:"leaks"`
	BytesIn  int64 `json:"bytes_in"`
	BytesOut int64 `json:"bytes_out"`
}

// Options narrows a report. An empty Session covers every session.
type Options struct {
	Session string
	Recent  int
}

// BuildReport renders a terminal-friendly traffic report.
func BuildReport(ctx context.Context, db *sql.DB, opts Options) (string, error) {
	report, err := gatherReportData(ctx, db, opts)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Traffic Report\n")
	fmt.Fprintf(&out, "Session     : %s\n", renderUnset(report.Session, "<all>"))
	fmt.Fprintf(&out, "Sessions    : %d\n", len(report.Sessions))
	fmt.Fprintf(&out, "Messages    : %d\n", report.Totals.Messages)
	fmt.Fprintf(&out, "Misses      : %d\n", report.Totals.Misses)
	fmt.Fprintf(&out, "Leaks       : %d\n", report.Totals.Leaks)
	fmt.Fprintf(&out, "Bytes       : %d in / %d out\n", report.Totals.BytesIn, report.Totals.BytesOut)
	fmt.Fprintf(&out, "\n")

	for _, s := range report.Sessions {
		stopped := "<running>"
		if s.StoppedAt != nil {
			stopped = formatTime(*s.StoppedAt)
		}
		fmt.Fprintf(&out, "session %s (%s)\n", s.ID, s.Service)
		fmt.Fprintf(&out, "    started : %s\n", formatTime(s.StartedAt))
		fmt.Fprintf(&out, "    stopped : %s\n", stopped)
		fmt.Fprintf(&out, "    config  : %s\n", renderUnset(shortDigest(s.ConfigDigest), "<defaults>"))
	}
	if len(report.Sessions) > 0 {
		fmt.Fprintf(&out, "\n")
	}

	if len(report.Channels) == 0 {
		fmt.Fprintf(&out, "No traffic recorded.\n")
		return out.String(), nil
	}

	fmt.Fprintf(&out, "%-24s %6s %6s %6s %5s %5s %10s %10s\n", "CHANNEL", "IN", "OUT", "REPLY", "MISS", "LEAK", "BYTES IN", "BYTES OUT")
	for _, c := range report.Channels {
		fmt.Fprintf(&out, "%-24s %6d %6d %6d %5d %5d %10d %10d\n",
			c.Channel, c.Inbound, c.Outbound, c.Responses, c.Misses, c.Leaks, c.BytesIn, c.BytesOut)
	}
	fmt.Fprintf(&out, "\n")

	fmt.Fprintf(&out, "Recent traffic\n")
	for _, r := range report.Recent {
		fmt.Fprintf(&out, "[%d] %s %-8s %s", r.Seq, formatTime(r.At), r.Kind, r.Channel)
		if r.Token != "" {
			fmt.Fprintf(&out, " token=%s", r.Token)
		}
		fmt.Fprintf(&out, " bytes=%d", r.Bytes)
		if r.Digest != "" {
			fmt.Fprintf(&out, " blake3=%s", shortDigest(r.Digest))
		}
		if r.Detail != "" {
			fmt.Fprintf(&out, " detail=%q", r.Detail)
		}
		fmt.Fprintf(&out, "\n")
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON traffic report.
func BuildJSONReport(ctx context.Context, db *sql.DB, opts Options) (string, error) {
	report, err := gatherReportData(ctx, db, opts)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, db *sql.DB, opts Options) (*Report, error) {
	if opts.Recent <= 0 {
		opts.Recent = DefaultRecent
	}
	session := strings.TrimSpace(opts.Session)

	sessions, err := journal.Sessions(ctx, db)
	if err != nil {
		return nil, err
	}
	if session != "" {
		filtered := sessions[:0]
		for _, s := range sessions {
			if s.ID == session {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("session %q not found", session)
		}
		sessions = filtered
	}

	channels, err := journal.Summary(ctx, db, session)
	if err != nil {
		return nil, err
	}
	recent, err := journal.Recent(ctx, db, session, opts.Recent)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Session:  session,
		Sessions: nonNil(sessions),
		Channels: nonNil(channels),
		Recent:   nonNil(recent),
	}
	for _, c := range channels {
		report.Totals.Messages += c.Inbound + c.Outbound + c.Responses
		report.Totals.Misses += c.Misses
		report.Totals.Leaks += c.Leaks
		report.Totals.BytesIn += c.BytesIn
		report.Totals.BytesOut += c.BytesOut
	}
	return report, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "<unknown>"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func renderUnset(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
