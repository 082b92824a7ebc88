package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ChannelSummary aggregates one channel's traffic.
type ChannelSummary struct {
	Channel   string    `json:"channel"`
	Inbound   int64     `json:"inbound"`
	Outbound  int64     `json:"outbound"`
	Responses int64     `json:"responses"`
	Misses    int64     `json:"misses"`
	Leaks     int64     `json:"leaks"`
	BytesIn   int64     `json:"bytes_in"`
	BytesOut  int64     `json:"bytes_out"`
	FirstAt   time.Time `json:"first_at"`
	LastAt    time.Time `json:"last_at"`
}

// Session is one host run.
type Session struct {
	ID           string     `json:"id"`
	Service      string     `json:"service"`
	ConfigDigest string     `json:"config_digest,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	StoppedAt    *time.Time `json:"stopped_at,omitempty"`
}

// Row is one stored traffic entry.
type Row struct {
	Seq       int64     `json:"seq"`
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
	Channel   string    `json:"channel"`
	Direction string    `json:"direction,omitempty"`
	Token     string    `json:"token,omitempty"`
	Bytes     int64     `json:"bytes"`
	Digest    string    `json:"digest,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Summary aggregates traffic per channel, ordered by channel name. An empty
// sessionID covers every session.
func Summary(ctx context.Context, db *sql.DB, sessionID string) ([]ChannelSummary, error) {
	rows, err := db.QueryContext(ctx, `
SELECT channel,
       SUM(kind = 'inbound'),
       SUM(kind = 'outbound'),
       SUM(kind = 'response'),
       SUM(kind = 'miss'),
       SUM(kind = 'leak'),
       COALESCE(SUM(CASE WHEN kind = 'inbound' THEN bytes END), 0),
       COALESCE(SUM(CASE WHEN kind IN ('outbound', 'response') THEN bytes END), 0),
       MIN(at),
       MAX(at)
FROM traffic
WHERE (? = '' OR session_id = ?)
GROUP BY channel
ORDER BY channel;`, sessionID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []ChannelSummary
	for rows.Next() {
		var s ChannelSummary
		var first, last string
		if err := rows.Scan(&s.Channel, &s.Inbound, &s.Outbound, &s.Responses, &s.Misses, &s.Leaks,
			&s.BytesIn, &s.BytesOut, &first, &last); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.FirstAt = parseTime(first)
		s.LastAt = parseTime(last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Recent returns the newest limit rows, newest first.
func Recent(ctx context.Context, db *sql.DB, sessionID string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
SELECT seq, at, kind, channel, direction, token, bytes, digest, detail
FROM traffic
WHERE (? = '' OR session_id = ?)
ORDER BY at DESC, seq DESC
LIMIT ?;`, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var at string
		var direction, token, digest, detail sql.NullString
		if err := rows.Scan(&r.Seq, &at, &r.Kind, &r.Channel, &direction, &token, &r.Bytes, &digest, &detail); err != nil {
			return nil, fmt.Errorf("scan recent: %w", err)
		}
		r.At = parseTime(at)
		r.Direction, r.Token, r.Digest, r.Detail = direction.String, token.String, digest.String, detail.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Sessions lists runs, newest first.
func Sessions(ctx context.Context, db *sql.DB) ([]Session, error) {
	rows, err := db.QueryContext(ctx, `
SELECT id, service, config_digest, started_at, stopped_at
FROM sessions
ORDER BY started_at DESC;`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var started string
		var digest, stopped sql.NullString
		if err := rows.Scan(&s.ID, &s.Service, &digest, &started, &stopped); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.ConfigDigest = digest.String
		s.StartedAt = parseTime(started)
		if stopped.Valid {
			t := parseTime(stopped.String)
			s.StoppedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
