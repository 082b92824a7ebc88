// Package journal persists channel traffic from the event hub into SQLite and
// answers summary queries over it. Payload bodies are not stored; each row
// keeps the size and a BLAKE3 digest instead.
package journal

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/embedder/internal/events"
	"github.com/mattjoyce/embedder/internal/log"
)

// Row kinds.
const (
	KindInbound  = "inbound"
	KindOutbound = "outbound"
	KindResponse = "response"
	KindMiss     = "miss"
	KindLeak     = "leak"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var kindByEvent = map[string]string{
	events.TypeInbound:  KindInbound,
	events.TypeOutbound: KindOutbound,
	events.TypeResponse: KindResponse,
	events.TypeMiss:     KindMiss,
	events.TypeLeak:     KindLeak,
}

// Digest returns the hex BLAKE3-256 of payload, or "" when it is empty.
func Digest(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// StartSession records a new host run and returns its id.
func StartSession(ctx context.Context, db *sql.DB, service, configDigest string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(timeLayout)
	_, err := db.ExecContext(ctx, `
INSERT INTO sessions (id, service, config_digest, started_at)
VALUES (?, ?, ?, ?);`, id, service, nullIfEmpty(configDigest), now)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// Recorder writes hub traffic events for one session.
type Recorder struct {
	db      *sql.DB
	session string
	logger  *slog.Logger

	mu     sync.Mutex
	cancel func()
	done   chan struct{}

	written atomic.Int64
	failed  atomic.Int64
}

func NewRecorder(db *sql.DB, sessionID string) *Recorder {
	return &Recorder{
		db:      db,
		session: sessionID,
		logger:  log.WithComponent("journal"),
	}
}

// Session returns the session id rows are written under.
func (r *Recorder) Session() string { return r.session }

// Start taps hub and records events until Stop. The tap is lossless, so a
// burst queues in memory rather than being dropped.
func (r *Recorder) Start(hub *events.Hub) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	tap, cancel := hub.Tap()
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	go func() {
		defer close(done)
		for {
			batch, ok := tap.Drain()
			if len(batch) > 0 {
				r.writeBatch(context.Background(), batch)
			}
			if !ok {
				return
			}
		}
	}()
	r.logger.Info("journal recording", "session", r.session)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Record writes one event. Event types outside traffic are ignored.
func (r *Recorder) Record(ctx context.Context, ev events.Event) error {
	stored, err := r.insert(ctx, r.db, ev)
	if stored {
		r.written.Add(1)
	}
	return err
}

// writeBatch stores events in one transaction. A row that fails is logged
// and counted; the rest of the batch still commits.
func (r *Recorder) writeBatch(ctx context.Context, batch []events.Event) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.failed.Add(int64(len(batch)))
		r.logger.Error("journal batch failed", "events", len(batch), "error", err)
		return
	}

	var stored int64
	for _, ev := range batch {
		ok, err := r.insert(ctx, tx, ev)
		if err != nil {
			r.failed.Add(1)
			r.logger.Error("journal write failed", "event_id", ev.ID, "type", ev.Type, "error", err)
			continue
		}
		if ok {
			stored++
		}
	}

	if err := tx.Commit(); err != nil {
		r.failed.Add(stored)
		r.logger.Error("journal commit failed", "events", len(batch), "error", err)
		return
	}
	r.written.Add(stored)
}

func (r *Recorder) insert(ctx context.Context, db execer, ev events.Event) (bool, error) {
	kind, ok := kindByEvent[ev.Type]
	if !ok {
		return false, nil
	}
	t, err := events.DecodeTraffic(ev)
	if err != nil {
		return false, fmt.Errorf("decode event %d: %w", ev.ID, err)
	}

	_, err = db.ExecContext(ctx, `
INSERT INTO traffic (id, session_id, seq, at, kind, channel, direction, token, bytes, digest, detail)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		uuid.NewString(),
		r.session,
		ev.ID,
		ev.At.UTC().Format(timeLayout),
		kind,
		t.Channel,
		nullIfEmpty(t.Direction),
		nullIfEmpty(t.Token),
		t.Bytes,
		nullIfEmpty(Digest(t.Payload)),
		nullIfEmpty(t.Reason),
	)
	if err != nil {
		return false, fmt.Errorf("insert traffic: %w", err)
	}
	return true, nil
}

// Stop unsubscribes, waits for pending writes and closes the session.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	now := time.Now().UTC().Format(timeLayout)
	if _, err := r.db.ExecContext(ctx, `UPDATE sessions SET stopped_at = ? WHERE id = ?;`, now, r.session); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	r.logger.Info("journal closed", "session", r.session, "written", r.written.Load(), "failed", r.failed.Load())
	return nil
}

// Written reports rows stored so far.
func (r *Recorder) Written() int64 { return r.written.Load() }

// Failed reports events that could not be stored.
func (r *Recorder) Failed() int64 { return r.failed.Load() }

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
