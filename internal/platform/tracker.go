package platform

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/embedder/internal/log"
)

// LeakReason says how an unconsumed handle was detected.
type LeakReason string

const (
	LeakDropped   LeakReason = "dropped"
	LeakCollected LeakReason = "collected"
	LeakShutdown  LeakReason = "shutdown"
)

// Leak describes a response handle that was never answered.
type Leak struct {
	Channel string
	Token   Token
	Reason  LeakReason
}

// Stats is a point-in-time view of handle accounting.
type Stats struct {
	Issued   int64 `json:"issued"`
	Consumed int64 `json:"consumed"`
	Leaked   int64 `json:"leaked"`
	Open     int   `json:"open"`
}

// Tracker issues response handles and accounts for how each one ends.
// Every issued handle ends up counted exactly once as consumed or leaked.
type Tracker struct {
	logger *slog.Logger

	nextID   atomic.Uint64
	issued   atomic.Int64
	consumed atomic.Int64
	leaked   atomic.Int64

	mu      sync.Mutex
	open    map[uint64]*handleState
	leakFns []func(Leak)
}

// NewTracker creates a tracker. A nil logger uses the platform component logger.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = log.WithComponent("platform")
	}
	return &Tracker{
		logger: logger,
		open:   make(map[uint64]*handleState),
	}
}

// Issue wraps token in a new open handle for a call that arrived on channel.
func (t *Tracker) Issue(channel string, token Token) *ResponseHandle {
	st := &handleState{
		id:      t.nextID.Add(1),
		token:   token,
		channel: channel,
		tracker: t,
	}
	t.mu.Lock()
	t.open[st.id] = st
	t.mu.Unlock()
	t.issued.Add(1)

	h := &ResponseHandle{state: st}
	h.cleanup = runtime.AddCleanup(h, func(s *handleState) {
		if s.transition(stateLeaked) {
			s.tracker.leak(s, LeakCollected)
		}
	}, st)
	return h
}

// OnLeak registers fn to be called for every leaked handle.
func (t *Tracker) OnLeak(fn func(Leak)) {
	t.mu.Lock()
	t.leakFns = append(t.leakFns, fn)
	t.mu.Unlock()
}

// Stats returns current counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	open := len(t.open)
	t.mu.Unlock()
	return Stats{
		Issued:   t.issued.Load(),
		Consumed: t.consumed.Load(),
		Leaked:   t.leaked.Load(),
		Open:     open,
	}
}

// ReportOutstanding marks every open handle as leaked and returns how many
// there were. Used at shutdown, when no reply can arrive anymore.
func (t *Tracker) ReportOutstanding() int {
	t.mu.Lock()
	pending := make([]*handleState, 0, len(t.open))
	for _, st := range t.open {
		pending = append(pending, st)
	}
	t.mu.Unlock()

	n := 0
	for _, st := range pending {
		if st.transition(stateLeaked) {
			t.leak(st, LeakShutdown)
			n++
		}
	}
	return n
}

func (t *Tracker) consume(st *handleState) {
	t.mu.Lock()
	delete(t.open, st.id)
	t.mu.Unlock()
	t.consumed.Add(1)
}

func (t *Tracker) leak(st *handleState, reason LeakReason) {
	t.mu.Lock()
	delete(t.open, st.id)
	fns := append([]func(Leak){}, t.leakFns...)
	t.mu.Unlock()
	t.leaked.Add(1)

	t.logger.Error("response handle leaked",
		"channel", st.channel,
		"token", string(st.token),
		"reason", string(reason),
	)
	l := Leak{Channel: st.channel, Token: st.token, Reason: reason}
	for _, fn := range fns {
		fn(l)
	}
}
