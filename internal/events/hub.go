package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one published hub entry. Data is a JSON document.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
type Hub struct {
	nextID  atomic.Int64
	dropped atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	taps      map[int]*Tap
	nextSubID int
}

// DefaultCapacity is the ring size used when NewHub is given zero.
const DefaultCapacity = 256

const subscriberBuffer = 128

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
		taps: make(map[int]*Tap),
	}
}

// Publish records an event and fans it out. data is marshalled to JSON;
// a value that fails to marshal is published as an empty object.
func (h *Hub) Publish(eventType string, data any) Event {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Slow subscribers lose events instead of blocking producers.
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	for _, t := range h.taps {
		t.push(ev)
	}
	return ev
}

// Subscribe returns a channel of future events and a cancel func that
// closes it. Cancel is idempotent.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Tap returns a lossless subscription and a cancel func that closes it.
// Publish never drops events for a tap; they queue until drained.
func (h *Hub) Tap() (*Tap, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	t := &Tap{ready: make(chan struct{}, 1)}
	h.taps[id] = t

	cancel := func() {
		h.mu.Lock()
		delete(h.taps, id)
		h.mu.Unlock()
		t.close()
	}
	return t, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribers reports the number of live subscriptions, taps included.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) + len(h.taps)
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if capacity == 0 {
		return
	}

	if h.size < capacity {
		idx := (h.start + h.size) % capacity
		h.ring[idx] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}

// Tap is an unbounded event queue fed by a Hub.
type Tap struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	ready  chan struct{}
}

func (t *Tap) push(ev Event) {
	t.mu.Lock()
	if !t.closed {
		t.queue = append(t.queue, ev)
	}
	t.mu.Unlock()
	t.signal()
}

func (t *Tap) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.signal()
}

func (t *Tap) signal() {
	select {
	case t.ready <- struct{}{}:
	default:
	}
}

// Drain blocks until events are queued or the tap is closed and returns
// everything queued, oldest first. ok is false once the tap is closed and
// empty.
func (t *Tap) Drain() (batch []Event, ok bool) {
	for {
		t.mu.Lock()
		batch, t.queue = t.queue, nil
		closed := t.closed
		t.mu.Unlock()

		if len(batch) > 0 {
			return batch, true
		}
		if closed {
			return nil, false
		}
		<-t.ready
	}
}

// Len reports events queued but not yet drained.
func (t *Tap) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}
