// Package engine provides Bridge, an in-process platform engine. It stands in
// for an embedded runtime: callers inject messages and wait for replies, and
// outbound messages from channels are handed to registered listeners.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mattjoyce/embedder/internal/log"
	"github.com/mattjoyce/embedder/internal/platform"
)

var (
	// ErrUnknownToken is returned when a response names no pending call.
	ErrUnknownToken = errors.New("engine: unknown response token")
	// ErrNotAttached is returned by Call and Notify before Attach or after
	// Detach, and by calls still waiting when Detach runs.
	ErrNotAttached = errors.New("engine: no host attached")
)

// Submitter queues an inbound message onto a host's polling goroutine.
type Submitter interface {
	Submit(channel string, payload []byte, token platform.Token) error
}

// OutboundFunc receives messages channels send to the runtime.
type OutboundFunc func(channel string, payload []byte)

// Bridge implements platform.Engine.
type Bridge struct {
	logger *slog.Logger

	mu        sync.Mutex
	host      Submitter
	pending   map[platform.Token]chan []byte
	listeners []OutboundFunc
	sent      int64
	replied   int64
}

// NewBridge returns an unattached bridge.
func NewBridge() *Bridge {
	return &Bridge{
		logger:  log.WithComponent("engine"),
		pending: make(map[platform.Token]chan []byte),
	}
}

// Attach sets the host that receives injected messages.
func (b *Bridge) Attach(s Submitter) {
	b.mu.Lock()
	b.host = s
	b.mu.Unlock()
}

// Detach drops the host and fails every call still waiting for a reply.
// It returns the number of calls failed.
func (b *Bridge) Detach() int {
	b.mu.Lock()
	b.host = nil
	pending := b.pending
	b.pending = make(map[platform.Token]chan []byte)
	b.mu.Unlock()

	for _, reply := range pending {
		close(reply)
	}
	if len(pending) > 0 {
		b.logger.Warn("bridge detached with calls pending", "pending", len(pending))
	}
	return len(pending)
}

// OnOutbound registers fn for every SendPlatformMessage.
func (b *Bridge) OnOutbound(fn OutboundFunc) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Call injects payload on channel and waits for the reply.
// An empty reply is returned as nil with a nil error.
func (b *Bridge) Call(ctx context.Context, channel string, payload []byte) ([]byte, error) {
	token := platform.Token(uuid.NewString())
	reply := make(chan []byte, 1)

	b.mu.Lock()
	host := b.host
	if host == nil {
		b.mu.Unlock()
		return nil, ErrNotAttached
	}
	b.pending[token] = reply
	b.mu.Unlock()

	if err := host.Submit(channel, payload, token); err != nil {
		b.forget(token)
		return nil, fmt.Errorf("submit %s: %w", channel, err)
	}

	select {
	case out, ok := <-reply:
		if !ok {
			return nil, ErrNotAttached
		}
		return out, nil
	case <-ctx.Done():
		b.forget(token)
		b.logger.Warn("call abandoned before reply", "channel", channel, "token", string(token))
		return nil, ctx.Err()
	}
}

// Notify injects payload on channel without expecting a reply.
func (b *Bridge) Notify(channel string, payload []byte) error {
	b.mu.Lock()
	host := b.host
	b.mu.Unlock()
	if host == nil {
		return ErrNotAttached
	}
	return host.Submit(channel, payload, "")
}

// SendPlatformMessage hands payload to every outbound listener.
func (b *Bridge) SendPlatformMessage(channel string, payload []byte) error {
	b.mu.Lock()
	listeners := append([]OutboundFunc{}, b.listeners...)
	b.sent++
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(channel, payload)
	}
	return nil
}

// SendPlatformMessageResponse completes the Call waiting on token.
func (b *Bridge) SendPlatformMessageResponse(token platform.Token, payload []byte) error {
	b.mu.Lock()
	reply, ok := b.pending[token]
	delete(b.pending, token)
	if ok {
		b.replied++
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	reply <- append([]byte(nil), payload...)
	return nil
}

// Pending reports calls still waiting for a reply.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Counts reports outbound messages sent and replies delivered.
func (b *Bridge) Counts() (sent, replied int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent, b.replied
}

func (b *Bridge) forget(token platform.Token) {
	b.mu.Lock()
	delete(b.pending, token)
	b.mu.Unlock()
}
