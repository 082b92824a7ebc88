// Package hosttest runs a real host against an in-process bridge for tests.
package hosttest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mattjoyce/embedder/internal/config"
	"github.com/mattjoyce/embedder/internal/engine"
	"github.com/mattjoyce/embedder/internal/events"
	"github.com/mattjoyce/embedder/internal/host"
)

// Sent is one outbound message captured from the bridge.
type Sent struct {
	Channel string
	Payload []byte
}

// Env is a running host. Stop is registered with t.Cleanup.
type Env struct {
	Host   *host.Host
	Bridge *engine.Bridge
	Hub    *events.Hub

	cancel context.CancelFunc
	done   chan error

	mu   sync.Mutex
	sent []Sent
}

// Start builds a host with a fast tick, lets setup register channels and
// runs the loop until the test ends.
func Start(t *testing.T, setup func(h *host.Host)) *Env {
	t.Helper()

	cfg := config.Defaults()
	cfg.Service.TickInterval = time.Millisecond
	cfg.Service.DispatchTimeout = 0
	cfg.Dispatch.Workers = 4

	bridge := engine.NewBridge()
	hub := events.NewHub(1024)
	h := host.New(cfg, bridge, host.WithHub(hub))
	bridge.Attach(h)

	env := &Env{Host: h, Bridge: bridge, Hub: hub, done: make(chan error, 1)}
	bridge.OnOutbound(func(channel string, payload []byte) {
		env.mu.Lock()
		env.sent = append(env.sent, Sent{Channel: channel, Payload: append([]byte(nil), payload...)})
		env.mu.Unlock()
	})
	if setup != nil {
		setup(h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	env.cancel = cancel
	go func() { env.done <- h.Run(ctx) }()
	t.Cleanup(func() { env.Stop(t) })
	return env
}

// Call injects payload on channel and returns the reply.
func (e *Env) Call(t *testing.T, channel string, payload []byte) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := e.Bridge.Call(ctx, channel, payload)
	if err != nil {
		t.Fatalf("call %s: %v", channel, err)
	}
	return out
}

// Sent returns the outbound messages captured so far.
func (e *Env) Sent() []Sent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Sent(nil), e.sent...)
}

// WaitSent blocks until at least n outbound messages were captured.
func (e *Env) WaitSent(t *testing.T, n int) []Sent {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sent := e.Sent(); len(sent) >= n {
			return sent
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d outbound messages, got %d", n, len(e.Sent()))
	return nil
}

// Stop ends the loop and shuts the host down. Safe to call twice.
func (e *Env) Stop(t *testing.T) {
	t.Helper()
	if e.cancel == nil {
		return
	}
	e.cancel()
	e.cancel = nil
	if err := <-e.done; err != nil {
		t.Errorf("host run: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Host.Shutdown(ctx); err != nil {
		t.Errorf("host shutdown: %v", err)
	}
	e.Bridge.Detach()
}
