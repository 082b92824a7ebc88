package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"weak"

	"github.com/mattjoyce/embedder/internal/channel"
	"github.com/mattjoyce/embedder/internal/config"
	"github.com/mattjoyce/embedder/internal/dispatch"
	"github.com/mattjoyce/embedder/internal/events"
	"github.com/mattjoyce/embedder/internal/log"
	"github.com/mattjoyce/embedder/internal/platform"
)

var (
	// ErrWrongThread is returned when a polling-goroutine operation is
	// called from another goroutine.
	ErrWrongThread = errors.New("host: called off the polling goroutine")
	// ErrShutdown is returned after Shutdown.
	ErrShutdown = errors.New("host: shut down")
	// ErrRunning is returned by Run when the loop is already running.
	ErrRunning = errors.New("host: already running")
)

// Option configures a Host.
type Option func(*Host)

// WithHub mirrors all channel traffic onto hub.
func WithHub(hub *events.Hub) Option {
	return func(h *Host) { h.hub = hub }
}

// Stats is a point-in-time view of the host.
type Stats struct {
	Ticks    int64              `json:"ticks"`
	Queued   int                `json:"queued"`
	Channels int                `json:"channels"`
	Pool     dispatch.PoolStats `json:"pool"`
	Handles  platform.Stats     `json:"handles"`
}

// Host is the runtime accessor: it owns the engine, the registry, the
// worker pool and the polling-goroutine task queue.
type Host struct {
	cfg    *config.Config
	logger *slog.Logger

	raw      platform.Engine
	engine   *observedEngine
	hub      *events.Hub
	registry *channel.Registry
	tracker  *platform.Tracker
	pool     *dispatch.Pool
	queue    *dispatch.Queue[func()]

	ctx    context.Context
	cancel context.CancelFunc

	owner   atomic.Int64
	running atomic.Bool
	closed  atomic.Bool
	ticks   atomic.Int64
}

// New builds a host around engine. A nil cfg means config.Defaults().
func New(cfg *config.Config, engine platform.Engine, opts ...Option) *Host {
	if cfg == nil {
		cfg = config.Defaults()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		cfg:      cfg,
		logger:   log.WithComponent("host"),
		raw:      engine,
		registry: channel.NewRegistry(),
		tracker:  platform.NewTracker(nil),
		pool:     dispatch.NewPool(cfg.Dispatch.Workers),
		queue:    dispatch.NewQueue[func()](),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.engine = newObservedEngine(engine, h.hub)
	h.tracker.OnLeak(h.engine.leak)
	h.registry.OnMiss(h.engine.miss)
	h.registry.SetRuntime(ref{p: weak.Make(h)})
	return h
}

// ref is the non-owning RuntimeRef handed to channels.
type ref struct{ p weak.Pointer[Host] }

func (r ref) Upgrade() (channel.Runtime, bool) {
	h := r.p.Value()
	if h == nil || h.closed.Load() {
		return nil, false
	}
	return h, true
}

func (h *Host) Context() context.Context    { return h.ctx }
func (h *Host) Registry() *channel.Registry { return h.registry }
func (h *Host) Tracker() *platform.Tracker  { return h.tracker }
func (h *Host) Hub() *events.Hub            { return h.hub }
func (h *Host) Config() *config.Config      { return h.cfg }

// Engine returns the engine as seen by channels. Polling goroutine only.
func (h *Host) Engine() platform.Engine { return h.engine }

// Spawn runs fn on the worker pool.
func (h *Host) Spawn(fn func()) {
	if err := h.pool.Go(fn); err != nil {
		h.logger.Warn("spawn rejected", "error", err)
	}
}

// PostChannelTask queues task for the polling goroutine.
func (h *Host) PostChannelTask(name string, task channel.ChannelTask) {
	h.queue.Push(func() {
		ch, _ := h.registry.Lookup(name)
		task(h, ch)
	})
}

// Post queues fn for the polling goroutine.
func (h *Host) Post(fn func()) {
	h.queue.Push(fn)
}

// Deliver routes an inbound message. A non-empty token means the runtime
// expects exactly one reply. Polling goroutine only.
func (h *Host) Deliver(name string, payload []byte, token platform.Token) error {
	if err := h.checkThread("Deliver"); err != nil {
		return err
	}
	if h.closed.Load() {
		return ErrShutdown
	}

	var handle *platform.ResponseHandle
	if token != "" {
		handle = h.tracker.Issue(name, token)
	}
	h.engine.inbound(name, payload, token)
	h.registry.Handle(h, platform.NewMessage(name, payload, handle))
	return nil
}

// Submit queues a Deliver. Safe from any goroutine.
func (h *Host) Submit(name string, payload []byte, token platform.Token) error {
	if h.closed.Load() {
		return ErrShutdown
	}
	h.queue.Push(func() {
		if err := h.Deliver(name, payload, token); err != nil {
			h.logger.Warn("queued delivery dropped", "channel", name, "error", err)
		}
	})
	return nil
}

// Tick runs one loop iteration: drain queued tasks, flush the engine, then
// poll the engine's event sources for up to service.dispatch_timeout.
func (h *Host) Tick(ctx context.Context) error {
	if err := h.checkThread("Tick"); err != nil {
		return err
	}
	h.drain()

	var errs []error
	if f, ok := h.raw.(platform.Flusher); ok {
		if err := f.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush: %w", err))
		}
	}
	if src, ok := h.raw.(platform.EventSource); ok {
		if err := src.Poll(ctx, h.cfg.Service.DispatchTimeout); err != nil {
			errs = append(errs, fmt.Errorf("poll: %w", err))
		}
	}
	h.ticks.Add(1)
	return errors.Join(errs...)
}

// Ticks reports how many ticks have completed.
func (h *Host) Ticks() int64 { return h.ticks.Load() }

// Stats returns current counters.
func (h *Host) Stats() Stats {
	return Stats{
		Ticks:    h.ticks.Load(),
		Queued:   h.queue.Len(),
		Channels: h.registry.Len(),
		Pool:     h.pool.Stats(),
		Handles:  h.tracker.Stats(),
	}
}

// Shutdown stops accepting work, waits for running handlers until ctx ends,
// drains the queue once more and reports outstanding handles as leaked.
// Call it after Run has returned, from the goroutine that will do the drain.
func (h *Host) Shutdown(ctx context.Context) error {
	if h.running.Load() {
		return ErrRunning
	}
	if err := h.checkThread("Shutdown"); err != nil {
		return err
	}
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	h.cancel()
	poolErr := h.pool.Close(ctx)
	drained := h.drain()
	leaked := h.tracker.ReportOutstanding()

	stats := h.tracker.Stats()
	h.logger.Info("host stopped",
		"ticks", h.ticks.Load(),
		"drained", drained,
		"leaked_at_shutdown", leaked,
		"issued", stats.Issued,
		"consumed", stats.Consumed,
		"leaked", stats.Leaked,
	)
	if poolErr != nil {
		return fmt.Errorf("waiting for handlers: %w", poolErr)
	}
	return nil
}

// drain runs every queued task on the calling goroutine.
func (h *Host) drain() int {
	return h.queue.Drain(func(fn func()) {
		defer func() {
			if p := recover(); p != nil {
				h.logger.Error("polling task panicked",
					"panic", fmt.Sprint(p),
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	})
}

// checkThread binds the polling goroutine on first use and rejects calls
// from any other goroutine afterwards.
func (h *Host) checkThread(op string) error {
	cur := goid()
	if h.owner.CompareAndSwap(0, cur) {
		return nil
	}
	if owner := h.owner.Load(); owner != cur {
		h.logger.Error("polling goroutine violation", "op", op, "owner", owner, "caller", cur)
		return ErrWrongThread
	}
	return nil
}
