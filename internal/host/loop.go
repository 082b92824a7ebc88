package host

import (
	"context"
	"runtime"
	"time"
)

// Run drives Tick until ctx ends, Shutdown is requested or service.max_ticks
// ticks have run. The calling goroutine becomes the polling goroutine and
// stays locked to its OS thread until Run returns.
func (h *Host) Run(ctx context.Context) error {
	if h.closed.Load() {
		return ErrShutdown
	}
	if !h.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer h.running.Store(false)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	h.owner.Store(goid())
	defer h.owner.Store(0)

	interval := h.cfg.Service.TickInterval
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	maxTicks := int64(h.cfg.Service.MaxTicks)

	h.logger.Info("host loop started",
		"tick_interval", interval.String(),
		"dispatch_timeout", h.cfg.Service.DispatchTimeout.String(),
		"max_ticks", maxTicks,
		"channels", h.registry.Names(),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := h.Tick(ctx); err != nil && ctx.Err() == nil {
			h.logger.Error("tick failed", "error", err)
		}
		if maxTicks > 0 && h.ticks.Load() >= maxTicks {
			h.logger.Info("host loop finished", "reason", "max_ticks", "ticks", h.ticks.Load())
			return nil
		}
		if reason, done := h.wait(ctx, ticker.C); done {
			h.logger.Info("host loop finished", "reason", reason, "ticks", h.ticks.Load())
			return nil
		}
	}
}

// wait blocks until the next tick, serving queued replies in the meantime.
func (h *Host) wait(ctx context.Context, tick <-chan time.Time) (string, bool) {
	for {
		select {
		case <-tick:
			return "", false
		case <-h.queue.Ready():
			h.drain()
		case <-ctx.Done():
			h.drain()
			return "context", true
		case <-h.ctx.Done():
			return "shutdown", true
		}
	}
}
