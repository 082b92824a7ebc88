package builtin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/embedder/internal/channel"
	"github.com/mattjoyce/embedder/internal/codec"
	"github.com/mattjoyce/embedder/internal/log"
)

const HeartbeatChannel = "app/heartbeat"

// Heartbeat pushes 1, 2, 3, ... as success events on app/heartbeat every
// interval while a listener is attached. listen may pass an Int to override
// the interval in milliseconds.
type Heartbeat struct {
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	stop    context.CancelFunc
	done    chan struct{}
	channel channel.WeakHandle[*channel.EventChannel]
}

func NewHeartbeat(interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = time.Second
	}
	return &Heartbeat{interval: interval, logger: log.WithChannel(HeartbeatChannel)}
}

func (hb *Heartbeat) Register(reg *channel.Registry) channel.WeakHandle[*channel.EventChannel] {
	h := reg.RegisterEventChannel(HeartbeatChannel, channel.WeakEventHandler(hb))
	hb.mu.Lock()
	hb.channel = h
	hb.mu.Unlock()
	return h
}

func (hb *Heartbeat) OnListen(_ context.Context, rt channel.Runtime, args codec.Value) error {
	interval := hb.interval
	if ms, ok := args.AsInt(); ok {
		if ms < 1 {
			return channel.NewMethodCallError("invalid_interval", "interval must be at least 1ms", args)
		}
		interval = time.Duration(ms) * time.Millisecond
	}

	hb.mu.Lock()
	defer hb.mu.Unlock()
	hb.stopLocked()

	ctx, cancel := context.WithCancel(rt.Context())
	hb.stop = cancel
	hb.done = make(chan struct{})
	go hb.beat(ctx, interval, hb.channel, hb.done)
	hb.logger.Debug("heartbeat started", "interval", interval.String())
	return nil
}

func (hb *Heartbeat) OnCancel(context.Context, channel.Runtime) error {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	hb.stopLocked()
	return nil
}

// Stop ends the stream, if any, and waits for its goroutine.
func (hb *Heartbeat) Stop() {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	hb.stopLocked()
}

// Running reports whether a stream is active.
func (hb *Heartbeat) Running() bool {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	return hb.stop != nil
}

func (hb *Heartbeat) stopLocked() {
	if hb.stop == nil {
		return
	}
	hb.stop()
	<-hb.done
	hb.stop, hb.done = nil, nil
	hb.logger.Debug("heartbeat stopped")
}

func (hb *Heartbeat) beat(ctx context.Context, interval time.Duration, handle channel.WeakHandle[*channel.EventChannel], done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var n int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		ch, ok := handle.Get()
		if !ok {
			hb.logger.Debug("heartbeat channel gone")
			return
		}
		n++
		if err := ch.SendSuccessEvent(codec.Int(n)); err != nil {
			hb.logger.Error("heartbeat send failed", "error", err)
			return
		}
	}
}
