// Package channel implements named platform channels and the registry that
// routes inbound platform messages to them.
//
// Three disciplines exist: MessageChannel for single values, MethodChannel
// for RPC style calls, and EventChannel for server-pushed streams. Inbound
// messages are decoded and handled on the worker pool; the encoded reply is
// queued back onto the polling goroutine, which is the only place that talks
// to the engine.
//
// Replies are not ordered. Two calls on the same channel may be answered in
// either order, because handlers run concurrently and their replies are
// queued as they finish.
package channel

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattjoyce/embedder/internal/log"
	"github.com/mattjoyce/embedder/internal/platform"
)

// Kind identifies a channel discipline.
type Kind int

const (
	KindMessage Kind = iota
	KindMethod
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindMethod:
		return "method"
	case KindEvent:
		return "event"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Channel is the capability every discipline provides to the registry.
type Channel interface {
	Name() string
	Kind() Kind
	// CodecName names the codec used on the wire.
	CodecName() string
	// HandlePlatformMessage takes ownership of msg. Polling goroutine only.
	HandlePlatformMessage(rt Runtime, msg *platform.Message)
	// SendBuffer queues an already encoded outbound payload.
	SendBuffer(payload []byte) error
	// SendResponse consumes h with payload. Polling goroutine only.
	SendResponse(rt Runtime, h *platform.ResponseHandle, payload []byte) error
	AsMessageChannel() (*MessageChannel, bool)
	AsMethodChannel() (*MethodChannel, bool)
	AsEventChannel() (*EventChannel, bool)

	bind(ref RuntimeRef)
}

// core carries what every discipline shares: the immutable name, the
// non-owning runtime reference and the logger.
type core struct {
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	runtime RuntimeRef
}

func (c *core) init(name string) {
	c.name = name
	c.logger = log.WithChannel(name).With("component", "channel")
}

func (c *core) Name() string { return c.name }

func (c *core) bind(ref RuntimeRef) {
	c.mu.Lock()
	c.runtime = ref
	c.mu.Unlock()
}

func (c *core) upgrade() (Runtime, bool) {
	c.mu.RLock()
	ref := c.runtime
	c.mu.RUnlock()
	if ref == nil {
		return nil, false
	}
	return ref.Upgrade()
}

func (c *core) SendBuffer(payload []byte) error {
	rt, ok := c.upgrade()
	if !ok {
		c.logger.Debug("no runtime bound, outbound message dropped", "bytes", len(payload))
		return nil
	}
	name := c.name
	logger := c.logger
	rt.PostChannelTask(name, func(rt Runtime, _ Channel) {
		if err := rt.Engine().SendPlatformMessage(name, payload); err != nil {
			logger.Error("send platform message failed", "error", err)
		}
	})
	return nil
}

func (c *core) SendResponse(rt Runtime, h *platform.ResponseHandle, payload []byte) error {
	return platform.Respond(rt.Engine(), h, payload)
}

func (c *core) AsMessageChannel() (*MessageChannel, bool) { return nil, false }
func (c *core) AsMethodChannel() (*MethodChannel, bool)   { return nil, false }
func (c *core) AsEventChannel() (*EventChannel, bool)     { return nil, false }

// checkRoute enforces that the registry routed msg by exact name.
func (c *core) checkRoute(msg *platform.Message) {
	if msg.Channel != c.name {
		panic(fmt.Sprintf("channel: message for %q routed to channel %q", msg.Channel, c.name))
	}
}

// respondNow answers h with payload from the polling goroutine.
func (c *core) respondNow(rt Runtime, h *platform.ResponseHandle, payload []byte) {
	if h == nil {
		return
	}
	if err := platform.Respond(rt.Engine(), h, payload); err != nil {
		c.logger.Error("send response failed", "error", err, "token", string(h.Token()))
	}
}
