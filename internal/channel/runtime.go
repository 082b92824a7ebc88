package channel

import (
	"context"

	"github.com/mattjoyce/embedder/internal/platform"
)

// Runtime is the accessor handed to channels, handlers and channel tasks.
//
// Engine may only be used from the polling goroutine, which in practice
// means inside a ChannelTask or HandlePlatformMessage. Spawn and
// PostChannelTask are safe from any goroutine.
type Runtime interface {
	// Context is cancelled when the host shuts down.
	Context() context.Context
	Engine() platform.Engine
	// Spawn runs fn on the worker pool.
	Spawn(fn func())
	// PostChannelTask queues task for the polling goroutine. The channel is
	// looked up by name when the task runs; ch is nil if it is gone by then.
	PostChannelTask(name string, task ChannelTask)
}

// ChannelTask is work that must run on the polling goroutine.
type ChannelTask func(rt Runtime, ch Channel)

// RuntimeRef is a non-owning reference to a Runtime.
type RuntimeRef interface {
	Upgrade() (Runtime, bool)
}

type strongRuntime struct{ rt Runtime }

func (s strongRuntime) Upgrade() (Runtime, bool) { return s.rt, s.rt != nil }

// StrongRuntime wraps rt in a RuntimeRef that always resolves.
func StrongRuntime(rt Runtime) RuntimeRef { return strongRuntime{rt: rt} }
