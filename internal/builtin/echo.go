// Package builtin provides the diagnostic channels every host can carry:
// app/echo answers with its input and app/heartbeat streams a counter.
package builtin

import (
	"context"
	"sync/atomic"

	"github.com/mattjoyce/embedder/internal/channel"
	"github.com/mattjoyce/embedder/internal/codec"
)

const EchoChannel = "app/echo"

// Echo returns every message unchanged.
type Echo struct {
	codec codec.MessageCodec
	seen  atomic.Int64
}

func NewEcho(c codec.MessageCodec) *Echo {
	if c == nil {
		c = codec.Standard
	}
	return &Echo{codec: c}
}

func (e *Echo) OnMessage(_ context.Context, _ channel.Runtime, msg codec.Value) (codec.Value, error) {
	e.seen.Add(1)
	return msg, nil
}

// Seen reports how many messages were echoed.
func (e *Echo) Seen() int64 { return e.seen.Load() }

func (e *Echo) Register(reg *channel.Registry) channel.WeakHandle[*channel.MessageChannel] {
	return reg.RegisterMessageChannel(EchoChannel, e.codec, channel.WeakMessageHandler(e))
}
