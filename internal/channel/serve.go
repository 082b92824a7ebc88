package channel

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/mattjoyce/embedder/internal/platform"
)

// discipline is the per-kind half of inbound handling. R is the handler
// outcome carried from the worker pool back to the polling goroutine.
type discipline[R any] interface {
	// work decodes payload and runs the handler. ok is false when no reply
	// envelope can be produced, in which case any handle is completed empty.
	work(ctx context.Context, rt Runtime, payload []byte) (result R, ok bool)
	// recovered turns a handler panic into an outcome.
	recovered(p any) R
	// encode produces the reply payload. Runs on the polling goroutine.
	encode(result R) ([]byte, error)
}

// serve hands payload to d on the worker pool and, when h is present,
// queues the encode-and-respond step back onto the polling goroutine.
func serve[R any, D discipline[R]](c *core, d D, rt Runtime, payload []byte, h *platform.ResponseHandle) {
	logger := c.logger
	name := c.name

	rt.Spawn(func() {
		result, ok := protect(c, d, rt, payload)
		if h == nil {
			return
		}
		rt.PostChannelTask(name, func(rt Runtime, ch Channel) {
			if ch == nil {
				logger.Warn("channel unregistered before reply, completing with empty payload",
					"token", string(h.Token()))
				c.respondNow(rt, h, nil)
				return
			}
			var reply []byte
			if ok {
				b, err := d.encode(result)
				if err != nil {
					logger.Error("encode reply failed", "error", err)
				} else {
					reply = b
				}
			}
			if err := ch.SendResponse(rt, h, reply); err != nil {
				logger.Error("send response failed", "error", err, "token", string(h.Token()))
			}
		})
	})
}

func protect[R any, D discipline[R]](c *core, d D, rt Runtime, payload []byte) (result R, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("handler panicked",
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
			result, ok = d.recovered(p), true
		}
	}()
	return d.work(rt.Context(), rt, payload)
}
