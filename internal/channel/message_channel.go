package channel

import (
	"context"
	"sync"

	"github.com/mattjoyce/embedder/internal/codec"
	"github.com/mattjoyce/embedder/internal/platform"
)

// MessageChannel exchanges single values. Inbound values go to a
// MessageHandler and its result is the reply.
type MessageChannel struct {
	core
	codec codec.MessageCodec

	hmu     sync.RWMutex
	handler Ref[MessageHandler]
}

// NewMessageChannel creates an unregistered message channel.
func NewMessageChannel(name string, c codec.MessageCodec, handler Ref[MessageHandler]) *MessageChannel {
	ch := &MessageChannel{codec: c, handler: handler}
	ch.init(name)
	return ch
}

func (c *MessageChannel) Kind() Kind                                { return KindMessage }
func (c *MessageChannel) CodecName() string                         { return c.codec.Name() }
func (c *MessageChannel) Codec() codec.MessageCodec                 { return c.codec }
func (c *MessageChannel) AsMessageChannel() (*MessageChannel, bool) { return c, true }

// SetHandler rebinds the handler without re-registering the channel.
func (c *MessageChannel) SetHandler(handler Ref[MessageHandler]) {
	c.hmu.Lock()
	c.handler = handler
	c.hmu.Unlock()
}

func (c *MessageChannel) resolve() (MessageHandler, bool) {
	c.hmu.RLock()
	ref := c.handler
	c.hmu.RUnlock()
	return ref.Get()
}

// Send encodes v and queues it for the runtime.
func (c *MessageChannel) Send(v codec.Value) error {
	payload, err := c.codec.EncodeMessage(v)
	if err != nil {
		return err
	}
	return c.SendBuffer(payload)
}

func (c *MessageChannel) HandlePlatformMessage(rt Runtime, msg *platform.Message) {
	c.checkRoute(msg)
	h := msg.TakeHandle()

	if _, ok := c.resolve(); !ok {
		c.logger.Warn("handler gone, message dropped", "bytes", len(msg.Payload))
		c.respondNow(rt, h, nil)
		return
	}
	serve[codec.Value](&c.core, messageDiscipline{c}, rt, msg.Payload, h)
}

type messageDiscipline struct{ c *MessageChannel }

func (d messageDiscipline) work(ctx context.Context, rt Runtime, payload []byte) (codec.Value, bool) {
	v, err := d.c.codec.DecodeMessage(payload)
	if err != nil {
		d.c.logger.Error("decode message failed", "error", err)
		return codec.Null(), false
	}
	handler, ok := d.c.resolve()
	if !ok {
		d.c.logger.Warn("handler gone, message dropped")
		return codec.Null(), false
	}
	reply, err := handler.OnMessage(ctx, rt, v)
	if err != nil {
		d.c.logger.Error("message handler failed", "error", err)
		return codec.Null(), true
	}
	return reply, true
}

func (messageDiscipline) recovered(any) codec.Value { return codec.Null() }

func (d messageDiscipline) encode(v codec.Value) ([]byte, error) {
	return d.c.codec.EncodeMessage(v)
}
