package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mattjoyce/embedder/internal/codec"
	"github.com/mattjoyce/embedder/internal/platform"
)

// MethodChannel carries method calls. Inbound calls go to a
// MethodCallHandler and are answered with a success or error envelope.
type MethodChannel struct {
	core
	codec codec.MethodCodec

	hmu     sync.RWMutex
	handler Ref[MethodCallHandler]
}

// NewMethodChannel creates an unregistered method channel using mc on the wire.
func NewMethodChannel(name string, mc codec.MethodCodec, handler Ref[MethodCallHandler]) *MethodChannel {
	ch := &MethodChannel{codec: mc, handler: handler}
	ch.init(name)
	return ch
}

// NewJSONMethodChannel is NewMethodChannel with the JSON codec.
func NewJSONMethodChannel(name string, handler Ref[MethodCallHandler]) *MethodChannel {
	return NewMethodChannel(name, codec.JSON, handler)
}

// NewStandardMethodChannel is NewMethodChannel with the standard binary codec.
func NewStandardMethodChannel(name string, handler Ref[MethodCallHandler]) *MethodChannel {
	return NewMethodChannel(name, codec.Standard, handler)
}

func (c *MethodChannel) Kind() Kind                              { return KindMethod }
func (c *MethodChannel) CodecName() string                       { return c.codec.Name() }
func (c *MethodChannel) Codec() codec.MethodCodec                { return c.codec }
func (c *MethodChannel) AsMethodChannel() (*MethodChannel, bool) { return c, true }

// SetHandler rebinds the handler without re-registering the channel.
func (c *MethodChannel) SetHandler(handler Ref[MethodCallHandler]) {
	c.hmu.Lock()
	c.handler = handler
	c.hmu.Unlock()
}

func (c *MethodChannel) resolve() (MethodCallHandler, bool) {
	c.hmu.RLock()
	ref := c.handler
	c.hmu.RUnlock()
	return ref.Get()
}

// InvokeMethod sends a method call toward the runtime. No reply is expected.
func (c *MethodChannel) InvokeMethod(method string, args codec.Value) error {
	payload, err := c.codec.EncodeMethodCall(codec.MethodCall{Method: method, Args: args})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	return c.SendBuffer(payload)
}

// SendSuccessEvent pushes v as an unsolicited success envelope.
func (c *MethodChannel) SendSuccessEvent(v codec.Value) error {
	payload, err := c.codec.EncodeSuccessEnvelope(v)
	if err != nil {
		return err
	}
	return c.SendBuffer(payload)
}

// SendErrorEvent pushes an unsolicited error envelope.
func (c *MethodChannel) SendErrorEvent(code, message string, details codec.Value) error {
	payload, err := c.codec.EncodeErrorEnvelope(code, message, details)
	if err != nil {
		return err
	}
	return c.SendBuffer(payload)
}

func (c *MethodChannel) HandlePlatformMessage(rt Runtime, msg *platform.Message) {
	c.checkRoute(msg)
	h := msg.TakeHandle()

	if _, ok := c.resolve(); !ok {
		c.logger.Warn("handler gone, answering channel closed")
		if h != nil {
			payload, err := c.codec.EncodeErrorEnvelope(CodeChannelClosed, ErrChannelClosed.Error(), codec.Null())
			if err != nil {
				c.logger.Error("encode reply failed", "error", err)
			}
			c.respondNow(rt, h, payload)
		}
		return
	}
	serve[codec.MethodResult](&c.core, methodDiscipline{c}, rt, msg.Payload, h)
}

type methodDiscipline struct{ c *MethodChannel }

func (d methodDiscipline) work(ctx context.Context, rt Runtime, payload []byte) (codec.MethodResult, bool) {
	call, err := d.c.codec.DecodeMethodCall(payload)
	if err != nil {
		d.c.logger.Error("decode method call failed", "error", err)
		return codec.MethodResult{}, false
	}
	logger := d.c.logger.With("method", call.Method)

	handler, ok := d.c.resolve()
	if !ok {
		logger.Warn("handler gone, answering channel closed")
		return codec.MethodResult{Err: toEnvelope(ErrChannelClosed)}, true
	}
	v, err := handler.OnMethodCall(ctx, rt, call)
	if err != nil {
		env := toEnvelope(err)
		switch {
		case errors.Is(err, ErrNotImplemented):
			logger.Debug("method not implemented")
		case errors.Is(err, ErrChannelClosed):
			logger.Warn("handler gone, answering channel closed")
		default:
			logger.Error("method handler failed", "error", err, "code", env.Code)
		}
		return codec.MethodResult{Err: env}, true
	}
	return codec.Success(v), true
}

func (methodDiscipline) recovered(p any) codec.MethodResult {
	return codec.Failure(CodeInternal, fmt.Sprintf("handler panicked: %v", p), codec.Null())
}

func (d methodDiscipline) encode(r codec.MethodResult) ([]byte, error) {
	return codec.EncodeResult(d.c.codec, r)
}
