package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/embedder/internal/codec"
)

// Inbound method names accepted by an event channel.
const (
	MethodListen = "listen"
	MethodCancel = "cancel"
)

// EventChannel is a method channel that only accepts listen and cancel.
// Stream values travel outbound through SendSuccessEvent and SendErrorEvent.
// It always uses the standard codec.
type EventChannel struct {
	*MethodChannel

	hmu       sync.RWMutex
	handler   Ref[EventHandler]
	listening atomic.Bool
}

// NewEventChannel creates an unregistered event channel.
func NewEventChannel(name string, handler Ref[EventHandler]) *EventChannel {
	ec := &EventChannel{handler: handler}
	ec.MethodChannel = NewStandardMethodChannel(name, Strong[MethodCallHandler](eventAdapter{ec}))
	return ec
}

func (c *EventChannel) Kind() Kind                            { return KindEvent }
func (c *EventChannel) AsEventChannel() (*EventChannel, bool) { return c, true }

// SetHandler rebinds the event handler without re-registering the channel.
func (c *EventChannel) SetHandler(handler Ref[EventHandler]) {
	c.hmu.Lock()
	c.handler = handler
	c.hmu.Unlock()
}

// Listening reports whether a listen has been accepted and not cancelled.
func (c *EventChannel) Listening() bool { return c.listening.Load() }

func (c *EventChannel) resolveEvent() (EventHandler, bool) {
	c.hmu.RLock()
	ref := c.handler
	c.hmu.RUnlock()
	return ref.Get()
}

type eventAdapter struct{ c *EventChannel }

func (a eventAdapter) OnMethodCall(ctx context.Context, rt Runtime, call codec.MethodCall) (codec.Value, error) {
	switch call.Method {
	case MethodListen, MethodCancel:
	default:
		return codec.Null(), NotImplemented(call.Method)
	}

	handler, ok := a.c.resolveEvent()
	if !ok {
		return codec.Null(), ErrChannelClosed
	}
	if call.Method == MethodListen {
		if err := handler.OnListen(ctx, rt, call.Args); err != nil {
			return codec.Null(), err
		}
		a.c.listening.Store(true)
		return codec.Null(), nil
	}
	a.c.listening.Store(false)
	if err := handler.OnCancel(ctx, rt); err != nil {
		return codec.Null(), err
	}
	return codec.Null(), nil
}
