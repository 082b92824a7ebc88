package channel

import (
	"context"
	"weak"

	"github.com/mattjoyce/embedder/internal/codec"
)

// MessageHandler answers single-value messages. A returned error is logged
// and the reply becomes Null.
type MessageHandler interface {
	OnMessage(ctx context.Context, rt Runtime, msg codec.Value) (codec.Value, error)
}

// MethodCallHandler answers method calls. Return ErrNotImplemented (or
// NotImplemented(name)) for unknown methods and *MethodCallError for domain
// failures.
type MethodCallHandler interface {
	OnMethodCall(ctx context.Context, rt Runtime, call codec.MethodCall) (codec.Value, error)
}

// EventHandler backs an event channel. After OnListen succeeds, values are
// pushed with EventChannel.SendSuccessEvent until OnCancel.
type EventHandler interface {
	OnListen(ctx context.Context, rt Runtime, args codec.Value) error
	OnCancel(ctx context.Context, rt Runtime) error
}

type MessageHandlerFunc func(ctx context.Context, rt Runtime, msg codec.Value) (codec.Value, error)

func (f MessageHandlerFunc) OnMessage(ctx context.Context, rt Runtime, msg codec.Value) (codec.Value, error) {
	return f(ctx, rt, msg)
}

type MethodCallHandlerFunc func(ctx context.Context, rt Runtime, call codec.MethodCall) (codec.Value, error)

func (f MethodCallHandlerFunc) OnMethodCall(ctx context.Context, rt Runtime, call codec.MethodCall) (codec.Value, error) {
	return f(ctx, rt, call)
}

// Ref is a possibly non-owning reference to a handler. The zero Ref never
// resolves, which channels treat as closed.
type Ref[H any] struct {
	resolve func() (H, bool)
}

// Get returns the handler if it is still alive.
func (r Ref[H]) Get() (H, bool) {
	if r.resolve == nil {
		var zero H
		return zero, false
	}
	return r.resolve()
}

// Strong keeps h alive for as long as the channel holds the reference.
func Strong[H any](h H) Ref[H] {
	return Ref[H]{resolve: func() (H, bool) { return h, true }}
}

func weakRef[H any, T any](p *T, as func(*T) H) Ref[H] {
	wp := weak.Make(p)
	return Ref[H]{resolve: func() (H, bool) {
		v := wp.Value()
		if v == nil {
			var zero H
			return zero, false
		}
		return as(v), true
	}}
}

// WeakMessageHandler references p without keeping it alive.
func WeakMessageHandler[T any, PT interface {
	*T
	MessageHandler
}](p PT) Ref[MessageHandler] {
	return weakRef((*T)(p), func(v *T) MessageHandler { return PT(v) })
}

// WeakMethodHandler references p without keeping it alive.
func WeakMethodHandler[T any, PT interface {
	*T
	MethodCallHandler
}](p PT) Ref[MethodCallHandler] {
	return weakRef((*T)(p), func(v *T) MethodCallHandler { return PT(v) })
}

// WeakEventHandler references p without keeping it alive.
func WeakEventHandler[T any, PT interface {
	*T
	EventHandler
}](p PT) Ref[EventHandler] {
	return weakRef((*T)(p), func(v *T) EventHandler { return PT(v) })
}
