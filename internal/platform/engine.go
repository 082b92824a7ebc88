package platform

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_engine.go -package=mocks github.com/mattjoyce/embedder/internal/platform Engine,Flusher,EventSource

// Engine is the outbound half of the runtime boundary. Implementations are
// only called from the polling goroutine.
type Engine interface {
	// SendPlatformMessage delivers payload to the runtime on channel.
	SendPlatformMessage(channel string, payload []byte) error
	// SendPlatformMessageResponse answers a pending runtime call identified by token.
	SendPlatformMessageResponse(token Token, payload []byte) error
}

// Flusher is implemented by engines with internal work that must run on the
// polling goroutine once per tick.
type Flusher interface {
	Flush() error
}

// EventSource is implemented by transports with event sources to poll each
// tick. Poll must return within timeout.
type EventSource interface {
	Poll(ctx context.Context, timeout time.Duration) error
}

// Respond consumes h and sends payload as its reply.
// The handle is consumed even when the engine reports a send failure.
func Respond(e Engine, h *ResponseHandle, payload []byte) error {
	token, err := h.Take()
	if err != nil {
		return err
	}
	return e.SendPlatformMessageResponse(token, payload)
}
