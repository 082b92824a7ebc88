package platform

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
)

var (
	// ErrHandleConsumed is returned when a response handle is used a second time.
	ErrHandleConsumed = errors.New("response handle already consumed")
	// ErrNoResponseHandle is returned when a reply is attempted without a handle.
	ErrNoResponseHandle = errors.New("no response handle")
)

// Token is the transport's opaque correlation id for a pending runtime call.
type Token string

const (
	stateOpen int32 = iota
	stateConsumed
	stateLeaked
)

// ResponseHandle is a single-use reply capability. It is safe to create on
// one goroutine and consume on another, but must not be copied.
//
// A handle that is garbage collected while still open is reported as leaked
// through its Tracker.
type ResponseHandle struct {
	_       noCopy
	state   *handleState
	cleanup runtime.Cleanup
}

type handleState struct {
	id      uint64
	token   Token
	channel string
	status  atomic.Int32
	tracker *Tracker
}

func (s *handleState) transition(to int32) bool {
	return s.status.CompareAndSwap(stateOpen, to)
}

// Token returns the wrapped correlation token without consuming it.
func (h *ResponseHandle) Token() Token {
	if h == nil {
		return ""
	}
	return h.state.token
}

// Channel names the channel the pending call arrived on.
func (h *ResponseHandle) Channel() string {
	if h == nil {
		return ""
	}
	return h.state.channel
}

// Open reports whether the handle has not been consumed or leaked yet.
func (h *ResponseHandle) Open() bool {
	return h != nil && h.state.status.Load() == stateOpen
}

// Take consumes the handle and returns its token. Only the first call succeeds.
func (h *ResponseHandle) Take() (Token, error) {
	if h == nil {
		return "", ErrNoResponseHandle
	}
	if !h.state.transition(stateConsumed) {
		return "", fmt.Errorf("%w: channel %q token %q", ErrHandleConsumed, h.state.channel, h.state.token)
	}
	h.cleanup.Stop()
	h.state.tracker.consume(h.state)
	return h.state.token, nil
}

// Drop discards an open handle and reports it as leaked. Dropping a consumed
// handle does nothing.
func (h *ResponseHandle) Drop() {
	if h == nil {
		return
	}
	if h.state.transition(stateLeaked) {
		h.cleanup.Stop()
		h.state.tracker.leak(h.state, LeakDropped)
	}
}

func (h *ResponseHandle) String() string {
	if h == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s#%s", h.state.channel, h.state.token)
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
