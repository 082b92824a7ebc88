// Package keyevent sends keyboard events to the runtime on app/keyevent.
package keyevent

import (
	"context"
	"fmt"
	"sync"

	"github.com/mattjoyce/embedder/internal/channel"
	"github.com/mattjoyce/embedder/internal/codec"
)

const ChannelName = "app/keyevent"

// Event types.
const (
	TypeKeyDown = "keydown"
	TypeKeyUp   = "keyup"
)

// Modifier bits carried in Event.Modifiers.
const (
	ModShift   = 1 << 0
	ModControl = 1 << 1
	ModAlt     = 1 << 2
	ModMeta    = 1 << 3
)

// Event is one key transition.
type Event struct {
	Type      string `json:"type"`
	Keymap    string `json:"keymap"`
	KeyCode   int64  `json:"keyCode"`
	ScanCode  int64  `json:"scanCode"`
	Modifiers int64  `json:"modifiers"`
	CodePoint int64  `json:"codePoint,omitempty"`
}

// Sender owns the outbound-only message channel. The runtime never
// calls in, so the channel carries a handler that answers Null.
type Sender struct {
	mu      sync.Mutex
	keymap  string
	channel channel.WeakHandle[*channel.MessageChannel]
}

// New returns a sender stamping keymap on every event.
func New(keymap string) *Sender {
	if keymap == "" {
		keymap = "linux"
	}
	return &Sender{keymap: keymap}
}

var ignore = channel.MessageHandlerFunc(func(_ context.Context, _ channel.Runtime, _ codec.Value) (codec.Value, error) {
	return codec.Null(), nil
})

// Register installs the channel on reg.
func (s *Sender) Register(reg *channel.Registry) {
	h := reg.RegisterMessageChannel(ChannelName, codec.JSON, channel.Strong[channel.MessageHandler](ignore))
	s.mu.Lock()
	s.channel = h
	s.mu.Unlock()
}

// Send queues ev for the runtime. Keymap defaults to the sender's.
func (s *Sender) Send(ev Event) error {
	if ev.Type != TypeKeyDown && ev.Type != TypeKeyUp {
		return fmt.Errorf("keyevent: unknown type %q", ev.Type)
	}

	s.mu.Lock()
	handle := s.channel
	if ev.Keymap == "" {
		ev.Keymap = s.keymap
	}
	s.mu.Unlock()

	ch, ok := handle.Get()
	if !ok {
		return fmt.Errorf("keyevent: %w", channel.ErrChannelClosed)
	}
	v, err := codec.ToValue(ev)
	if err != nil {
		return fmt.Errorf("keyevent: %w", err)
	}
	return ch.Send(v)
}

// Press sends a keydown followed by a keyup.
func (s *Sender) Press(keyCode, scanCode, modifiers int64, codePoint rune) error {
	ev := Event{KeyCode: keyCode, ScanCode: scanCode, Modifiers: modifiers, CodePoint: int64(codePoint)}
	ev.Type = TypeKeyDown
	if err := s.Send(ev); err != nil {
		return err
	}
	ev.Type = TypeKeyUp
	return s.Send(ev)
}
