// Package platform holds the transport boundary types shared by channels,
// the host loop and engine implementations: inbound messages, single-use
// response handles and the Engine interface used to talk back to the runtime.
package platform

// Message is one platform message crossing the runtime boundary.
// The payload is owned by the message until a channel decodes it. Handle is
// nil when the sender does not expect a reply.
type Message struct {
	Channel string
	Payload []byte
	Handle  *ResponseHandle
}

// NewMessage builds an inbound message. h may be nil.
func NewMessage(channel string, payload []byte, h *ResponseHandle) *Message {
	return &Message{Channel: channel, Payload: payload, Handle: h}
}

// ExpectsReply reports whether the message still carries a response handle.
func (m *Message) ExpectsReply() bool {
	return m != nil && m.Handle != nil
}

// TakeHandle moves the response handle out of the message. Subsequent calls
// return nil.
func (m *Message) TakeHandle() *ResponseHandle {
	if m == nil {
		return nil
	}
	h := m.Handle
	m.Handle = nil
	return h
}
