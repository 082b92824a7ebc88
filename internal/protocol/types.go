package protocol

import "time"

// Version is the only frame protocol version understood.
const Version = 1

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Frame is a platform message carried over HTTP. Payload is base64 in JSON.
type Frame struct {
	Protocol int    `json:"protocol"`
	Channel  string `json:"channel"`
	Payload  []byte `json:"payload"`
	// Reply defaults to true when omitted.
	Reply *bool `json:"reply,omitempty"`
	// Codec is informational: it names the encoding the sender used.
	Codec string `json:"codec,omitempty"`
}

// Reply is the answer to a Frame.
type Reply struct {
	Status    string        `json:"status"` // ok | error
	Channel   string        `json:"channel"`
	Payload   []byte        `json:"payload,omitempty"`
	Replied   bool          `json:"replied"`
	Error     string        `json:"error,omitempty"`
	ElapsedMS int64         `json:"elapsed_ms"`
	Elapsed   time.Duration `json:"-"`
}

// ExpectsReply returns true unless the frame opts out with reply=false.
func (f *Frame) ExpectsReply() bool {
	if f.Reply == nil {
		return true
	}
	return *f.Reply
}
