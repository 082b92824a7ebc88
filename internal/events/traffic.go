package events

import "encoding/json"

// Event types published by the host.
const (
	TypeInbound  = "traffic.inbound"  // runtime to application
	TypeOutbound = "traffic.outbound" // application to runtime
	TypeResponse = "traffic.response" // reply for a tokened inbound message
	TypeMiss     = "traffic.miss"     // inbound message for an unregistered channel
	TypeLeak     = "handle.leak"      // response handle never answered
)

// Direction labels used in Traffic.Direction.
const (
	DirInbound  = "in"
	DirOutbound = "out"
	DirResponse = "reply"
)

// Traffic is the Data of every traffic.* and handle.* event.
type Traffic struct {
	Channel   string `json:"channel"`
	Direction string `json:"direction,omitempty"`
	Token     string `json:"token,omitempty"`
	Bytes     int    `json:"bytes"`
	// Payload is the raw message body; encoding/json writes it as base64.
	Payload []byte `json:"payload,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// PublishTraffic is Publish with a Traffic body. A nil hub is a no-op.
func (h *Hub) PublishTraffic(eventType string, t Traffic) {
	if h == nil {
		return
	}
	if t.Bytes == 0 {
		t.Bytes = len(t.Payload)
	}
	h.Publish(eventType, t)
}

// DecodeTraffic parses the Data of a traffic event.
func DecodeTraffic(ev Event) (Traffic, error) {
	var t Traffic
	err := json.Unmarshal(ev.Data, &t)
	return t, err
}
