package host

import (
	"sync"

	"github.com/mattjoyce/embedder/internal/events"
	"github.com/mattjoyce/embedder/internal/platform"
)

// observedEngine forwards to the real engine and mirrors traffic onto the hub.
type observedEngine struct {
	inner platform.Engine
	hub   *events.Hub

	// token -> channel for inbound messages still awaiting a reply
	pending sync.Map
}

func newObservedEngine(inner platform.Engine, hub *events.Hub) *observedEngine {
	return &observedEngine{inner: inner, hub: hub}
}

func (o *observedEngine) SendPlatformMessage(channel string, payload []byte) error {
	err := o.inner.SendPlatformMessage(channel, payload)
	o.hub.PublishTraffic(events.TypeOutbound, events.Traffic{
		Channel:   channel,
		Direction: events.DirOutbound,
		Payload:   payload,
		Reason:    errReason(err),
	})
	return err
}

func (o *observedEngine) SendPlatformMessageResponse(token platform.Token, payload []byte) error {
	err := o.inner.SendPlatformMessageResponse(token, payload)
	channel, _ := o.pending.LoadAndDelete(token)
	name, _ := channel.(string)
	o.hub.PublishTraffic(events.TypeResponse, events.Traffic{
		Channel:   name,
		Direction: events.DirResponse,
		Token:     string(token),
		Payload:   payload,
		Reason:    errReason(err),
	})
	return err
}

func (o *observedEngine) inbound(channel string, payload []byte, token platform.Token) {
	if token != "" {
		o.pending.Store(token, channel)
	}
	o.hub.PublishTraffic(events.TypeInbound, events.Traffic{
		Channel:   channel,
		Direction: events.DirInbound,
		Token:     string(token),
		Payload:   payload,
	})
}

func (o *observedEngine) miss(channel string, expectedReply bool) {
	reason := "no reply expected"
	if expectedReply {
		reason = "completed with empty payload"
	}
	o.hub.PublishTraffic(events.TypeMiss, events.Traffic{
		Channel:   channel,
		Direction: events.DirInbound,
		Reason:    reason,
	})
}

func (o *observedEngine) leak(l platform.Leak) {
	o.pending.Delete(l.Token)
	o.hub.PublishTraffic(events.TypeLeak, events.Traffic{
		Channel: l.Channel,
		Token:   string(l.Token),
		Reason:  string(l.Reason),
	})
}

func errReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
