package api

import "github.com/mattjoyce/embedder/internal/host"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string     `json:"status"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	ConfigDigest  string     `json:"config_digest,omitempty"`
	Host          host.Stats `json:"host"`
	Subscribers   int        `json:"event_subscribers"`
	DroppedEvents int64      `json:"dropped_events"`
}

// ChannelInfo describes one registered channel.
type ChannelInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// ChannelsResponse is returned by GET /channels.
type ChannelsResponse struct {
	Channels []ChannelInfo `json:"channels"`
}

// AcceptedResponse is returned for fire-and-forget sends.
type AcceptedResponse struct {
	Status  string `json:"status"`
	Channel string `json:"channel"`
}
