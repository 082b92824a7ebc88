package builtin

import (
	"fmt"

	"github.com/mattjoyce/embedder/internal/channel"
	"github.com/mattjoyce/embedder/internal/codec"
	"github.com/mattjoyce/embedder/internal/config"
	"github.com/mattjoyce/embedder/internal/keyevent"
	"github.com/mattjoyce/embedder/internal/textinput"
)

// Set holds the handlers of every enabled built-in channel. Channels only
// reference their handlers weakly, so the Set must stay reachable for as
// long as the channels should answer.
type Set struct {
	Echo      *Echo
	Heartbeat *Heartbeat
	TextInput *textinput.Manager
	KeyEvent  *keyevent.Sender
}

// Install registers the channels enabled in cfg.
func Install(reg *channel.Registry, cfg config.ChannelsConfig) (*Set, error) {
	s := &Set{}

	if cfg.Echo.Enabled {
		c, ok := codec.LookupMessage(cfg.Echo.Codec)
		if !ok {
			return nil, fmt.Errorf("echo: unknown codec %q", cfg.Echo.Codec)
		}
		s.Echo = NewEcho(c)
		s.Echo.Register(reg)
	}
	if cfg.Heartbeat.Enabled {
		s.Heartbeat = NewHeartbeat(cfg.Heartbeat.Interval)
		s.Heartbeat.Register(reg)
	}
	if cfg.TextInput.Enabled {
		s.TextInput = textinput.New()
		s.TextInput.Register(reg)
	}
	if cfg.KeyEvent.Enabled {
		s.KeyEvent = keyevent.New("")
		s.KeyEvent.Register(reg)
	}
	return s, nil
}

// Close stops background work owned by the set.
func (s *Set) Close() {
	if s.Heartbeat != nil {
		s.Heartbeat.Stop()
	}
}
