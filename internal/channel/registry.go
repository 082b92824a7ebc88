package channel

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/mattjoyce/embedder/internal/codec"
	"github.com/mattjoyce/embedder/internal/log"
	"github.com/mattjoyce/embedder/internal/platform"
)

type entry struct {
	id uint64
	ch Channel
}

// MissFunc observes messages that arrived for an unregistered channel.
type MissFunc func(channel string, expectedReply bool)

// Registry owns every registered channel. Callers hold WeakHandles, which
// stop resolving once the channel is replaced or unregistered.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string]entry
	nextID   uint64
	runtime  RuntimeRef
	misses   []MissFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:   log.WithComponent("registry"),
		channels: make(map[string]entry),
	}
}

// SetRuntime binds ref to every current and future channel.
func (r *Registry) SetRuntime(ref RuntimeRef) {
	r.mu.Lock()
	r.runtime = ref
	chans := make([]Channel, 0, len(r.channels))
	for _, e := range r.channels {
		chans = append(chans, e.ch)
	}
	r.mu.Unlock()

	for _, ch := range chans {
		ch.bind(ref)
	}
}

// OnMiss registers fn to observe routing misses.
func (r *Registry) OnMiss(fn MissFunc) {
	r.mu.Lock()
	r.misses = append(r.misses, fn)
	r.mu.Unlock()
}

// Register inserts ch, replacing any channel with the same name.
func (r *Registry) Register(ch Channel) WeakHandle[Channel] {
	return register(r, ch)
}

// RegisterMessageChannel creates and registers a message channel.
func (r *Registry) RegisterMessageChannel(name string, c codec.MessageCodec, handler Ref[MessageHandler]) WeakHandle[*MessageChannel] {
	return register(r, NewMessageChannel(name, c, handler))
}

// RegisterMethodChannel creates and registers a method channel.
func (r *Registry) RegisterMethodChannel(name string, c codec.MethodCodec, handler Ref[MethodCallHandler]) WeakHandle[*MethodChannel] {
	return register(r, NewMethodChannel(name, c, handler))
}

// RegisterEventChannel creates and registers an event channel.
func (r *Registry) RegisterEventChannel(name string, handler Ref[EventHandler]) WeakHandle[*EventChannel] {
	return register(r, NewEventChannel(name, handler))
}

func register[C Channel](r *Registry, ch C) WeakHandle[C] {
	name := ch.Name()

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	_, replaced := r.channels[name]
	r.channels[name] = entry{id: id, ch: ch}
	ref := r.runtime
	r.mu.Unlock()

	if ref != nil {
		ch.bind(ref)
	}
	if replaced {
		r.logger.Info("channel replaced", "channel", name, "kind", ch.Kind().String())
	} else {
		r.logger.Debug("channel registered", "channel", name, "kind", ch.Kind().String(), "codec", ch.CodecName())
	}
	return WeakHandle[C]{reg: r, name: name, id: id}
}

// Unregister removes the channel called name.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	_, ok := r.channels[name]
	delete(r.channels, name)
	r.mu.Unlock()
	if ok {
		r.logger.Info("channel unregistered", "channel", name)
	}
	return ok
}

// Lookup returns the channel registered under name.
func (r *Registry) Lookup(name string) (Channel, bool) {
	r.mu.RLock()
	e, ok := r.channels[name]
	r.mu.RUnlock()
	return e.ch, ok
}

// WithChannel applies fn to the named channel if present and reports
// whether it was.
func (r *Registry) WithChannel(name string, fn func(Channel)) bool {
	ch, ok := r.Lookup(name)
	if !ok {
		return false
	}
	fn(ch)
	return true
}

// Names returns registered channel names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Handle routes msg to its channel. On a miss the message is dropped and
// any response handle is completed with an empty payload. Polling goroutine only.
func (r *Registry) Handle(rt Runtime, msg *platform.Message) {
	ch, ok := r.Lookup(msg.Channel)
	if ok {
		r.logger.Debug("routing message", "channel", msg.Channel, "bytes", len(msg.Payload), "reply", msg.ExpectsReply())
		ch.HandlePlatformMessage(rt, msg)
		return
	}

	expected := msg.ExpectsReply()
	r.logger.Warn("no channel registered", "channel", msg.Channel, "reply", expected)

	r.mu.RLock()
	misses := append([]MissFunc{}, r.misses...)
	r.mu.RUnlock()
	for _, fn := range misses {
		fn(msg.Channel, expected)
	}

	if h := msg.TakeHandle(); h != nil {
		if err := platform.Respond(rt.Engine(), h, nil); err != nil {
			r.logger.Error("empty response failed", "channel", msg.Channel, "error", err)
		}
	}
}
