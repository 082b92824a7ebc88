package channel

// WeakHandle is a non-owning reference to a registered channel. It resolves
// only while the registry still holds the exact channel it was issued for.
type WeakHandle[C Channel] struct {
	reg  *Registry
	name string
	id   uint64
}

// Name returns the channel name the handle was issued for.
func (h WeakHandle[C]) Name() string { return h.name }

// Get returns the channel if it is still registered.
func (h WeakHandle[C]) Get() (C, bool) {
	var zero C
	if h.reg == nil {
		return zero, false
	}
	h.reg.mu.RLock()
	e, ok := h.reg.channels[h.name]
	h.reg.mu.RUnlock()
	if !ok || e.id != h.id {
		return zero, false
	}
	ch, ok := e.ch.(C)
	return ch, ok
}

// Alive reports whether Get would succeed.
func (h WeakHandle[C]) Alive() bool {
	_, ok := h.Get()
	return ok
}
