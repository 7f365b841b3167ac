package breaker

import (
	"sync"

	"github.com/freshcart/order-engine/internal/config"
)

// Registry owns one breaker per downstream target. It is constructed in main
// and injected wherever calls are gated, never held as package state, so each
// test gets its own isolated breaker set.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults config.Breaker
}

func NewRegistry(defaults config.Breaker) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
	}
}

// Configure installs a breaker with target-specific settings. Later For calls
// for the same name return this instance.
func (r *Registry) Configure(name string, cfg config.Breaker) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := New(cfg)
	r.breakers[name] = b
	return b
}

// For returns the breaker for the named target, creating one with the
// registry defaults on first use.
func (r *Registry) For(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(r.defaults)
	r.breakers[name] = b
	return b
}
