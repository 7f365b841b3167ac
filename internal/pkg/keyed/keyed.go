// Package keyed provides a mutex set sharded by key, used to serialize
// concurrent checkouts for the same user without a global lock.
package keyed

import "sync"

type waiter struct {
	mu   sync.Mutex
	refs int
}

type Mutex struct {
	mu      sync.Mutex
	waiters map[string]*waiter
}

func NewMutex() *Mutex {
	return &Mutex{waiters: make(map[string]*waiter)}
}

// Lock blocks until the key is free and returns the matching unlock func.
// Entries are reference counted and dropped once the last holder unlocks, so
// the map stays bounded by the number of keys currently in flight.
func (m *Mutex) Lock(key string) (unlock func()) {
	m.mu.Lock()
	w, ok := m.waiters[key]
	if !ok {
		w = &waiter{}
		m.waiters[key] = w
	}
	w.refs++
	m.mu.Unlock()

	w.mu.Lock()
	return func() {
		w.mu.Unlock()
		m.mu.Lock()
		w.refs--
		if w.refs == 0 {
			delete(m.waiters, key)
		}
		m.mu.Unlock()
	}
}
