// Package keylock provides a registry of mutexes keyed by identifier, so
// unrelated keys never contend while callers for the same key serialize.
// Locks are created lazily and never removed.
package keylock

import "sync"

type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

// Get returns the mutex for key, creating it on first use.
func (r *Registry) Get(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// Lock acquires the mutex for key and returns its unlock function.
func (r *Registry) Lock(key string) func() {
	l := r.Get(key)
	l.Lock()
	return l.Unlock
}
