// Package registry publishes the process-wide head-unit connection state.
//
// The prober is the single writer. Anyone may read a snapshot or subscribe
// to transitions.
package registry

import (
	"sync"

	"github.com/autopeer-io/carprober/internal/core"
	"github.com/autopeer-io/carprober/pkg/log"
)

// Listener is notified of every transition, in order, on the writer's goroutine.
// Listeners may read the registry but must not write to it.
type Listener func(state core.ConnectionState)

// Registry holds the current ConnectionState.
type Registry struct {
	// writeMu serializes transitions together with their notifications so
	// listeners observe them in the order they happened.
	writeMu sync.Mutex

	mu        sync.RWMutex
	state     core.ConnectionState
	listeners map[int]Listener
	nextID    int
}

// New returns a disconnected registry.
func New() *Registry {
	return &Registry{listeners: make(map[int]Listener)}
}

// SetConnection marks the head unit as connected. Repeating the current
// connection is a no-op and notifies nobody.
func (r *Registry) SetConnection(brand core.Brand, host string, port int) {
	next := core.ConnectionState{Connected: true, Brand: brand, Host: host, Port: port}
	if r.transition(next) {
		log.Info("Head unit connection set", "brand", brand, "host", host, "port", port)
	}
}

// Reset marks the head unit as disconnected. Resetting twice notifies once.
func (r *Registry) Reset() {
	if r.transition(core.ConnectionState{}) {
		log.Info("Head unit connection reset")
	}
}

func (r *Registry) transition(next core.ConnectionState) bool {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	if r.state == next {
		r.mu.Unlock()
		return false
	}
	r.state = next
	listeners := make([]Listener, 0, len(r.listeners))
	for id := 0; id < r.nextID; id++ {
		if l, ok := r.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	r.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return true
}

// IsConnected reports whether a head unit is currently connected.
func (r *Registry) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Connected
}

// Snapshot returns a copy of the current state.
func (r *Registry) Snapshot() core.ConnectionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Subscribe registers l for future transitions and returns a function that
// removes it. l is not called with the current state.
func (r *Registry) Subscribe(l Listener) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

var std = New()

// Std returns the process-wide registry.
func Std() *Registry {
	return std
}
