package fleetws

import (
	"sync"
)

type callback[T any] func(T)

// EventEmitterCallback maps events (of type K) to callbacks receiving V.
type EventEmitterCallback[K comparable, V any] struct {
	listeners map[K][]callback[V]
	lock      sync.RWMutex
}

// NewEventEmitter creates a new EventEmitterCallback and returns a pointer to it.
func NewEventEmitter[K comparable, V any]() *EventEmitterCallback[K, V] {
	return &EventEmitterCallback[K, V]{
		listeners: make(map[K][]callback[V]),
	}
}

// On registers a new listener for the given event.
func (e *EventEmitterCallback[K, V]) On(event K, listener callback[V]) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners[event] = append(e.listeners[event], listener)
}

// Emit triggers all listeners registered for the given event synchronously.
// Listeners run outside the emitter lock, so they may register new listeners.
func (e *EventEmitterCallback[K, V]) Emit(event K, data V) {
	e.lock.RLock()
	listeners := append([]callback[V](nil), e.listeners[event]...)
	e.lock.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Close removes all listeners.
func (e *EventEmitterCallback[K, V]) Close() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners = make(map[K][]callback[V])
}
