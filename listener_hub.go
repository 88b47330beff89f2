package fleetws

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// PositionHandler receives every decoded update while registered.
type PositionHandler func(PositionUpdate)

type listener struct {
	id      uuid.UUID
	handler PositionHandler
}

// ListenerHub fans decoded updates out to registered handlers. Dispatch works
// on a snapshot taken at call time, so handlers added or removed while a
// dispatch is running only affect later dispatches.
type ListenerHub struct {
	mu        sync.RWMutex
	listeners map[uuid.UUID]listener
	logger    Logger
	onPanic   func(err error)
}

func NewListenerHub(logger Logger) *ListenerHub {
	if logger == nil {
		logger = NopLogger()
	}
	return &ListenerHub{
		listeners: make(map[uuid.UUID]listener),
		logger:    logger.WithField("component", "listener_hub"),
	}
}

// Add registers handler and returns a function that removes exactly this
// registration. Calling the returned function more than once is a no-op.
func (h *ListenerHub) Add(handler PositionHandler) (remove func()) {
	id := uuid.New()

	h.mu.Lock()
	h.listeners[id] = listener{id: id, handler: handler}
	total := len(h.listeners)
	h.mu.Unlock()

	h.logger.Debugf("position listener %s added, total listeners: %d", id, total)

	return func() {
		h.remove(id)
	}
}

func (h *ListenerHub) remove(id uuid.UUID) {
	h.mu.Lock()
	_, found := h.listeners[id]
	delete(h.listeners, id)
	total := len(h.listeners)
	h.mu.Unlock()

	if found {
		h.logger.Debugf("position listener %s removed, total listeners: %d", id, total)
	}
}

// Len returns the number of registered handlers.
func (h *ListenerHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Clear drops every registration.
func (h *ListenerHub) Clear() {
	h.mu.Lock()
	h.listeners = make(map[uuid.UUID]listener)
	h.mu.Unlock()
}

// Dispatch invokes every handler registered at call time exactly once. A
// panicking handler is recovered and reported; the rest still run.
func (h *ListenerHub) Dispatch(update PositionUpdate) {
	h.mu.RLock()
	snapshot := make([]listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		snapshot = append(snapshot, l)
	}
	onPanic := h.onPanic
	h.mu.RUnlock()

	for _, l := range snapshot {
		if err := h.invoke(l, update); err != nil {
			h.logger.Errorf("position listener %s failed: %s", l.id, err)
			if onPanic != nil {
				onPanic(err)
			}
		}
	}
}

func (h *ListenerHub) invoke(l listener, update PositionUpdate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()

	l.handler(update)
	return nil
}

func (h *ListenerHub) setPanicReporter(fn func(err error)) {
	h.mu.Lock()
	h.onPanic = fn
	h.mu.Unlock()
}
