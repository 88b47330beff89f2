package fleetws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventEmitter_SingleListener(t *testing.T) {
	emitter := NewEventEmitter[EventType, Event]()

	var got []Event
	emitter.On(EventConnect, func(ev Event) { got = append(got, ev) })

	emitter.Emit(EventConnect, Event{Type: EventConnect, State: StateConnected})

	assert.Equal(t, []Event{{Type: EventConnect, State: StateConnected}}, got)
}

func TestEventEmitter_OnlyMatchingEventFires(t *testing.T) {
	emitter := NewEventEmitter[EventType, int]()

	var connects, closes int
	emitter.On(EventConnect, func(n int) { connects += n })
	emitter.On(EventClose, func(n int) { closes += n })

	emitter.Emit(EventConnect, 5)
	emitter.Emit(EventClose, 15)
	emitter.Emit(EventGiveUp, 100)

	assert.Equal(t, 5, connects)
	assert.Equal(t, 15, closes)
}

func TestEventEmitter_ListenerMayRegisterDuringEmit(t *testing.T) {
	emitter := NewEventEmitter[EventType, int]()

	late := 0
	emitter.On(EventClose, func(int) {
		emitter.On(EventClose, func(int) { late++ })
	})

	assert.NotPanics(t, func() { emitter.Emit(EventClose, 1) })
	assert.Zero(t, late)

	emitter.Emit(EventClose, 1)
	assert.Equal(t, 1, late)
}

func TestEventEmitter_CloseRemovesListeners(t *testing.T) {
	emitter := NewEventEmitter[EventType, int]()

	called := false
	emitter.On(EventConnect, func(int) { called = true })
	emitter.Close()
	emitter.Emit(EventConnect, 1)

	assert.False(t, called)
}

func TestEventEmitter_Concurrent(t *testing.T) {
	emitter := NewEventEmitter[EventType, int]()
	var mu sync.Mutex
	var results []int
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			emitter.On(EventReconnect, func(data int) {
				mu.Lock()
				results = append(results, data+i)
				mu.Unlock()
			})
		}(i)
	}
	wg.Wait()

	for j := 0; j < 10; j++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			emitter.Emit(EventReconnect, j)
		}(j)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, results, 100)
}
