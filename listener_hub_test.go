package fleetws

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerHub_DispatchInvokesEveryListenerOnce(t *testing.T) {
	hub := NewListenerHub(nil)

	var mu sync.Mutex
	calls := map[string]int{}
	for _, name := range []string{"a", "b", "c"} {
		name := name
		hub.Add(func(PositionUpdate) {
			mu.Lock()
			calls[name]++
			mu.Unlock()
		})
	}

	hub.Dispatch(PositionUpdate{VehicleID: "v1"})

	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, calls)
}

func TestListenerHub_SameHandlerRegisteredTwiceIsTwoRegistrations(t *testing.T) {
	hub := NewListenerHub(nil)

	count := 0
	handler := func(PositionUpdate) { count++ }
	removeFirst := hub.Add(handler)
	hub.Add(handler)
	require.Equal(t, 2, hub.Len())

	hub.Dispatch(PositionUpdate{})
	assert.Equal(t, 2, count)

	removeFirst()
	hub.Dispatch(PositionUpdate{})
	assert.Equal(t, 3, count)
}

func TestListenerHub_RemoveIsIdempotent(t *testing.T) {
	hub := NewListenerHub(nil)

	remove := hub.Add(func(PositionUpdate) {})
	other := hub.Add(func(PositionUpdate) {})

	remove()
	remove()
	assert.Equal(t, 1, hub.Len())

	other()
	assert.Zero(t, hub.Len())
}

func TestListenerHub_RemovalDuringDispatchKeepsSnapshot(t *testing.T) {
	hub := NewListenerHub(nil)

	var removeVictim func()
	victimCalls := 0

	hub.Add(func(PositionUpdate) {
		if removeVictim != nil {
			removeVictim()
		}
	})
	removeVictim = hub.Add(func(PositionUpdate) { victimCalls++ })

	hub.Dispatch(PositionUpdate{})
	assert.Equal(t, 1, victimCalls, "snapshot taken before removal still includes the victim")

	hub.Dispatch(PositionUpdate{})
	assert.Equal(t, 1, victimCalls, "later dispatches skip the removed listener")
}

func TestListenerHub_AdditionDuringDispatchWaitsForNextDispatch(t *testing.T) {
	hub := NewListenerHub(nil)

	lateCalls := 0
	added := false
	hub.Add(func(PositionUpdate) {
		if added {
			return
		}
		added = true
		hub.Add(func(PositionUpdate) { lateCalls++ })
	})

	hub.Dispatch(PositionUpdate{})
	assert.Zero(t, lateCalls)

	hub.Dispatch(PositionUpdate{})
	assert.Equal(t, 1, lateCalls)
}

func TestListenerHub_PanickingListenerDoesNotStopOthers(t *testing.T) {
	var logs bytes.Buffer
	hub := NewListenerHub(NewWriterLogger(&logs))

	var reported []error
	hub.setPanicReporter(func(err error) { reported = append(reported, err) })

	delivered := 0
	hub.Add(func(PositionUpdate) { panic("listener exploded") })
	hub.Add(func(PositionUpdate) { delivered++ })
	hub.Add(func(PositionUpdate) { delivered++ })

	assert.NotPanics(t, func() { hub.Dispatch(PositionUpdate{VehicleID: "v1"}) })
	assert.Equal(t, 2, delivered)
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "listener exploded")
	assert.Contains(t, logs.String(), "listener_hub")
}

func TestListenerHub_ClearDropsRegistrations(t *testing.T) {
	hub := NewListenerHub(nil)

	called := false
	remove := hub.Add(func(PositionUpdate) { called = true })
	hub.Clear()

	hub.Dispatch(PositionUpdate{})
	assert.False(t, called)
	assert.NotPanics(t, remove)
}
