package fleetws

import (
	"fmt"
	"time"
)

type EventType int

const (
	// EventConnect fires when the first connection of a session opens.
	EventConnect EventType = iota + 1
	// EventReconnect fires when a connection opens after an unexpected close.
	EventReconnect
	// EventClose fires whenever an open or opening connection goes away.
	EventClose
	// EventReconnectScheduled fires when a reconnect timer is armed.
	EventReconnectScheduled
	// EventGiveUp fires once the reconnect ceiling is reached.
	EventGiveUp
	// EventListenerPanic fires when a position handler panics during dispatch.
	EventListenerPanic
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventReconnect:
		return "reconnect"
	case EventClose:
		return "close"
	case EventReconnectScheduled:
		return "reconnect_scheduled"
	case EventGiveUp:
		return "give_up"
	case EventListenerPanic:
		return "listener_panic"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event describes a lifecycle change of the Manager.
type Event struct {
	Type    EventType
	State   ConnectionState
	Attempt int
	Delay   time.Duration
	Err     error
}

type EventHandler func(Event)
