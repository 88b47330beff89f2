package fleetws

import (
	"fmt"
	"time"
)

type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type effectKind int

const (
	effectDial effectKind = iota + 1
	effectSubscribe
	effectArmTimer
	effectCancelTimer
	effectCloseSocket
	effectClearDesired
	effectEmit
)

// effect is one side effect requested by a transition. The Manager runs
// them in order.
type effect struct {
	kind  effectKind
	epoch uint64
	token string
	delay time.Duration
	ids   []string
	event Event
}

// machine is the connection state machine. It never performs I/O: every
// handler returns the effects the owner must run. Each dial gets a new
// epoch and events carrying an older epoch are ignored.
type machine struct {
	state       ConnectionState
	token       string
	attempts    int
	maxAttempts int
	backoff     backoffCalculator
	intentional bool
	epoch       uint64
	timerArmed  bool
	everOpened  bool
}

func newMachine(policy ReconnectPolicy) machine {
	return machine{
		state:       StateDisconnected,
		maxAttempts: policy.MaxAttempts,
		backoff:     policy.calculator(),
	}
}

func (m *machine) emit(t EventType, err error) effect {
	return effect{
		kind: effectEmit,
		event: Event{
			Type:    t,
			State:   m.state,
			Attempt: m.attempts,
			Err:     err,
		},
	}
}

func (m *machine) live() bool {
	return m.state == StateConnecting || m.state == StateConnected
}

// connect starts a fresh session for token. Same-token calls on a live
// session are no-ops; a different token replaces the live socket.
func (m *machine) connect(token string) []effect {
	if token == "" {
		return nil
	}
	if m.live() && token == m.token {
		return nil
	}

	var effects []effect
	if m.timerArmed {
		m.timerArmed = false
		effects = append(effects, effect{kind: effectCancelTimer})
	}
	if m.live() {
		effects = append(effects, effect{kind: effectCloseSocket})
	}

	m.token = token
	m.intentional = false
	m.attempts = 0
	m.everOpened = false
	m.epoch++
	m.state = StateConnecting

	return append(effects, effect{kind: effectDial, epoch: m.epoch, token: token})
}

// opened handles a successful handshake. ok is false when the socket
// belongs to a superseded dial and must be discarded by the caller.
func (m *machine) opened(epoch uint64, desired []string) (effects []effect, ok bool) {
	if epoch != m.epoch || m.state != StateConnecting {
		return nil, false
	}

	m.state = StateConnected
	m.attempts = 0

	eventType := EventConnect
	if m.everOpened {
		eventType = EventReconnect
	}
	m.everOpened = true

	effects = append(effects, m.emit(eventType, nil))
	if len(desired) > 0 {
		effects = append(effects, effect{kind: effectSubscribe, ids: desired})
	}
	return effects, true
}

// closed handles a failed dial or an unexpected close of the live socket.
func (m *machine) closed(epoch uint64, reason error) []effect {
	if epoch != m.epoch || !m.live() {
		return nil
	}

	m.state = StateDisconnected
	effects := []effect{m.emit(EventClose, reason)}

	if m.intentional {
		return effects
	}

	if m.attempts >= m.maxAttempts {
		return append(effects, m.emit(EventGiveUp, reason))
	}

	m.attempts++
	m.timerArmed = true
	delay := m.backoff(m.attempts)

	scheduled := m.emit(EventReconnectScheduled, reason)
	scheduled.event.Delay = delay

	return append(effects,
		effect{kind: effectArmTimer, epoch: m.epoch, delay: delay},
		scheduled,
	)
}

// timerFired re-dials if the timer still belongs to the current session.
func (m *machine) timerFired(epoch uint64) []effect {
	if epoch != m.epoch || !m.timerArmed || m.intentional || m.token == "" ||
		m.state != StateDisconnected {
		return nil
	}

	m.timerArmed = false
	m.epoch++
	m.state = StateConnecting

	return []effect{{kind: effectDial, epoch: m.epoch, token: m.token}}
}

// desiredChanged announces ids immediately when connected.
func (m *machine) desiredChanged(ids []string) []effect {
	if m.state != StateConnected {
		return nil
	}
	return []effect{{kind: effectSubscribe, ids: ids}}
}

// disconnect tears the session down from any state. The owner must call
// finishClose once the effects ran.
func (m *machine) disconnect() []effect {
	var effects []effect

	m.intentional = true
	if m.timerArmed {
		m.timerArmed = false
		effects = append(effects, effect{kind: effectCancelTimer})
	}
	if m.live() {
		m.state = StateClosing
		effects = append(effects,
			effect{kind: effectCloseSocket},
			m.emit(EventClose, ErrTerminated),
		)
	}

	m.token = ""
	m.attempts = 0
	m.everOpened = false
	m.epoch++

	return append(effects, effect{kind: effectClearDesired})
}

func (m *machine) finishClose() {
	m.state = StateDisconnected
}
