package fleetws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeConnection is an in-memory Connection. drop simulates the server
// going away, push simulates an inbound frame.
type fakeConnection struct {
	params  OpenConnectionParams
	recv    chan<- Message
	openErr error

	mu       sync.Mutex
	written  []Message
	closeErr error

	closeC    CloseChan
	closeOnce sync.Once
}

func (c *fakeConnection) Open(context.Context) error {
	if c.openErr != nil {
		c.closeWith(c.openErr)
	}
	return c.openErr
}

func (c *fakeConnection) Write(m Message) error {
	select {
	case <-c.closeC:
		return ErrConnectionClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, m)
	return nil
}

func (c *fakeConnection) Close() { c.closeWith(ErrTerminated) }

func (c *fakeConnection) CloseErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *fakeConnection) CloseChan() CloseChan { return c.closeC }

func (c *fakeConnection) closeWith(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = err
		c.mu.Unlock()
		close(c.closeC)
	})
}

func (c *fakeConnection) drop() { c.closeWith(ErrConnectionClosed) }

func (c *fakeConnection) closed() bool {
	select {
	case <-c.closeC:
		return true
	default:
		return false
	}
}

func (c *fakeConnection) push(t *testing.T, frame any) {
	t.Helper()

	var data []byte
	switch f := frame.(type) {
	case string:
		data = []byte(f)
	case []byte:
		data = f
	default:
		var err error
		data, err = json.Marshal(f)
		require.NoError(t, err)
	}
	c.recv <- NewDataMessage(data)
}

// subscriptions returns the vehicle id sets of every subscribe frame written.
func (c *fakeConnection) subscriptions(t *testing.T) [][]string {
	t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()

	var out [][]string
	for _, m := range c.written {
		if !m.Type().IsData() {
			continue
		}
		var frame subscribeFrame
		require.NoError(t, json.Unmarshal(m.Data(), &frame))
		require.Equal(t, ActionSubscribe, frame.Action)
		out = append(out, frame.VehicleIDs)
	}
	return out
}

func (c *fakeConnection) writtenMessages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.written...)
}

// fakeDialer hands out fakeConnections and remembers them in dial order.
type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConnection
	openErr func(n int) error
}

func (d *fakeDialer) factory(params OpenConnectionParams, recv chan<- Message) Connection {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := &fakeConnection{
		params: params,
		recv:   recv,
		closeC: make(CloseChan),
	}
	if d.openErr != nil {
		c.openErr = d.openErr(len(d.conns))
	}
	d.conns = append(d.conns, c)
	return c
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(t *testing.T, n int) *fakeConnection {
	t.Helper()

	require.Eventually(t, func() bool { return d.count() > n }, waitFor, tick,
		"expected dial #%d", n)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[n]
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fakeScheduler records timers instead of running them; tests fire them.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) stopper {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, timer)
	return timer
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) timer(t *testing.T, n int) *fakeTimer {
	t.Helper()

	require.Eventually(t, func() bool { return s.count() > n }, waitFor, tick,
		"expected timer #%d", n)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[n]
}

// fire runs the callback even if the timer was stopped, the way a timer that
// already fired before Stop would.
func (s *fakeScheduler) fire(t *testing.T, n int) {
	timer := s.timer(t, n)
	timer.mu.Lock()
	timer.fired = true
	timer.mu.Unlock()
	timer.f()
}

type mockTokenProvider struct {
	mock.Mock
}

func (m *mockTokenProvider) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) listen(m *Manager) {
	for _, t := range []EventType{
		EventConnect, EventReconnect, EventClose,
		EventReconnectScheduled, EventGiveUp, EventListenerPanic,
	} {
		m.OnEvent(t, r.record)
	}
}
