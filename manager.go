package fleetws

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

// Manager owns the single stream socket of a session: it dials, resubscribes
// the desired set after every open, reconnects with linear backoff after
// unexpected closes and fans decoded position updates out to listeners.
//
// All mutable state is guarded by mu. Listener and event callbacks are
// always invoked without holding it.
type Manager struct {
	logger Logger

	registry *SubscriptionRegistry
	hub      *ListenerHub
	emitter  *EventEmitterCallback[EventType, Event]

	paramsRepo       OpenConnectionParamsRepo
	connFactory      ConnectionFactory
	keepAlive        PassiveKeepAliveHandler
	scheduler        scheduler
	handshakeTimeout time.Duration
	recvBufferSize   int

	mu         sync.Mutex
	fsm        machine
	conn       Connection
	dialCancel context.CancelFunc
	timer      stopper
	lastURL    url.URL
}

type ManagerOption func(*Manager)

// WithConnectionFactory replaces the websocket transport.
func WithConnectionFactory(f ConnectionFactory) ManagerOption {
	return func(m *Manager) { m.connFactory = f }
}

// WithParamsGetter replaces how the dial URL is derived from a token.
func WithParamsGetter(g OpenConnectionParamsGetter) ManagerOption {
	return func(m *Manager) { m.paramsRepo = NewOpenConnectionParamsRepo(m.logger, g) }
}

func WithSubscriptionRegistry(r *SubscriptionRegistry) ManagerOption {
	return func(m *Manager) { m.registry = r }
}

func WithListenerHub(h *ListenerHub) ManagerOption {
	return func(m *Manager) { m.hub = h }
}

func WithPassiveKeepAlive(h PassiveKeepAliveHandler) ManagerOption {
	return func(m *Manager) { m.keepAlive = h }
}

func withScheduler(s scheduler) ManagerOption {
	return func(m *Manager) { m.scheduler = s }
}

// NewManager builds a disconnected Manager. cfg gets defaults applied before
// validation.
func NewManager(cfg Config, logger Logger, opts ...ManagerOption) (*Manager, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NopLogger()
	}

	logger = logger.WithField("component", "stream_manager")

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if cfg.TLSInsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	m := &Manager{
		logger:   logger,
		registry: NewSubscriptionRegistry(),
		emitter:  NewEventEmitter[EventType, Event](),
		paramsRepo: NewOpenConnectionParamsRepo(
			logger,
			NewStreamParamsGetter(cfg.Endpoint, cfg.Path),
		),
		connFactory: NewActiveKeepAliveConnectionFactory(
			logger,
			NewWebsocketFactory(logger, dialer, ErrorAdapters{}, cfg.WriteTimeout),
			cfg.PingInterval,
			nil,
		),
		keepAlive:        KeepAliveHandlerReplyPingWithPong,
		scheduler:        timeScheduler{},
		handshakeTimeout: cfg.HandshakeTimeout,
		recvBufferSize:   cfg.RecvBufferSize,
		fsm:              newMachine(cfg.ReconnectPolicy()),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.hub == nil {
		m.hub = NewListenerHub(logger)
	}
	m.hub.setPanicReporter(func(err error) {
		m.emitter.Emit(EventListenerPanic, Event{
			Type:  EventListenerPanic,
			State: m.State(),
			Err:   err,
		})
	})

	return m, nil
}

func (m *Manager) Connect(token string) {
	m.mu.Lock()
	if token == "" {
		m.mu.Unlock()
		m.logger.Warn("connect called with an empty token, ignoring")
		return
	}
	effects := m.fsm.connect(token)
	if effects == nil {
		m.logger.Debugf("already %s, ignoring connect", m.fsm.state)
	}
	events := m.apply(effects)
	m.mu.Unlock()

	m.emit(events)
}

func (m *Manager) ConnectWith(ctx context.Context, p TokenProvider) error {
	token, err := p.Token(ctx)
	if err != nil {
		return errors.Wrap(err, "resolve stream token")
	}
	m.Connect(token)
	return nil
}

func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.logger.Debug("disconnecting")
	events := m.apply(m.fsm.disconnect())
	m.fsm.finishClose()
	m.mu.Unlock()

	m.emit(events)
}

// Close ends the lifecycle of m: it disconnects and drops every listener
// and event registration.
func (m *Manager) Close() {
	m.Disconnect()
	m.emitter.Close()
	m.hub.Clear()
}

// SetDesired replaces the desired set. When connected the full new set is
// announced at once, an empty set included; otherwise it is kept for the
// next successful open.
func (m *Manager) SetDesired(ids ...string) {
	m.mu.Lock()
	m.registry.Replace(ids)
	desired := m.registry.Desired()
	effects := m.fsm.desiredChanged(desired)
	if effects == nil {
		m.logger.Debugf("stored %d desired vehicles until connected", len(desired))
	}
	events := m.apply(effects)
	m.mu.Unlock()

	m.emit(events)
}

func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	m.registry.Clear()
	m.mu.Unlock()

	m.logger.Debug("cleared desired vehicles")
}

// Desired returns the desired set currently held by the registry.
func (m *Manager) Desired() []string {
	return m.registry.Desired()
}

func (m *Manager) OnPositionUpdate(h PositionHandler) (remove func()) {
	return m.hub.Add(h)
}

func (m *Manager) OnEvent(t EventType, h EventHandler) {
	m.emitter.On(t, callback[Event](h))
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.fsm.state != StateConnected {
		return false
	}
	select {
	case <-m.conn.CloseChan():
		return false
	default:
		return true
	}
}

func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.state
}

// apply runs effects and returns the events to emit once mu is released.
// It must be called with mu held.
func (m *Manager) apply(effects []effect) (events []Event) {
	for _, e := range effects {
		switch e.kind {
		case effectDial:
			m.startDial(e.epoch, e.token)
		case effectSubscribe:
			m.sendSubscribe(e.ids)
		case effectArmTimer:
			m.armTimer(e.epoch, e.delay)
		case effectCancelTimer:
			m.cancelTimer()
		case effectCloseSocket:
			m.closeSocket()
		case effectClearDesired:
			m.registry.Clear()
		case effectEmit:
			events = append(events, m.describe(e.event))
		}
	}
	return events
}

func (m *Manager) describe(ev Event) Event {
	switch ev.Type {
	case EventConnect:
		m.logger.Info("connected")
	case EventReconnect:
		m.logger.Info("reconnected")
	case EventClose:
		if ev.Err != nil && !errors.Is(ev.Err, ErrTerminated) {
			m.logger.Warnf("disconnected: %s", ev.Err)
		} else {
			m.logger.Info("disconnected")
		}
	case EventReconnectScheduled:
		m.logger.Infof("reconnecting in %s (attempt %d/%d)", ev.Delay, ev.Attempt, m.fsm.maxAttempts)
	case EventGiveUp:
		ev.Err = WrapErrorUnrecoverableConnection(ev.Err, m.lastURL, m.fsm.maxAttempts)
		m.logger.Errorf("max reconnection attempts reached: %s", ev.Err)
	}
	return ev
}

func (m *Manager) emit(events []Event) {
	for _, ev := range events {
		m.emitter.Emit(ev.Type, ev)
	}
}

func (m *Manager) startDial(epoch uint64, token string) {
	ctx, cancel := context.WithCancel(context.Background())
	m.dialCancel = cancel

	go m.dial(ctx, epoch, token)
}

// dial opens one socket for epoch and, if it is still current once open,
// pumps its inbound frames until it closes.
func (m *Manager) dial(ctx context.Context, epoch uint64, token string) {
	var (
		conn Connection
		recv chan Message
	)

	params, err := m.paramsRepo.Get(ctx, token)
	if err == nil {
		m.logger.Infof("connecting to %s", redactURL(params.URL))

		recv = make(chan Message, m.recvBufferSize)
		conn = m.connFactory(params, recv)

		openCtx, cancel := context.WithTimeout(ctx, m.handshakeTimeout)
		err = conn.Open(openCtx)
		cancel()
	}

	m.mu.Lock()
	if params.URL.Host != "" {
		m.lastURL = params.URL
	}

	if err != nil {
		events := m.apply(m.fsm.closed(epoch, err))
		m.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		m.emit(events)
		return
	}

	effects, ok := m.fsm.opened(epoch, m.registry.Desired())
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("discarding connection from a superseded dial")
		conn.Close()
		return
	}

	m.conn = conn
	events := m.apply(effects)
	m.mu.Unlock()

	m.emit(events)
	m.pump(epoch, conn, recv)
}

func (m *Manager) pump(epoch uint64, conn Connection, recv <-chan Message) {
	closeC := conn.CloseChan()

	for {
		select {
		case msg := <-recv:
			m.handleMessage(conn, msg)
		case <-closeC:
			m.mu.Lock()
			if m.conn == conn {
				m.conn = nil
			}
			events := m.apply(m.fsm.closed(epoch, conn.CloseErr()))
			m.mu.Unlock()

			m.emit(events)
			return
		}
	}
}

func (m *Manager) handleMessage(conn Connection, msg Message) {
	switch {
	case msg.Type().IsData():
		update, err := DecodeFrame(msg.Data())
		if err != nil {
			if errors.Is(err, ErrUnknownFrameType) {
				m.logger.Debugf("dropping frame: %s", err)
			} else {
				m.logger.Warnf("failed to decode frame: %s", err)
			}
			return
		}
		m.hub.Dispatch(update)
	case msg.Type().IsClose():
		m.logger.Debugf("server sent close frame: %s", msg)
	default:
		if m.keepAlive != nil {
			m.keepAlive(conn, msg)
		}
	}
}

func (m *Manager) sendSubscribe(ids []string) {
	if m.conn == nil {
		return
	}

	frame, err := EncodeSubscribe(ids)
	if err != nil {
		m.logger.Errorf("cannot encode subscribe frame: %s", err)
		return
	}

	m.logger.Infof("subscribing to %d vehicles", len(ids))
	if err := m.conn.Write(NewDataMessage(frame)); err != nil {
		m.logger.Warnf("cannot send subscribe frame: %s", err)
	}
}

func (m *Manager) armTimer(epoch uint64, delay time.Duration) {
	m.cancelTimer()
	m.timer = m.scheduler.AfterFunc(delay, func() {
		m.reconnectFired(epoch)
	})
}

func (m *Manager) cancelTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) reconnectFired(epoch uint64) {
	m.mu.Lock()
	effects := m.fsm.timerFired(epoch)
	if effects == nil {
		m.mu.Unlock()
		m.logger.Debug("ignoring superseded reconnect timer")
		return
	}
	m.timer = nil
	events := m.apply(effects)
	m.mu.Unlock()

	m.emit(events)
}

func (m *Manager) closeSocket() {
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}
