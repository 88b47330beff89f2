package fleetws

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

type (
	ErrAdapter func(*websocket.Conn, *http.Response, error) error

	ErrorAdapters struct {
		OnDial ErrAdapter
	}

	// WsConnection is a Connection backed by a fasthttp/websocket conn. One
	// goroutine reads, one writes; both stop when the connection closes.
	WsConnection struct {
		params       OpenConnectionParams
		errAdapters  ErrorAdapters
		logger       Logger
		dialer       *websocket.Dialer
		writeTimeout time.Duration

		conn *websocket.Conn

		closeChan   CloseChan
		closeOnce   sync.Once
		closeMu     sync.Mutex
		closeReason error

		recv chan<- Message // messages received over the wire
		send chan Message   // messages to be sent over the wire
	}
)

const defaultWriteTimeout = time.Second

func NewWebsocketConnection(
	logger Logger,
	dialer *websocket.Dialer,
	params OpenConnectionParams,
	recvChan chan<- Message,
	errorHandlers ErrorAdapters,
	writeTimeout time.Duration,
) *WsConnection {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &WsConnection{
		params:       params,
		errAdapters:  errorHandlers,
		dialer:       dialer,
		writeTimeout: writeTimeout,
		recv:         recvChan,
		send:         make(chan Message, 32),
		closeChan:    make(CloseChan),
		logger:       logger.WithField("net", "ws_connection"),
	}
}

func NewWebsocketFactory(
	logger Logger,
	dialer *websocket.Dialer,
	errorHandlers ErrorAdapters,
	writeTimeout time.Duration,
) ConnectionFactory {
	return func(params OpenConnectionParams, recvChan chan<- Message) Connection {
		return NewWebsocketConnection(
			logger,
			dialer,
			params,
			recvChan,
			errorHandlers,
			writeTimeout,
		)
	}
}

// Write queues m for the writer goroutine.
func (w *WsConnection) Write(m Message) error {
	select {
	case <-w.closeChan:
		return ErrConnectionClosed
	default:
	}

	select {
	case w.send <- m:
		return nil
	case <-w.closeChan:
		return ErrConnectionClosed
	}
}

// Close terminates the connection, sending a normal close frame first when
// the socket is up.
func (w *WsConnection) Close() {
	w.setCloseReason(ErrTerminated)
	w.safeClose()
}

// Open dials the server. It returns once the handshake succeeded or failed.
func (w *WsConnection) Open(ctx context.Context) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.params.URL.String(), w.params.Header)

	if err = w.handleDialError(conn, resp, err); err != nil {
		w.logger.Errorf("connection err to %s: %s", redactURL(w.params.URL), err)
		w.setCloseReason(err)
		w.safeClose()
		return err
	}

	w.logger.Debugf("success opening connection to %s", redactURL(w.params.URL))

	w.closeMu.Lock()
	w.conn = conn
	w.closeMu.Unlock()

	// Control frames are forwarded so the owner decides how to answer them.
	conn.SetPingHandler(func(appData string) error {
		w.logger.Debug("<= [PING]")
		w.deliver(NewPingMessage([]byte(appData)))
		return nil
	})

	conn.SetPongHandler(func(appData string) error {
		w.logger.Debug("<= [PONG]")
		w.deliver(NewPongMessage([]byte(appData)))
		return nil
	})

	conn.SetCloseHandler(func(code int, text string) error {
		w.logger.Debugf("<= [CLOSE] code=%d", code)
		w.deliver(NewCloseMessage(code, []byte(text)))
		return nil
	})

	go w.read()
	go w.write()

	return nil
}

// CloseChan returns a channel that is closed when the connection is closed.
func (w *WsConnection) CloseChan() CloseChan {
	return w.closeChan
}

// CloseErr returns the reason the connection closed, nil while it is open.
func (w *WsConnection) CloseErr() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	return w.closeReason
}

func (w *WsConnection) deliver(m Message) {
	select {
	case w.recv <- m:
	case <-w.closeChan:
	}
}

func (w *WsConnection) read() {
	for {
		messageType, bts, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.closeChan:
			default:
				w.logger.Warnf("error occurred on websocket read: %s", err)
				w.setCloseReason(errors.Wrap(
					ErrConnectionClosed,
					"error occurred on websocket read: "+err.Error(),
				))
			}
			w.safeClose()
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			w.logger.Debug("<= [BIN]")
			w.deliver(NewBinaryMessage(bts))
		default:
			w.logger.Debugf("<= [DATA] %s", bts)
			w.deliver(NewDataMessage(bts))
		}
	}
}

func (w *WsConnection) write() {
	for {
		select {
		case <-w.closeChan:
			return
		case msg := <-w.send:
			deadline := time.Now().Add(w.writeTimeout)
			_ = w.conn.SetWriteDeadline(deadline)

			var err error

			switch msg.Type() {
			case PingMessage:
				w.logger.Debug("=> [PING]")
				err = w.conn.WriteControl(websocket.PingMessage, msg.Data(), deadline)
			case PongMessage:
				w.logger.Debug("=> [PONG]")
				err = w.conn.WriteControl(websocket.PongMessage, msg.Data(), deadline)
			case BinaryMessage:
				w.logger.Debug("=> [BIN]")
				err = w.conn.WriteMessage(websocket.BinaryMessage, msg.Data())
			case DataMessage:
				w.logger.Debugf("=> [DATA] %s", msg.Data())
				err = w.conn.WriteMessage(websocket.TextMessage, msg.Data())
			}

			if err != nil {
				w.logger.Warnf("error occurred on websocket write: %s", err)
				w.setCloseReason(errors.Wrap(ErrConnectionClosed, err.Error()))
				w.safeClose()
				return
			}
		}
	}
}

func (w *WsConnection) safeClose() {
	w.closeOnce.Do(w.close)
}

func (w *WsConnection) close() {
	close(w.closeChan)

	w.closeMu.Lock()
	conn := w.conn
	reason := w.closeReason
	w.closeMu.Unlock()

	if conn == nil {
		return
	}

	// The close handshake may wait up to writeTimeout; callers must not.
	go func() {
		if errors.Is(reason, ErrTerminated) {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(w.writeTimeout),
			)
		}
		_ = conn.Close()
	}()
}

func (w *WsConnection) setCloseReason(err error) {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closeReason == nil {
		w.closeReason = err
	}
}

func (w *WsConnection) handleDialError(conn *websocket.Conn, resp *http.Response, err error) error {
	if w.errAdapters.OnDial != nil {
		return w.errAdapters.OnDial(conn, resp, err)
	}

	// 1. Check HTTP errors first
	var msg string

	if resp != nil {
		if resp.Body != nil {
			bts, err := io.ReadAll(resp.Body)
			if err == nil {
				msg = string(bts)
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return errors.Wrap(ErrRateLimit, msg)
		}
	}

	// 2. Network errors
	if err != nil {
		return errors.Wrap(ErrCannotConnect, err.Error())
	}

	return nil
}
