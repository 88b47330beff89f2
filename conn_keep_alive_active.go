package fleetws

import (
	"context"
	"sync"
	"time"
)

type KeepAliveMessageFactory func() Message

// activeKeepAliveConnection sends a keep-alive message every pingInterval
// while the wrapped connection is open.
type activeKeepAliveConnection struct {
	Connection
	pingInterval            time.Duration
	keepAliveMessageFactory KeepAliveMessageFactory
	logger                  Logger

	openOnce sync.Once
}

// Open opens the wrapped connection and, on success, starts the pinger. It
// only executes once, subsequent calls have no effect.
func (h *activeKeepAliveConnection) Open(ctx context.Context) (err error) {
	h.openOnce.Do(func() {
		if err = h.Connection.Open(ctx); err != nil {
			return
		}

		go h.run()
	})

	return
}

func (h *activeKeepAliveConnection) run() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	closeC := h.Connection.CloseChan()

	for {
		select {
		case <-closeC:
			return
		case <-ticker.C:
			if err := h.Connection.Write(h.keepAliveMessageFactory()); err != nil {
				h.logger.Debugf("keep-alive stopped: %s", err)
				return
			}
		}
	}
}

// NewActiveKeepAliveConnectionFactory wraps every connection built by factory
// with a pinger. A non-positive interval returns factory untouched.
func NewActiveKeepAliveConnectionFactory(
	logger Logger,
	factory ConnectionFactory,
	interval time.Duration,
	keepAliveMessageFactory KeepAliveMessageFactory,
) ConnectionFactory {
	if interval <= 0 {
		return factory
	}
	if keepAliveMessageFactory == nil {
		keepAliveMessageFactory = NewKeepAliveMessageFactory(PingMessage, func() []byte { return nil })
	}
	return func(params OpenConnectionParams, recv chan<- Message) Connection {
		return &activeKeepAliveConnection{
			Connection:              factory(params, recv),
			logger:                  logger.WithField("subtype", "active_keep_alive"),
			pingInterval:            interval,
			keepAliveMessageFactory: keepAliveMessageFactory,
		}
	}
}

// NewKeepAliveMessageFactory returns a factory function for creating keep-alive messages.
func NewKeepAliveMessageFactory(
	mt MessageType,
	contentFactory func() []byte,
) KeepAliveMessageFactory {
	return func() Message {
		return NewMessage(mt, contentFactory())
	}
}
