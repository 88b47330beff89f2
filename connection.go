package fleetws

import (
	"context"
)

type (
	CloseChan chan struct{}

	// Connection is a single socket. Inbound frames are pushed into the recv
	// channel handed to its ConnectionFactory.
	Connection interface {
		// Open dials the server. It blocks until the handshake completes or fails.
		Open(ctx context.Context) error
		// Write queues m for sending. It fails once the connection is closed.
		Write(m Message) error
		// Close tears the connection down. It is safe to call more than once.
		Close()
		// CloseErr explains why the connection closed.
		CloseErr() error
		// CloseChan is closed when the connection goes away, for any reason.
		CloseChan() CloseChan
	}

	ConnectionFactory func(params OpenConnectionParams, recv chan<- Message) Connection
)
