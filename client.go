package fleetws

import (
	"context"
)

type (
	// StreamClient is the behaviour of a position streaming session. None of
	// its methods block on network I/O.
	StreamClient interface {
		// Connect opens the stream with token. It is a no-op when a session
		// with the same token is already connected or connecting.
		Connect(token string)
		// ConnectWith resolves a token from p and connects with it.
		ConnectWith(ctx context.Context, p TokenProvider) error
		// Disconnect closes the stream on purpose, cancels any pending
		// reconnect and forgets the desired subscription set.
		Disconnect()
		// SetDesired replaces the whole set of tracked vehicle ids.
		SetDesired(ids ...string)
		// Unsubscribe forgets the desired set without notifying the server.
		Unsubscribe()
		// OnPositionUpdate registers h and returns its removal function.
		OnPositionUpdate(h PositionHandler) (remove func())
		// OnEvent registers h for lifecycle events of type t.
		OnEvent(t EventType, h EventHandler)
		// IsConnected reports whether the socket exists and is open.
		IsConnected() bool
		// Close disconnects and drops every registration.
		Close()
	}
)

var _ StreamClient = (*Manager)(nil)
