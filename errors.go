package fleetws

import (
	"fmt"
	"net/url"

	"github.com/pkg/errors"
)

var (
	ErrConnectionClosed = errors.New("connection has been closed")
	ErrCannotConnect    = errors.New("connection cannot be established")
	ErrTerminated       = errors.New("connection terminated by client")
	ErrRateLimit        = errors.New("rate limit exceeded")
	ErrNotConnected     = errors.New("not connected")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnknownFrameType = errors.New("unknown frame type")
	ErrInvalidConfig    = errors.New("invalid config")
	ErrEmptyToken       = errors.New("empty token")
)

// ErrUnrecoverableConnection is reported once the reconnect ceiling has been
// reached. The manager stays disconnected until Connect is called again.
type ErrUnrecoverableConnection struct {
	err      error
	url      url.URL
	attempts int
}

func (e ErrUnrecoverableConnection) Error() string {
	return fmt.Sprintf("unrecoverable connection error after %d attempts: %s to %s",
		e.attempts, e.err, redactURL(e.url))
}

func (e ErrUnrecoverableConnection) Unwrap() error { return e.err }

func WrapErrorUnrecoverableConnection(err error, u url.URL, attempts int) *ErrUnrecoverableConnection {
	if err == nil {
		err = ErrConnectionClosed
	}
	return &ErrUnrecoverableConnection{
		err:      err,
		url:      u,
		attempts: attempts,
	}
}
