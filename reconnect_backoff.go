package fleetws

import (
	"time"
)

type backoffCalculator func(attempts int) time.Duration

// LinearBackoff waits base*attempt before the attempt-th reconnect.
func LinearBackoff(base time.Duration) backoffCalculator {
	return func(attempts int) time.Duration {
		if attempts < 1 {
			attempts = 1
		}
		return base * time.Duration(attempts)
	}
}

// ReconnectPolicy bounds automatic reconnects after unexpected closes.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

func (p ReconnectPolicy) calculator() backoffCalculator {
	return LinearBackoff(p.BaseDelay)
}

type (
	stopper interface {
		Stop() bool
	}

	// scheduler runs f once after d. The returned stopper cancels it.
	scheduler interface {
		AfterFunc(d time.Duration, f func()) stopper
	}

	timeScheduler struct{}
)

func (timeScheduler) AfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}
