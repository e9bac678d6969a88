package pool

import (
	"fmt"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Poller decides what a receive loop does after finding nothing to read.
// Each unit owns its own Poller.
type Poller interface {
	// Idle is called after an empty poll.
	Idle()
	// Reset is called after a message was received.
	Reset()
}

// Strategy names a Poller implementation.
type Strategy string

const (
	// BusyPoll retries immediately. It is the default.
	BusyPoll Strategy = "busy"
	// YieldPoll gives up the processor between polls.
	YieldPoll Strategy = "yield"
	// BackoffPoll sleeps with bounded exponential backoff between polls.
	BackoffPoll Strategy = "backoff"
)

// DefaultBackoffMaxInterval bounds BackoffPoll sleeps.
const DefaultBackoffMaxInterval = time.Millisecond

// ParseStrategy validates a strategy name. The empty string selects BusyPoll.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", BusyPoll:
		return BusyPoll, nil
	case YieldPoll, BackoffPoll:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown poll strategy %q", s)
	}
}

func (s Strategy) newPoller(maxInterval time.Duration) Poller {
	switch s {
	case YieldPoll:
		return yieldPoller{}
	case BackoffPoll:
		return newBackoffPoller(maxInterval)
	default:
		return busyPoller{}
	}
}

type busyPoller struct{}

func (busyPoller) Idle()  {}
func (busyPoller) Reset() {}

type yieldPoller struct{}

func (yieldPoller) Idle()  { runtime.Gosched() }
func (yieldPoller) Reset() {}

type backoffPoller struct {
	b *backoff.ExponentialBackOff
}

func newBackoffPoller(maxInterval time.Duration) *backoffPoller {
	if maxInterval <= 0 {
		maxInterval = DefaultBackoffMaxInterval
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Microsecond
	if b.InitialInterval > maxInterval {
		b.InitialInterval = maxInterval
	}
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return &backoffPoller{b: b}
}

func (p *backoffPoller) Idle() {
	d := p.b.NextBackOff()
	if d == backoff.Stop {
		d = p.b.MaxInterval
	}
	time.Sleep(d)
}

func (p *backoffPoller) Reset() { p.b.Reset() }

// yielding wraps a Poller so every empty poll also yields.
type yielding struct {
	Poller
}

func (y yielding) Idle() {
	y.Poller.Idle()
	runtime.Gosched()
}
