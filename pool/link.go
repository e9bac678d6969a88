package pool

import (
	"fmt"
	"sync"
)

// DefaultBufferSize is the capacity of each link.
const DefaultBufferSize = 1024

// link is one direction of a worker's duplex channel. The receiver may close
// it, after which sends fail; the sender may hang it up, after which the
// receiver sees closed once the buffer is drained. The underlying channel is
// never closed so a late send cannot panic.
type link struct {
	ch chan Message

	closeOnce sync.Once
	closed    chan struct{}

	hangupOnce sync.Once
	hungUp     chan struct{}
}

func newLink(size int) *link {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &link{
		ch:     make(chan Message, size),
		closed: make(chan struct{}),
		hungUp: make(chan struct{}),
	}
}

// send delivers m without blocking on a closed receiver.
func (l *link) send(m Message) error {
	select {
	case <-l.closed:
		return fmt.Errorf("%v: %w", m, ErrSendFailure)
	default:
	}
	select {
	case l.ch <- m:
		return nil
	case <-l.closed:
		return fmt.Errorf("%v: %w", m, ErrSendFailure)
	}
}

// tryRecv never blocks. ok reports whether m is valid; gone reports that the
// sender hung up and nothing is left to read.
func (l *link) tryRecv() (m Message, ok bool, gone bool) {
	select {
	case m = <-l.ch:
		return m, true, false
	default:
	}
	select {
	case <-l.hungUp:
		select {
		case m = <-l.ch:
			return m, true, false
		default:
			return nil, false, true
		}
	default:
		return nil, false, false
	}
}

// close is called by the receiver.
func (l *link) close() {
	l.closeOnce.Do(func() { close(l.closed) })
}

// hangUp is called by the sender.
func (l *link) hangUp() {
	l.hangupOnce.Do(func() { close(l.hungUp) })
}

// endpoint is what a worker holds: its id plus the far ends of its two links.
type endpoint struct {
	id       WorkerID
	commands *link // inbound
	reports  *link // outbound
}

// release closes the worker's side of both links.
func (e *endpoint) release() {
	e.commands.close()
	e.reports.hangUp()
}
