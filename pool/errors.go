package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation means a link carried a variant meant for the other
	// direction, or a report that does not answer the outstanding command.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrSendFailure means the receiving end of a link was already closed.
	ErrSendFailure = errors.New("send failed: receiver closed")

	// ErrHangup means the sending end of a link went away before the
	// protocol finished.
	ErrHangup = errors.New("link hung up")

	// ErrJoinFailure marks a unit that crashed instead of returning.
	ErrJoinFailure = errors.New("unit terminated abnormally")

	// ErrWorkersExhausted means every worker exited before the target count
	// was reached.
	ErrWorkersExhausted = errors.New("all workers exited before target was reached")

	// ErrSpaceExhausted means the 32-bit candidate space ran out.
	ErrSpaceExhausted = errors.New("candidate space exhausted")

	// ErrPoolUsed is returned by a second call to Run.
	ErrPoolUsed = errors.New("pool already run")
)

// JoinError describes a unit that panicked.
type JoinError struct {
	Unit  string
	Panic interface{}
	Stack []byte
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Unit, ErrJoinFailure, e.Panic)
}

func (e *JoinError) Unwrap() error {
	return ErrJoinFailure
}
