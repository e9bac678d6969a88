package pool

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Model selects the scheduling substrate the units of a pool run on.
type Model string

const (
	// Threads runs every unit on its own locked OS thread.
	Threads Model = "threads"
	// Tasks runs units as goroutines that yield to the scheduler whenever
	// a poll comes back empty.
	Tasks Model = "tasks"
)

// ParseModel validates a model name. The empty string selects Threads.
func ParseModel(s string) (Model, error) {
	switch Model(s) {
	case "", Threads:
		return Threads, nil
	case Tasks:
		return Tasks, nil
	default:
		return "", fmt.Errorf("unknown execution model %q", s)
	}
}

// poller adapts a unit's Poller to the substrate.
func (m Model) poller(p Poller) Poller {
	if m == Tasks {
		return yielding{p}
	}
	return p
}

// unit is a spawned worker or controller.
type unit struct {
	name string
	done chan struct{}
	err  error
}

// spawn starts fn as a new unit. A panic inside fn is recovered and turned
// into a *JoinError so wait never hangs on a crashed unit.
func (m Model) spawn(name string, fn func() error) *unit {
	u := &unit{name: name, done: make(chan struct{})}
	go func() {
		defer close(u.done)
		if m != Tasks {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		defer func() {
			if r := recover(); r != nil {
				u.err = &JoinError{Unit: name, Panic: r, Stack: debug.Stack()}
			}
		}()
		u.err = fn()
	}()
	return u
}

func (u *unit) wait() error {
	<-u.done
	return u.err
}
