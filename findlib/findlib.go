// Package findlib provides an API which is a wrapper around a hash-finder
// pool, delivering every match asynchronously on a notify channel.
package findlib

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"example.org/hashfinder/pool"
)

type FinderSearchBegin struct {
	ZeroRunLength uint8
	TargetMatches uint32
	Workers       int
}

type FinderMatch struct {
	ZeroRunLength uint8
	Candidate     uint32
	Digest        string
}

type FinderSearchComplete struct {
	ZeroRunLength uint8
	TargetMatches uint32
	Matches       int
	Assigned      uint64
}

// FindResult is one match delivered on the notify channel.
type FindResult struct {
	ZeroRunLength uint8
	Candidate     uint32
	Digest        string
}

// NotifyChannel is used for notifying the client about matches.
type NotifyChannel chan FindResult

var (
	ErrNotInitialized = errors.New("finder not initialized")
	ErrBusy           = errors.New("a search is already running")
	ErrIdle           = errors.New("no search started")
)

type nopRecorder struct{}

func (nopRecorder) RecordAction(interface{}) {}

// Finder runs one search at a time on a fresh pool.
type Finder struct {
	Notifications NotifyChannel

	mu      sync.Mutex
	cfg     pool.Config
	opts    []pool.Option
	log     *zap.Logger
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	fw      *forwarder
	halt    chan struct{}
	result  *pool.Result
	err     error
}

func NewFinder() *Finder {
	return &Finder{log: zap.NewNop()}
}

// Initialize sets the pool configuration used by every search and creates
// the notify channel with capacity chCapacity. opts are passed to each pool.
func (f *Finder) Initialize(cfg pool.Config, chCapacity uint, log *zap.Logger, opts ...pool.Option) (NotifyChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if log != nil {
		f.log = log
	}
	f.halt = make(chan struct{})
	f.fw = nil
	f.cfg = cfg
	f.opts = opts
	f.Notifications = make(NotifyChannel, chCapacity)
	return f.Notifications, nil
}

// Find starts a search for target candidates whose digest ends with n
// markers and returns without waiting for it. Matches arrive on the notify
// channel in the order the pool confirms them; Wait returns the outcome.
func (f *Finder) Find(ctx context.Context, recorder pool.Recorder, n uint8, target uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Notifications == nil {
		return ErrNotInitialized
	}
	if f.running {
		return ErrBusy
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	cfg := f.cfg
	cfg.ZeroRunLength = n
	cfg.TargetMatches = target

	var fw *forwarder
	opts := append([]pool.Option{
		pool.WithLogger(f.log),
		pool.WithRecorder(recorder),
		pool.WithMatchHandler(func(m pool.MatchRecord) {
			recorder.RecordAction(FinderMatch{ZeroRunLength: n, Candidate: m.Candidate, Digest: m.Digest})
			fw.push(FindResult{ZeroRunLength: n, Candidate: m.Candidate, Digest: m.Digest})
		}),
	}, f.opts...)

	p, err := pool.New(cfg, opts...)
	if err != nil {
		return err
	}
	fw = newForwarder(f.Notifications, f.halt, f.fw)
	f.fw = fw

	ctx, cancel := context.WithCancel(ctx)

	recorder.RecordAction(FinderSearchBegin{ZeroRunLength: n, TargetMatches: target, Workers: cfg.Workers})
	f.running = true
	f.cancel = cancel
	f.done = make(chan struct{})
	f.result, f.err = nil, nil
	go f.search(ctx, p, fw, recorder, n, target, f.done)
	return nil
}

func (f *Finder) search(ctx context.Context, p *pool.Pool, fw *forwarder, recorder pool.Recorder, n uint8, target uint32, done chan struct{}) {
	res, err := p.Run(ctx)
	fw.finish()
	recorder.RecordAction(FinderSearchComplete{
		ZeroRunLength: n,
		TargetMatches: target,
		Matches:       len(res.Matches),
		Assigned:      res.Assigned,
	})

	f.mu.Lock()
	f.result, f.err = res, err
	f.running = false
	f.cancel()
	f.mu.Unlock()
	close(done)
}

// Wait blocks until the current search finishes and returns its outcome.
func (f *Finder) Wait() (*pool.Result, error) {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	if done == nil {
		return nil, ErrIdle
	}
	<-done

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

// Close stops any running search, waits for it, and closes the notify
// channel. Matches already buffered in the channel stay readable; matches
// still queued behind a full channel are dropped.
func (f *Finder) Close() error {
	f.mu.Lock()
	if f.Notifications == nil {
		f.mu.Unlock()
		return ErrNotInitialized
	}
	if f.cancel != nil {
		f.cancel()
	}
	done := f.done
	f.mu.Unlock()

	if done != nil {
		<-done
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Notifications == nil {
		return nil
	}
	close(f.halt)
	if f.fw != nil {
		<-f.fw.done
		f.fw = nil
	}
	close(f.Notifications)
	f.Notifications = nil
	return nil
}

// forwarder moves matches from the pool's match handler to the notify
// channel. push never blocks, so a slow or absent reader cannot stall the
// controller. Forwarders of successive searches deliver in search order.
type forwarder struct {
	mu       sync.Mutex
	queue    []FindResult
	finished bool
	ready    chan struct{}
	halt     <-chan struct{}
	done     chan struct{}
}

func newForwarder(out NotifyChannel, halt <-chan struct{}, prev *forwarder) *forwarder {
	fw := &forwarder{
		ready: make(chan struct{}, 1),
		halt:  halt,
		done:  make(chan struct{}),
	}
	go fw.run(out, prev)
	return fw
}

func (fw *forwarder) push(r FindResult) {
	fw.mu.Lock()
	fw.queue = append(fw.queue, r)
	fw.mu.Unlock()
	fw.wake()
}

// finish marks the end of input; run exits once the queue is delivered.
func (fw *forwarder) finish() {
	fw.mu.Lock()
	fw.finished = true
	fw.mu.Unlock()
	fw.wake()
}

func (fw *forwarder) wake() {
	select {
	case fw.ready <- struct{}{}:
	default:
	}
}

func (fw *forwarder) run(out NotifyChannel, prev *forwarder) {
	defer close(fw.done)
	if prev != nil {
		<-prev.done
	}
	for {
		fw.mu.Lock()
		if len(fw.queue) == 0 {
			finished := fw.finished
			fw.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-fw.ready:
			case <-fw.halt:
				return
			}
			continue
		}
		next := fw.queue[0]
		fw.queue = fw.queue[1:]
		fw.mu.Unlock()

		select {
		case out <- next:
		case <-fw.halt:
			return
		}
	}
}
