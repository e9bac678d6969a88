// Package pool searches candidates 0, 1, 2, ... for digests that end with a
// run of marker characters, using a controller and a fixed set of workers
// that talk over per-worker command and report links.
//
// The controller gives every worker one candidate, then reassigns each
// worker the next candidate as soon as it reports. Once the target number of
// matches is confirmed it sends Stop to every worker and the pool joins all
// units, folding their errors into one.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"example.org/hashfinder/digest"
)

// DefaultWorkers is the worker count used when none is configured.
const DefaultWorkers = 10

// State is a step of the pool lifecycle. It only ever moves forward.
type State int32

const (
	Idle State = iota
	Distributing
	Draining
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Distributing:
		return "distributing"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config sizes and tunes a pool.
type Config struct {
	Workers       int
	ZeroRunLength uint8
	TargetMatches uint32

	Model              Model
	Poll               Strategy
	BackoffMaxInterval time.Duration
	BufferSize         int
}

// DefaultConfig returns a busy-polling thread pool of DefaultWorkers.
func DefaultConfig() Config {
	return Config{
		Workers:    DefaultWorkers,
		Model:      Threads,
		Poll:       BusyPoll,
		BufferSize: DefaultBufferSize,
	}
}

func (c Config) validate() error {
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("workers must be in 1..%d, got %d", MaxWorkers, c.Workers)
	}
	if _, err := ParseModel(string(c.Model)); err != nil {
		return err
	}
	if _, err := ParseStrategy(string(c.Poll)); err != nil {
		return err
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size must not be negative, got %d", c.BufferSize)
	}
	return nil
}

// Option customizes a Pool.
type Option func(*Pool)

// WithDigest replaces the default SHA-256 digest.
func WithDigest(fn digest.Func) Option {
	return func(p *Pool) { p.digest = fn }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithRecorder receives a trace action for every protocol step.
func WithRecorder(r Recorder) Option {
	return func(p *Pool) { p.recorder = r }
}

// WithMatchHandler is called from the controller for each match, in
// arrival order.
func WithMatchHandler(fn func(MatchRecord)) Option {
	return func(p *Pool) { p.onMatch = fn }
}

// WithOutput writes a "<candidate>, <digest>" line per match to w.
func WithOutput(w io.Writer) Option {
	return func(p *Pool) { p.out = w }
}

// Pool runs one search. It is not reusable.
type Pool struct {
	cfg      Config
	digest   digest.Func
	log      *zap.Logger
	recorder Recorder
	onMatch  func(MatchRecord)
	out      io.Writer

	state atomic.Int32
	used  atomic.Bool

	runWorker func(*endpoint) error
}

// New validates cfg and builds an idle pool.
func New(cfg Config, opts ...Option) (*Pool, error) {
	if cfg.Model == "" {
		cfg.Model = Threads
	}
	if cfg.Poll == "" {
		cfg.Poll = BusyPoll
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("pool config: %w", err)
	}

	p := &Pool{
		cfg:      cfg,
		digest:   digest.SHA256,
		log:      zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.digest == nil {
		p.digest = digest.SHA256
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	p.runWorker = p.work
	return p, nil
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	return State(p.state.Load())
}

func (p *Pool) setState(s State) {
	for {
		cur := p.state.Load()
		if int32(s) <= cur {
			return
		}
		if p.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// WorkerStats counts what one worker was given and what it found.
type WorkerStats struct {
	ID       WorkerID
	Assigned uint32
	Found    uint32
}

// Result is the outcome of a run.
type Result struct {
	// Matches holds the confirmed matches in arrival order.
	Matches []MatchRecord
	// Assigned is K: candidates 0..K-1 were handed out.
	Assigned uint64
	Workers  []WorkerStats
	Elapsed  time.Duration
}

// Candidates returns the matched candidates in arrival order.
func (r *Result) Candidates() []uint32 {
	out := make([]uint32, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Candidate
	}
	return out
}

// Run searches until TargetMatches matches are confirmed, then stops and
// joins every unit. The result is returned even when err is non-nil and
// holds whatever was confirmed before the failure.
func (p *Pool) Run(ctx context.Context) (*Result, error) {
	if !p.used.CompareAndSwap(false, true) {
		return nil, ErrPoolUsed
	}
	start := time.Now()
	p.log.Info("pool starting",
		zap.Int("workers", p.cfg.Workers),
		zap.Uint8("n", p.cfg.ZeroRunLength),
		zap.Uint32("f", p.cfg.TargetMatches),
		zap.String("model", string(p.cfg.Model)),
		zap.String("poll", string(p.cfg.Poll)))

	peers := make([]*peer, p.cfg.Workers)
	workers := make([]*unit, p.cfg.Workers)
	for i := range peers {
		e := &endpoint{
			id:       WorkerID(i),
			commands: newLink(p.cfg.BufferSize),
			reports:  newLink(p.cfg.BufferSize),
		}
		peers[i] = &peer{id: e.id, commands: e.commands, reports: e.reports}
		workers[i] = p.cfg.Model.spawn(fmt.Sprintf("worker %d", i), func() error {
			defer e.release()
			return p.runWorker(e)
		})
	}

	c := &controller{
		peers:    peers,
		target:   p.cfg.TargetMatches,
		poller:   p.newPoller(),
		log:      p.log,
		recorder: p.recorder,
		onMatch:  p.onMatch,
		out:      p.out,
		state:    p.setState,
	}
	ctrl := p.cfg.Model.spawn("controller", func() error { return c.run(ctx) })

	err := p.join(ctrl, workers)
	p.setState(Terminated)

	res := &Result{
		Matches:  c.matches,
		Assigned: c.assignedCount(),
		Workers:  make([]WorkerStats, len(peers)),
		Elapsed:  time.Since(start),
	}
	for i, pr := range peers {
		res.Workers[i] = WorkerStats{ID: pr.id, Assigned: pr.assigned, Found: pr.found}
	}
	p.log.Info("pool terminated",
		zap.Int("matches", len(res.Matches)),
		zap.Uint64("assigned", res.Assigned),
		zap.Duration("elapsed", res.Elapsed),
		zap.Error(err))
	return res, err
}

// join waits for every unit. Errors returned by units are aggregated. A
// crashed worker is logged and left out, since the controller either
// finished without it or already reported why it could not.
func (p *Pool) join(ctrl *unit, workers []*unit) error {
	var errs error
	for _, u := range append([]*unit{ctrl}, workers...) {
		err := u.wait()
		if err == nil {
			continue
		}
		var je *JoinError
		if errors.As(err, &je) {
			p.log.Error("unit crashed",
				zap.String("unit", je.Unit),
				zap.Any("panic", je.Panic),
				zap.ByteString("stack", je.Stack))
			if u != ctrl {
				continue
			}
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (p *Pool) newPoller() Poller {
	return p.cfg.Model.poller(p.cfg.Poll.newPoller(p.cfg.BackoffMaxInterval))
}

func (p *Pool) work(e *endpoint) error {
	w := &worker{
		endpoint: e,
		n:        p.cfg.ZeroRunLength,
		digest:   p.digest,
		poller:   p.newPoller(),
		recorder: p.recorder,
	}
	return w.run()
}
