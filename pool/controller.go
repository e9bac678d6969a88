package pool

import (
	"context"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"
)

// peer is the controller's view of one worker.
type peer struct {
	id       WorkerID
	commands *link // outbound
	reports  *link // inbound

	inFlight  bool
	candidate uint32
	stopped   bool
	retired   bool

	assigned uint32
	found    uint32
}

// controller hands out candidates, counts matches and runs the Stop
// handshake. It owns every peer; workers never see this state.
type controller struct {
	peers  []*peer
	target uint32

	poller   Poller
	log      *zap.Logger
	recorder Recorder
	onMatch  func(MatchRecord)
	out      io.Writer
	state    func(State)

	next    uint64
	matches []MatchRecord
}

func (c *controller) run(ctx context.Context) error {
	defer c.release()

	c.state(Distributing)
	if c.target > 0 {
		for _, p := range c.peers {
			if err := c.assign(p); err != nil {
				return c.abort(err)
			}
		}
	}

	c.state(Draining)
	for uint32(len(c.matches)) < c.target {
		if err := ctx.Err(); err != nil {
			return c.abort(err)
		}

		received, live := 0, 0
		for _, p := range c.peers {
			if p.retired {
				continue
			}
			msg, ok, gone := p.reports.tryRecv()
			if !ok {
				if gone {
					p.retired = true
					c.log.Warn("worker exited before stop",
						zap.Uint8("worker", uint8(p.id)),
						zap.Int("matches", len(c.matches)))
					continue
				}
				live++
				continue
			}
			live++
			received++
			if err := c.handle(p, msg); err != nil {
				return c.abort(err)
			}
			if uint32(len(c.matches)) == c.target {
				break
			}
		}

		if received > 0 {
			c.poller.Reset()
			continue
		}
		if live == 0 {
			return c.abort(fmt.Errorf("controller: %d of %d matches: %w",
				len(c.matches), c.target, ErrWorkersExhausted))
		}
		c.poller.Idle()
	}

	c.stopAll()
	return nil
}

func (c *controller) handle(p *peer, msg Message) error {
	r, ok := msg.(Report)
	if !ok {
		return fmt.Errorf("controller: %T on report link of worker %d: %w", msg, p.id, ErrProtocolViolation)
	}
	if r.From() != p.id {
		return fmt.Errorf("controller: report from worker %d on link of worker %d: %w", r.From(), p.id, ErrProtocolViolation)
	}

	switch r := r.(type) {
	case Found:
		if err := c.settle(p, r.Candidate); err != nil {
			return err
		}
		c.match(p, MatchRecord{Candidate: r.Candidate, Digest: r.Digest})
	case NotFound:
		if err := c.settle(p, r.Candidate); err != nil {
			return err
		}
	}

	if uint32(len(c.matches)) < c.target {
		return c.assign(p)
	}
	return nil
}

// settle checks that a report answers the outstanding Assign.
func (c *controller) settle(p *peer, candidate uint32) error {
	if !p.inFlight || p.candidate != candidate {
		return fmt.Errorf("controller: worker %d reported candidate %d it was not assigned: %w",
			p.id, candidate, ErrProtocolViolation)
	}
	p.inFlight = false
	return nil
}

func (c *controller) match(p *peer, m MatchRecord) {
	p.found++
	c.matches = append(c.matches, m)
	c.recorder.RecordAction(ControllerMatch{WorkerID: p.id, Candidate: m.Candidate, Digest: m.Digest})
	if c.out != nil {
		fmt.Fprintf(c.out, "%d, %s\n", m.Candidate, m.Digest)
	}
	if c.onMatch != nil {
		c.onMatch(m)
	}
}

func (c *controller) assign(p *peer) error {
	if c.next > math.MaxUint32 {
		return fmt.Errorf("controller: %w", ErrSpaceExhausted)
	}
	candidate := uint32(c.next)
	if err := p.commands.send(Assign{Candidate: candidate}); err != nil {
		return fmt.Errorf("controller: assign to worker %d: %w", p.id, err)
	}
	c.recorder.RecordAction(ControllerAssign{WorkerID: p.id, Candidate: candidate})
	c.next++
	p.assigned++
	p.inFlight = true
	p.candidate = candidate
	return nil
}

// stopAll sends the one Stop every worker gets. A worker that already
// exited cannot receive it, which is fine at this point.
func (c *controller) stopAll() {
	for _, p := range c.peers {
		if p.stopped {
			continue
		}
		p.stopped = true
		if err := p.commands.send(Stop{}); err != nil {
			c.log.Debug("stop not delivered",
				zap.Uint8("worker", uint8(p.id)),
				zap.Error(err))
			continue
		}
		c.recorder.RecordAction(ControllerStop{WorkerID: p.id})
	}
}

func (c *controller) abort(err error) error {
	c.log.Error("dispatch failed", zap.Error(err), zap.Int("matches", len(c.matches)))
	c.stopAll()
	return err
}

// release closes the controller's side of every link. It runs even if the
// controller panics, so workers never wait on a controller that is gone.
func (c *controller) release() {
	for _, p := range c.peers {
		p.commands.hangUp()
		p.reports.close()
	}
}

// assignedCount is K: candidates 0..K-1 were handed out.
func (c *controller) assignedCount() uint64 {
	return c.next
}
