package pool

import (
	"fmt"

	"example.org/hashfinder/digest"
)

// worker tests the candidates it is assigned and answers each Assign with
// exactly one report.
type worker struct {
	*endpoint
	n        uint8
	digest   digest.Func
	poller   Poller
	recorder Recorder
}

func (w *worker) run() error {
	for {
		msg, ok, gone := w.commands.tryRecv()
		if !ok {
			if gone {
				return fmt.Errorf("worker %d: command link: %w", w.id, ErrHangup)
			}
			w.poller.Idle()
			continue
		}
		w.poller.Reset()

		switch cmd := msg.(type) {
		case Assign:
			stopped, err := w.test(cmd.Candidate)
			if stopped || err != nil {
				return err
			}
		case Stop:
			w.recorder.RecordAction(WorkerStop{WorkerID: w.id})
			return nil
		default:
			return fmt.Errorf("worker %d: %T on command link: %w", w.id, msg, ErrProtocolViolation)
		}
	}
}

// test evaluates one candidate and reports it. stopped is true when the
// report could not be delivered because the controller already sent Stop.
func (w *worker) test(candidate uint32) (stopped bool, err error) {
	d := w.digest.Candidate(candidate)

	var r Report
	if digest.HasMarkerSuffix(d, w.n) {
		w.recorder.RecordAction(WorkerFound{WorkerID: w.id, Candidate: candidate, Digest: d})
		r = Found{WorkerID: w.id, Candidate: candidate, Digest: d}
	} else {
		w.recorder.RecordAction(WorkerNotFound{WorkerID: w.id, Candidate: candidate})
		r = NotFound{WorkerID: w.id, Candidate: candidate}
	}

	if err = w.reports.send(r); err == nil {
		return false, nil
	}
	// The controller closes report links only after sending Stop.
	if w.stopQueued() {
		return true, nil
	}
	return false, fmt.Errorf("worker %d: report candidate %d: %w", w.id, candidate, err)
}

// stopQueued reports whether the next queued command is Stop.
func (w *worker) stopQueued() bool {
	msg, ok, _ := w.commands.tryRecv()
	if !ok {
		return false
	}
	if _, stop := msg.(Stop); stop {
		w.recorder.RecordAction(WorkerStop{WorkerID: w.id})
		return true
	}
	return false
}
