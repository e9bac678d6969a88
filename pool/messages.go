package pool

import "fmt"

// WorkerID identifies a worker inside one pool, 0..Workers-1.
type WorkerID uint8

// MaxWorkers is the largest pool a WorkerID can address.
const MaxWorkers = 255

// Message is anything carried over a link. The set of variants is closed:
// Assign and Stop travel controller to worker, Found and NotFound travel
// worker to controller. Anything else on either link is a protocol
// violation.
type Message interface {
	message()
}

// Command is a Message sent to a worker.
type Command interface {
	Message
	command()
}

// Report is a Message sent to the controller.
type Report interface {
	Message
	report()
	From() WorkerID
}

// Assign asks a worker to test one candidate.
type Assign struct {
	Candidate uint32
}

// Stop tells a worker to exit. It is always the last command a worker gets.
type Stop struct{}

// Found reports a candidate whose digest ends with the marker run.
type Found struct {
	WorkerID  WorkerID
	Candidate uint32
	Digest    string
}

// NotFound reports a candidate whose digest does not match.
type NotFound struct {
	WorkerID  WorkerID
	Candidate uint32
}

func (Assign) message()   {}
func (Stop) message()     {}
func (Found) message()    {}
func (NotFound) message() {}

func (Assign) command() {}
func (Stop) command()   {}

func (Found) report()    {}
func (NotFound) report() {}

func (f Found) From() WorkerID    { return f.WorkerID }
func (n NotFound) From() WorkerID { return n.WorkerID }

func (a Assign) String() string { return fmt.Sprintf("Assign(%d)", a.Candidate) }
func (Stop) String() string     { return "Stop" }

// MatchRecord is one confirmed match, kept in the order reports arrived.
type MatchRecord struct {
	Candidate uint32
	Digest    string
}

func (m MatchRecord) String() string {
	return fmt.Sprintf("%d, %s", m.Candidate, m.Digest)
}
