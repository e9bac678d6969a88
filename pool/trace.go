package pool

// Recorder receives one action per protocol step. *tracing.Tracer from
// github.com/DistributedClocks/tracing satisfies it.
type Recorder interface {
	RecordAction(record interface{})
}

type nopRecorder struct{}

func (nopRecorder) RecordAction(interface{}) {}

type ControllerAssign struct {
	WorkerID  WorkerID
	Candidate uint32
}

type ControllerStop struct {
	WorkerID WorkerID
}

type ControllerMatch struct {
	WorkerID  WorkerID
	Candidate uint32
	Digest    string
}

type WorkerFound struct {
	WorkerID  WorkerID
	Candidate uint32
	Digest    string
}

type WorkerNotFound struct {
	WorkerID  WorkerID
	Candidate uint32
}

type WorkerStop struct {
	WorkerID WorkerID
}
