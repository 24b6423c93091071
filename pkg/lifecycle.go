package timetagger

import "sync"

type WorkerState int32

const (
	WorkerStopped WorkerState = iota
	WorkerStarting
	WorkerRunning
	WorkerStopping
)

func (s WorkerState) String() string {
	switch s {
	case WorkerStopped:
		return "Stopped"
	case WorkerStarting:
		return "Starting"
	case WorkerRunning:
		return "Running"
	case WorkerStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

type ReadoutState int32

const (
	ReadoutIdle ReadoutState = iota
	ReadoutStarting
	ReadoutActive
	ReadoutStopping
)

func (s ReadoutState) String() string {
	switch s {
	case ReadoutIdle:
		return "Idle"
	case ReadoutStarting:
		return "Starting"
	case ReadoutActive:
		return "Active"
	case ReadoutStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// lifecycle holds the worker and readout state machines. Both share one
// mutex so the polling goroutine can wait on either axis with a single
// condition variable. Every transition broadcasts.
type lifecycle struct {
	mu      sync.Mutex
	cond    *sync.Cond
	worker  WorkerState
	readout ReadoutState
}

func newLifecycle() *lifecycle {
	l := &lifecycle{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *lifecycle) states() (WorkerState, ReadoutState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.worker, l.readout
}

func (l *lifecycle) setWorker(s WorkerState) {
	l.mu.Lock()
	l.worker = s
	l.mu.Unlock()
	l.cond.Broadcast()
}

func (l *lifecycle) setReadout(s ReadoutState) {
	l.mu.Lock()
	l.readout = s
	l.mu.Unlock()
	l.cond.Broadcast()
}

// transitionReadout moves the readout axis to "to" only if it is currently
// in one of "from". It reports whether the transition happened.
func (l *lifecycle) transitionReadout(to ReadoutState, from ...ReadoutState) bool {
	l.mu.Lock()
	ok := false
	for _, f := range from {
		if l.readout == f {
			l.readout = to
			ok = true
			break
		}
	}
	l.mu.Unlock()
	if ok {
		l.cond.Broadcast()
	}
	return ok
}

func (l *lifecycle) transitionWorker(to WorkerState, from ...WorkerState) bool {
	l.mu.Lock()
	ok := false
	for _, f := range from {
		if l.worker == f {
			l.worker = to
			ok = true
			break
		}
	}
	l.mu.Unlock()
	if ok {
		l.cond.Broadcast()
	}
	return ok
}

// waitUntil blocks until done returns true. done is called with the lock
// held.
func (l *lifecycle) waitUntil(done func(WorkerState, ReadoutState) bool) (WorkerState, ReadoutState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for !done(l.worker, l.readout) {
		l.cond.Wait()
	}
	return l.worker, l.readout
}
