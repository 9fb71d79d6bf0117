package reactor

import "sync/atomic"

// runState is the lifecycle of an IoContext.
//
// Idle (0) -> Running (1) -> Stopping (2) -> Stopped (3)
//
// Transitions use compare-and-swap; Stopped is terminal.
type runState uint32

const (
	stateIdle runState = iota
	stateRunning
	stateStopping
	stateStopped
)

func (s runState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateStopping:
		return "stopping"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// atomicState is a lock-free state holder, mirroring the teacher event
// loop's FastState but trimmed to the four states this reactor needs.
type atomicState struct {
	v atomic.Uint32
}

func newAtomicState(initial runState) *atomicState {
	s := &atomicState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *atomicState) Load() runState {
	return runState(s.v.Load())
}

func (s *atomicState) Store(v runState) {
	s.v.Store(uint32(v))
}

func (s *atomicState) CAS(from, to runState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
