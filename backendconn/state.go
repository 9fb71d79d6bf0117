package backendconn

import "sync/atomic"

// ConnState is a Connection's wire lifecycle, per spec.md 4.4:
//
//	Disconnected -> Connecting -> Handshaking -> Ready -> Busy -> Ready -> ... -> Closing -> Closed
//
// Any state may transition directly to Closing on an unrecoverable error.
// Closed is terminal.
type ConnState uint32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateHandshaking
	StateReady
	StateBusy
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// atomicConnState is a lock-free state holder, the same CAS-based shape as
// reactor.atomicState, sized for the seven Connection states instead of the
// reactor's four.
type atomicConnState struct {
	v atomic.Uint32
}

func newAtomicConnState(initial ConnState) *atomicConnState {
	s := &atomicConnState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *atomicConnState) Load() ConnState   { return ConnState(s.v.Load()) }
func (s *atomicConnState) Store(v ConnState) { s.v.Store(uint32(v)) }
func (s *atomicConnState) CAS(from, to ConnState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
