package net

import (
	"sync/atomic"
)

// State is the state of a Connection's transport.
type State uint32

const (
	// Connecting is the state of a connection dialing its relay.
	Connecting State = iota

	// Open is the state in which requests are transmitted.
	Open

	// Closing is the state of a connection being shut down on purpose.
	Closing

	// Closed is the state of a connection without a socket. It is either
	// waiting for the next reconnection attempt, shut down, or dead.
	Closed
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

type stateHolder struct {
	state State
}

func (s *stateHolder) getState() State {
	return State(atomic.LoadUint32((*uint32)(&s.state)))
}

func (s *stateHolder) setState(st State) {
	atomic.StoreUint32((*uint32)(&s.state), uint32(st))
}
