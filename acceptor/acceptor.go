// Package acceptor implements the lifecycle state machine shared by every
// transport. Transports plug in via callbacks rather than subclassing: the
// state machine gates which operations are legal, the transport supplies
// what actually happens between transitions.
//
//	None ──Accept──▶ Accepting ──▶ Open ──BeginClose──▶ Closing ──Drained──▶ Closed
//	None ──Reject──▶ Rejecting ──Drained──▶ Closed
//	Closed ──Reopen──▶ Opening ──Listening──▶ Open   (server-side reuse)
package acceptor

import (
	"sync"

	"remote-call/invoke"
)

type State int32

const (
	StateNone State = iota
	StateAccepting
	StateOpen
	StateRejecting
	StateClosing
	StateClosed
	StateOpening
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateAccepting:
		return "ACCEPTING"
	case StateOpen:
		return "OPEN"
	case StateRejecting:
		return "REJECTING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateOpening:
		return "OPENING"
	default:
		return "UNKNOWN"
	}
}

// Inspect returns nil iff the state admits outbound traffic. The error
// distinguishes why not, so callers can report "not yet opened" apart from
// "already closed" and "closing in progress".
func Inspect(s State) error {
	switch s {
	case StateOpen:
		return nil
	case StateClosed:
		return invoke.Runtimef("connection already closed")
	case StateClosing:
		return invoke.Runtimef("connection close in progress")
	default:
		return invoke.Runtimef("connection not yet opened (state %s)", s)
	}
}

// Acceptor is the per-connection state machine. Its zero value is not
// usable; create with New.
type Acceptor struct {
	mu    sync.Mutex
	state State
}

func New() *Acceptor {
	return &Acceptor{state: StateNone}
}

// State returns the current state. Read-only observation; the state may
// change immediately after.
func (a *Acceptor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Inspect reports whether this acceptor currently admits outbound traffic.
// This is the readiness delegate acceptor-backed transports hand to their
// communicator.
func (a *Acceptor) Inspect() error {
	return Inspect(a.State())
}

// Accept transitions None → Accepting, runs register (the transport wires
// its message and close callbacks here), then transitions Accepting → Open.
// Any state other than None is a domain error. If register fails, the
// acceptor does not stay in Accepting: the state moves to Closed and the
// register error is returned.
func (a *Acceptor) Accept(register func() error) error {
	a.mu.Lock()
	if a.state != StateNone {
		state := a.state
		a.mu.Unlock()
		return invoke.Domainf("accept called in state %s, want NONE", state)
	}
	a.state = StateAccepting
	a.mu.Unlock()

	if register != nil {
		if err := register(); err != nil {
			a.mu.Lock()
			a.state = StateClosed
			a.mu.Unlock()
			return err
		}
	}

	a.mu.Lock()
	a.state = StateOpen
	a.mu.Unlock()
	return nil
}

// Reject transitions None → Rejecting, runs destruct (which resolves
// immediately on an empty pending table), then Rejecting → Closed.
func (a *Acceptor) Reject(destruct func()) error {
	a.mu.Lock()
	if a.state != StateNone {
		state := a.state
		a.mu.Unlock()
		return invoke.Domainf("reject called in state %s, want NONE", state)
	}
	a.state = StateRejecting
	a.mu.Unlock()

	if destruct != nil {
		destruct()
	}

	a.mu.Lock()
	a.state = StateClosed
	a.mu.Unlock()
	return nil
}

// BeginClose transitions Open → Closing. Closing on an acceptor that is
// already Closing is a runtime error (the suspension of the offending close
// fails); every other wrong state is a domain error. Both locally initiated
// and peer-initiated closes go through here.
func (a *Acceptor) BeginClose() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateOpen:
		a.state = StateClosing
		return nil
	case StateClosing:
		return invoke.Runtimef("close already in progress")
	default:
		return invoke.Domainf("close called in state %s, want OPEN", a.state)
	}
}

// Drained transitions Closing/Rejecting → Closed once the pending table is
// empty and the physical transport has confirmed its close.
func (a *Acceptor) Drained() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateClosing && a.state != StateRejecting {
		return invoke.Domainf("drained signalled in state %s, want CLOSING or REJECTING", a.state)
	}
	a.state = StateClosed
	return nil
}

// Reopen transitions Closed → Opening. Server-side only: an accepted slot
// may be reused for a fresh connection after a full close.
func (a *Acceptor) Reopen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateClosed {
		return invoke.Domainf("reopen called in state %s, want CLOSED", a.state)
	}
	a.state = StateOpening
	return nil
}

// Listening transitions Opening → Open once the reopened transport is
// listening again.
func (a *Acceptor) Listening() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateOpening {
		return invoke.Domainf("listening signalled in state %s, want OPENING", a.state)
	}
	a.state = StateOpen
	return nil
}
