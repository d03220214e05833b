package acceptor

import (
	"errors"
	"testing"

	"remote-call/invoke"
)

func TestAcceptLifecycle(t *testing.T) {
	a := New()
	if a.State() != StateNone {
		t.Fatalf("expect NONE, got %s", a.State())
	}

	registered := false
	if err := a.Accept(func() error {
		// Callbacks are wired while the state is ACCEPTING.
		if a.State() != StateAccepting {
			t.Errorf("expect ACCEPTING during register, got %s", a.State())
		}
		registered = true
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if !registered {
		t.Fatal("register callback not invoked")
	}
	if a.State() != StateOpen {
		t.Fatalf("expect OPEN, got %s", a.State())
	}
	if err := a.Inspect(); err != nil {
		t.Fatalf("expect ready in OPEN, got %v", err)
	}

	if err := a.BeginClose(); err != nil {
		t.Fatal(err)
	}
	if err := a.Inspect(); err == nil {
		t.Fatal("expect inspect failure in CLOSING")
	}
	if err := a.Drained(); err != nil {
		t.Fatal(err)
	}
	if a.State() != StateClosed {
		t.Fatalf("expect CLOSED, got %s", a.State())
	}
}

func TestDoubleAcceptIsDomainError(t *testing.T) {
	a := New()
	if err := a.Accept(nil); err != nil {
		t.Fatal(err)
	}

	err := a.Accept(nil)
	if err == nil {
		t.Fatal("expect error on second accept")
	}
	var domain *invoke.DomainError
	if !errors.As(err, &domain) {
		t.Fatalf("expect DomainError, got %T: %v", err, err)
	}

	// The originally accepted acceptor keeps working.
	if err := a.Inspect(); err != nil {
		t.Fatalf("acceptor broken by failed second accept: %v", err)
	}
}

func TestReject(t *testing.T) {
	a := New()
	destructed := false
	if err := a.Reject(func() { destructed = true }); err != nil {
		t.Fatal(err)
	}
	if !destructed {
		t.Fatal("destruct callback not invoked")
	}
	if a.State() != StateClosed {
		t.Fatalf("expect CLOSED, got %s", a.State())
	}

	var domain *invoke.DomainError
	if err := a.Reject(nil); !errors.As(err, &domain) {
		t.Fatalf("expect DomainError on reject after close, got %v", err)
	}
}

func TestCloseWhileClosing(t *testing.T) {
	a := New()
	if err := a.Accept(nil); err != nil {
		t.Fatal(err)
	}
	if err := a.BeginClose(); err != nil {
		t.Fatal(err)
	}

	// Second close observes CLOSING: runtime error, not domain error.
	err := a.BeginClose()
	var runtime *invoke.RuntimeError
	if !errors.As(err, &runtime) {
		t.Fatalf("expect RuntimeError on close while closing, got %T: %v", err, err)
	}

	if err := a.Drained(); err != nil {
		t.Fatal(err)
	}

	// Close after full close is a domain error again.
	var domain *invoke.DomainError
	if err := a.BeginClose(); !errors.As(err, &domain) {
		t.Fatalf("expect DomainError on close after close, got %v", err)
	}
}

func TestInspectDistinguishesStates(t *testing.T) {
	cases := []struct {
		state State
		ready bool
	}{
		{StateNone, false},
		{StateAccepting, false},
		{StateOpen, true},
		{StateRejecting, false},
		{StateClosing, false},
		{StateClosed, false},
		{StateOpening, false},
	}
	seen := make(map[string]State)
	for _, tc := range cases {
		err := Inspect(tc.state)
		if tc.ready && err != nil {
			t.Fatalf("state %s: expect ready, got %v", tc.state, err)
		}
		if !tc.ready {
			if err == nil {
				t.Fatalf("state %s: expect inspect error", tc.state)
			}
			// CLOSED, CLOSING and the not-yet-opened family must be
			// distinguishable by message.
			if prev, dup := seen[err.Error()]; dup && (tc.state == StateClosed || tc.state == StateClosing || prev == StateClosed || prev == StateClosing) {
				t.Fatalf("states %s and %s share inspect message %q", prev, tc.state, err.Error())
			}
			seen[err.Error()] = tc.state
		}
	}
}

func TestReopenCycle(t *testing.T) {
	a := New()
	if err := a.Accept(nil); err != nil {
		t.Fatal(err)
	}
	if err := a.BeginClose(); err != nil {
		t.Fatal(err)
	}
	if err := a.Drained(); err != nil {
		t.Fatal(err)
	}

	if err := a.Reopen(); err != nil {
		t.Fatal(err)
	}
	if a.State() != StateOpening {
		t.Fatalf("expect OPENING, got %s", a.State())
	}
	if err := a.Listening(); err != nil {
		t.Fatal(err)
	}
	if err := a.Inspect(); err != nil {
		t.Fatalf("expect ready after reopen, got %v", err)
	}
}
