package communicator

import (
	"context"
	"errors"
	"testing"

	"remote-call/invoke"
)

func TestDriverPathBuilding(t *testing.T) {
	c := New(nil)
	root := c.Driver()

	if root.Path() != "" {
		t.Fatalf("root path must be empty, got %q", root.Path())
	}

	d := root.Member("math").Member("vector").Member("add")
	if d.Path() != "math.vector.add" {
		t.Fatalf("expect math.vector.add, got %q", d.Path())
	}

	// Multi-segment form builds the same path.
	if got := root.Member("math", "vector", "add").Path(); got != "math.vector.add" {
		t.Fatalf("expect math.vector.add, got %q", got)
	}

	// Member never mutates the parent; siblings diverge from a shared prefix.
	math := root.Member("math")
	scalar := math.Member("scalar")
	vector := math.Member("vector")
	if math.Path() != "math" || scalar.Path() != "math.scalar" || vector.Path() != "math.vector" {
		t.Fatalf("prefix sharing broken: %q %q %q", math.Path(), scalar.Path(), vector.Path())
	}
}

func TestRootDriverNotCallable(t *testing.T) {
	c := New(nil, WithSender(func(inv *invoke.Invoke) error {
		t.Fatal("root call must not reach the wire")
		return nil
	}))

	err := c.Driver().Call(context.Background(), nil)
	var domain *invoke.DomainError
	if !errors.As(err, &domain) {
		t.Fatalf("expect DomainError for root call, got %v", err)
	}
}

func TestMultipleDriversShareCommunicator(t *testing.T) {
	server := New(&Calculator{})
	client := New(nil)
	link(client, server)

	d1 := client.Driver()
	d2 := client.Driver()

	var a, b int
	if err := d1.Member("plus").Call(context.Background(), &a, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := d2.Member("minus").Call(context.Background(), &b, 5, 3); err != nil {
		t.Fatal(err)
	}
	if a != 2 || b != 2 {
		t.Fatalf("expect 2 and 2, got %d and %d", a, b)
	}
}

func TestDriverDiscardsResult(t *testing.T) {
	server := New(&Calculator{})
	client := New(nil)
	link(client, server)

	// nil out: the return value is dropped, the call still settles.
	if err := client.Driver().Member("plus").Call(context.Background(), nil, 1, 2); err != nil {
		t.Fatal(err)
	}
	if client.PendingCount() != 0 {
		t.Fatal("discarded result left a pending entry")
	}
}
