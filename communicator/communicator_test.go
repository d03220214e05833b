package communicator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remote-call/codec"
	"remote-call/invoke"
)

type Calculator struct{}

func (c *Calculator) Plus(a, b int) int  { return a + b }
func (c *Calculator) Minus(a, b int) int { return a - b }

func (c *Calculator) Bad() error {
	return invoke.Named("RangeError", "oops")
}

// link cross-wires two communicators through the JSON codec, so every test
// record takes a real encode/decode round trip.
func link(a, b *Communicator) {
	cdc := codec.GetCodec(codec.CodecTypeJSON)
	forward := func(dst *Communicator) Sender {
		return func(inv *invoke.Invoke) error {
			data, err := cdc.Encode(inv)
			if err != nil {
				return err
			}
			var decoded invoke.Invoke
			if err := cdc.Decode(data, &decoded); err != nil {
				return err
			}
			dst.ReplyData(&decoded)
			return nil
		}
	}
	a.SetSender(forward(b))
	b.SetSender(forward(a))
}

func TestRoundTrip(t *testing.T) {
	server := New(&Calculator{})
	client := New(nil)
	link(client, server)

	driver := client.Driver()

	var sum int
	if err := driver.Member("plus").Call(context.Background(), &sum, 2, 3); err != nil {
		t.Fatal(err)
	}
	if sum != 5 {
		t.Fatalf("plus(2,3): expect 5, got %d", sum)
	}

	var diff int
	if err := driver.Member("minus").Call(context.Background(), &diff, 7, 4); err != nil {
		t.Fatal(err)
	}
	if diff != 3 {
		t.Fatalf("minus(7,4): expect 3, got %d", diff)
	}

	if server.PendingCount() != 0 || client.PendingCount() != 0 {
		t.Fatal("pending tables not empty after settled calls")
	}
}

func TestUIDMonotonicFromZero(t *testing.T) {
	var seen []uint32
	c := New(nil, WithSender(func(inv *invoke.Invoke) error {
		seen = append(seen, inv.UID)
		return nil
	}))

	for i := 0; i < 5; i++ {
		inv, err := invoke.NewFunction("noop")
		if err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		c.SendInvoke(ctx, inv) // no reply ever arrives; the timeout abandons the wait
		cancel()
	}

	if len(seen) != 5 {
		t.Fatalf("expect 5 sends, got %d", len(seen))
	}
	for i, uid := range seen {
		if uid != uint32(i) {
			t.Fatalf("expect uid sequence 0..4, got %v", seen)
		}
	}

	// Abandoned waiters keep their slots until a return or destruction.
	if c.PendingCount() != 5 {
		t.Fatalf("expect 5 pending slots, got %d", c.PendingCount())
	}
}

func TestConcurrentCallsDistinctUIDs(t *testing.T) {
	server := New(&Calculator{})
	client := New(nil)
	link(client, server)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			var sum int
			if err := client.Driver().Member("plus").Call(context.Background(), &sum, n, n); err != nil {
				t.Errorf("call failed: %v", err)
				return
			}
			if sum != n*2 {
				t.Errorf("expect %d, got %d", n*2, sum)
			}
		}(i)
	}
	wg.Wait()

	if client.PendingCount() != 0 {
		t.Fatalf("expect empty table, got %d entries", client.PendingCount())
	}
}

func TestErrorRoundTrip(t *testing.T) {
	server := New(&Calculator{})
	client := New(nil)
	link(client, server)

	err := client.Driver().Member("bad").Call(context.Background(), nil)
	if err == nil {
		t.Fatal("expect remote failure")
	}

	var remote *invoke.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expect RemoteError, got %T: %v", err, err)
	}
	if remote.Name != "RangeError" {
		t.Fatalf("expect name RangeError, got %s", remote.Name)
	}
	if remote.Message != "oops" {
		t.Fatalf("expect message oops, got %s", remote.Message)
	}
	if remote.Stack == "" {
		t.Fatal("expect stack preserved across the wire")
	}
}

func TestNoProvider(t *testing.T) {
	server := New(nil) // no provider registered
	client := New(nil)
	link(client, server)

	err := client.Driver().Member("anything").Call(context.Background(), nil)
	var remote *invoke.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expect RemoteError, got %v", err)
	}
	if remote.Name != "NoProviderError" {
		t.Fatalf("expect NoProviderError, got %s", remote.Name)
	}
}

func TestDestructDrainsPending(t *testing.T) {
	// A sender that swallows records: calls stay pending forever.
	c := New(nil, WithSender(func(inv *invoke.Invoke) error { return nil }))

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			inv, _ := invoke.NewFunction("stalled")
			_, err := c.SendInvoke(context.Background(), inv)
			results <- err
		}()
	}

	// Wait for all three slots to be registered.
	deadline := time.Now().Add(time.Second)
	for c.PendingCount() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expect 3 pending, got %d", c.PendingCount())
		}
		time.Sleep(time.Millisecond)
	}

	cause := invoke.Transportf(errors.New("peer disappeared"), "connection lost")
	c.Destruct(cause)

	for i := 0; i < 3; i++ {
		err := <-results
		var transport *invoke.TransportError
		if !errors.As(err, &transport) {
			t.Fatalf("expect TransportError, got %v", err)
		}
	}
	if c.PendingCount() != 0 {
		t.Fatalf("expect empty table after destruct, got %d", c.PendingCount())
	}

	// New sends after destruction fail immediately.
	inv, _ := invoke.NewFunction("late")
	if _, err := c.SendInvoke(context.Background(), inv); err == nil {
		t.Fatal("expect send failure after destruct")
	}
}

func TestDestructIdempotent(t *testing.T) {
	c := New(nil, WithSender(func(inv *invoke.Invoke) error { return nil }))
	c.Destruct(nil)
	c.Destruct(nil) // must return normally, no-op on the table
	if c.PendingCount() != 0 {
		t.Fatal("expect empty table")
	}
}

func TestUnknownUIDReturnDropped(t *testing.T) {
	c := New(nil, WithSender(func(inv *invoke.Invoke) error { return nil }))

	ret, err := invoke.NewReturn(99, "stray")
	if err != nil {
		t.Fatal(err)
	}
	c.ReplyData(ret) // must not panic or mutate anything

	if c.PendingCount() != 0 {
		t.Fatal("stray return mutated the pending table")
	}
}

func TestReadyCheckGatesSend(t *testing.T) {
	notReady := invoke.Runtimef("connection not yet opened")
	c := New(nil,
		WithSender(func(inv *invoke.Invoke) error { t.Fatal("sender must not run"); return nil }),
		WithReady(func() error { return notReady }),
	)

	inv, _ := invoke.NewFunction("anything")
	_, err := c.SendInvoke(context.Background(), inv)
	if !errors.Is(err, notReady) {
		t.Fatalf("expect readiness error, got %v", err)
	}
	if c.PendingCount() != 0 {
		t.Fatal("failed readiness check must not insert a table entry")
	}
}

func TestSendFailureRemovesEntry(t *testing.T) {
	c := New(nil, WithSender(func(inv *invoke.Invoke) error {
		return errors.New("socket gone")
	}))

	inv, _ := invoke.NewFunction("anything")
	_, err := c.SendInvoke(context.Background(), inv)
	var transport *invoke.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expect TransportError, got %v", err)
	}
	if c.PendingCount() != 0 {
		t.Fatal("failed send must remove its table entry")
	}
}

func TestLateReturnAfterDestructDropped(t *testing.T) {
	c := New(nil, WithSender(func(inv *invoke.Invoke) error { return nil }))

	done := make(chan error, 1)
	go func() {
		inv, _ := invoke.NewFunction("stalled")
		_, err := c.SendInvoke(context.Background(), inv)
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for c.PendingCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("call never registered")
		}
		time.Sleep(time.Millisecond)
	}

	c.Destruct(nil)
	<-done

	// The return arrives after the drain: dropped without effect.
	ret, _ := invoke.NewReturn(0, "late")
	c.ReplyData(ret)
	if c.PendingCount() != 0 {
		t.Fatal("late return mutated the drained table")
	}
}
