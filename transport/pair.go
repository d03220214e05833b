package transport

import (
	"sync"

	"remote-call/communicator"
	"remote-call/invoke"
)

// Pair wires two communicators into a symmetric in-process pseudo-transport:
// each side's send hook queues the record for the peer, with no state
// machine and a constant-ready check. Per direction, a single delivery
// goroutine takes records in send order: return records reach ReplyData
// inline, function records each start their own ReplyData goroutine.
//
// Used primarily by tests; it is also the reference rendition of the
// adapter contract with every transport concern stripped away.
func Pair(providerA, providerB any) (a, b *communicator.Communicator, shutdown func()) {
	a = communicator.New(providerA)
	b = communicator.New(providerB)

	ab := make(chan *invoke.Invoke, 128)
	ba := make(chan *invoke.Invoke, 128)
	done := make(chan struct{})
	var wg sync.WaitGroup

	deliver := func(queue chan *invoke.Invoke, dst *communicator.Communicator) {
		defer wg.Done()
		for {
			select {
			case inv := <-queue:
				if inv.IsFunction() {
					// Function records dispatch to their own goroutine, in
					// receive order, so a slow provider method never stalls
					// the returns flowing behind it.
					go dst.ReplyData(inv)
				} else {
					dst.ReplyData(inv)
				}
			case <-done:
				return
			}
		}
	}
	wg.Add(2)
	go deliver(ab, b)
	go deliver(ba, a)

	send := func(queue chan *invoke.Invoke) communicator.Sender {
		return func(inv *invoke.Invoke) error {
			// Hand off a copy so neither side mutates a shared record.
			clone := *inv
			select {
			case queue <- &clone:
				return nil
			case <-done:
				return invoke.Transportf(nil, "pair transport closed")
			}
		}
	}
	a.SetSender(send(ab))
	b.SetSender(send(ba))

	var once sync.Once
	shutdown = func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			a.Destruct(nil)
			b.Destruct(nil)
		})
	}
	return a, b, shutdown
}
