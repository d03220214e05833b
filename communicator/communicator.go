// Package communicator implements the per-connection invocation engine.
//
// A Communicator multiplexes many concurrent in-flight calls over a single
// ordered message stream. The key insight: each outbound function record
// gets a unique uid, and the transport's inbound callback routes each return
// record to the correct caller via a pending table.
//
//	caller-1 ──SendInvoke(uid=0)──┐
//	caller-2 ──SendInvoke(uid=1)──┼──→ single transport ──→ peer provider
//	caller-3 ──SendInvoke(uid=2)──┘
//
//	ReplyData:  ←── return(uid=1) → pending[1] chan ← result → caller-2 wakes up
//
// The same engine serves both directions: inbound function records are
// resolved against the local provider and answered with a return record
// carrying the same uid.
package communicator

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"

	"remote-call/invoke"
	"remote-call/middleware"
)

// Sender is the transport's send hook. It must be synchronous with respect
// to the Communicator; any buffering is the transport's concern.
type Sender func(inv *invoke.Invoke) error

// ReadyFunc is the readiness delegate consulted before every outbound call.
// Acceptor-backed transports pass their acceptor's Inspect; transports
// without a state machine leave it nil (constant ready).
type ReadyFunc func() error

// Option configures a Communicator at construction.
type Option func(*Communicator)

// WithSender binds the transport's send hook.
func WithSender(s Sender) Option {
	return func(c *Communicator) { c.sender = s }
}

// WithReady installs the readiness delegate.
func WithReady(f ReadyFunc) Option {
	return func(c *Communicator) { c.ready = f }
}

// WithMiddleware wraps the provider-side handling of inbound function
// records. The chain wraps only member resolution and application; uid
// bookkeeping is untouched.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Communicator) { c.middlewares = mws }
}

// Communicator owns the pending-call table and the provider reference for
// the lifetime of one peer connection.
type Communicator struct {
	mu          sync.Mutex
	provider    any
	nextUID     uint32                  // Monotonically increasing, starts at 0 (protected by mu)
	pending     map[uint32]*pendingCall // uid → suspended caller
	sender      Sender
	ready       ReadyFunc
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	destructed  bool
}

// pendingCall is one suspended caller. The result channel is buffered so
// the reply path never blocks on a slow caller.
type pendingCall struct {
	uid  uint32
	done chan callResult
}

type callResult struct {
	value json.RawMessage
	err   error
}

// New creates a Communicator for the given provider (nil is allowed — any
// inbound function record then fails with a no-provider error).
func New(provider any, opts ...Option) *Communicator {
	c := &Communicator{
		provider: provider,
		pending:  make(map[uint32]*pendingCall),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Build the handler chain once at construction (not per-record).
	c.handler = middleware.Chain(c.middlewares...)(c.invokeLocal)
	return c
}

// SetSender binds the transport's send hook after construction. Transports
// that need the Communicator to exist before their wiring (the symmetric
// in-process pair) use this instead of WithSender.
func (c *Communicator) SetSender(s Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = s
}

// Driver returns a fresh proxy rooted at this Communicator with an empty
// member path. Multiple drivers may coexist.
func (c *Communicator) Driver() *Driver {
	return &Driver{comm: c}
}

// PendingCount reports the number of in-flight calls.
func (c *Communicator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// SendInvoke sends a function record and suspends until the matching return
// arrives, ctx is cancelled, or the communicator is destructed. The uid is
// assigned here: allocation and table insertion happen under one lock hold,
// so concurrent callers always receive distinct, strictly increasing uids.
//
// A cancelled ctx abandons the wait but deliberately leaves the table slot
// in place — the slot lives until a matching return or destruction, keeping
// the uid-match invariant intact.
func (c *Communicator) SendInvoke(ctx context.Context, inv *invoke.Invoke) (json.RawMessage, error) {
	c.mu.Lock()
	if c.destructed {
		c.mu.Unlock()
		return nil, invoke.Runtimef("communicator closed")
	}
	if c.ready != nil {
		if err := c.ready(); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	sender := c.sender
	if sender == nil {
		c.mu.Unlock()
		return nil, invoke.Runtimef("no transport bound to this communicator")
	}
	inv.UID = c.nextUID
	c.nextUID++
	pc := &pendingCall{uid: inv.UID, done: make(chan callResult, 1)}
	c.pending[pc.uid] = pc
	c.mu.Unlock()

	if err := sender(inv); err != nil {
		// Send-side transport failure: the entry is removed and the
		// suspension fails immediately.
		c.mu.Lock()
		delete(c.pending, pc.uid)
		c.mu.Unlock()
		return nil, invoke.Transportf(err, "send failed")
	}

	select {
	case res := <-pc.done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReplyData is the transport's inbound callback, invoked once per decoded
// record in delivery order.
//
// Function records are resolved against the local provider and answered
// with a return record for the same uid; errors during resolution or
// serialization become failure returns and never escape. Return records
// settle the matching pending entry; a return whose uid is unknown (already
// drained, already settled, or never sent) is silently dropped.
func (c *Communicator) ReplyData(inv *invoke.Invoke) {
	switch {
	case inv.IsFunction():
		ret := c.handler(context.Background(), inv)
		if ret == nil {
			return
		}
		c.mu.Lock()
		sender := c.sender
		c.mu.Unlock()
		if sender == nil {
			return
		}
		if err := sender(ret); err != nil {
			// The transport no longer accepts output (close raced the
			// reply); the reply is dropped.
			log.Printf("reply for uid %d dropped: %v", inv.UID, err)
		}

	case inv.IsReturn():
		c.mu.Lock()
		pc, ok := c.pending[inv.UID]
		if ok {
			delete(c.pending, inv.UID)
		}
		c.mu.Unlock()
		if !ok {
			return
		}
		if ev, failed := inv.FailureValue(); failed {
			pc.done <- callResult{err: invoke.Reconstruct(ev)}
		} else {
			pc.done <- callResult{value: inv.Value}
		}
	}
	// Records that are neither variant are malformed and should have been
	// dropped by the transport; ignore them here as well.
}

// Destruct marks the communicator as shut down and fails every pending call
// in insertion order — with cause if given, otherwise a generic close
// error. The provider reference is cleared. Afterwards the table is empty
// and late returns are dropped. Calling Destruct twice is a no-op on the
// table but still returns normally.
func (c *Communicator) Destruct(cause error) {
	c.mu.Lock()
	if c.destructed {
		c.mu.Unlock()
		return
	}
	c.destructed = true
	drained := make([]*pendingCall, 0, len(c.pending))
	for _, pc := range c.pending {
		drained = append(drained, pc)
	}
	c.pending = make(map[uint32]*pendingCall)
	c.provider = nil
	c.mu.Unlock()

	// uids are monotonic, so uid order is insertion order.
	sort.Slice(drained, func(i, j int) bool { return drained[i].uid < drained[j].uid })

	if cause == nil {
		cause = invoke.Transportf(nil, "communicator closed")
	}
	for _, pc := range drained {
		pc.done <- callResult{err: cause}
	}
}
