// A basic pool of dialed clients for one endpoint URL.
//
// The framework owns no reconnection policy — a closed connection stays
// closed — but callers that run many short call bursts against one endpoint
// can keep a handful of open clients around instead of paying the dial
// handshake each time. The pool uses a buffered channel as a natural FIFO
// queue; blocking on empty is built-in.
package ws

import (
	"context"
	"sync"

	"remote-call/acceptor"
	"remote-call/invoke"
)

// Pool manages reusable clients for a single endpoint URL.
type Pool struct {
	mu         sync.Mutex
	clients    chan *Client                   // Buffered channel as pool — FIFO, goroutine-safe
	url        string                         // Target endpoint
	maxClients int                            // Maximum number of clients
	curClients int                            // Currently dialed clients (may be < maxClients)
	factory    func(ctx context.Context) (*Client, error)
}

// NewPool creates a client pool with the given max size. Clients are dialed
// lazily — the pool starts empty and grows on demand.
func NewPool(url string, maxClients int, opts ...ClientOption) *Pool {
	return &Pool{
		clients:    make(chan *Client, maxClients),
		url:        url,
		maxClients: maxClients,
		factory: func(ctx context.Context) (*Client, error) {
			return Dial(ctx, url, opts...)
		},
	}
}

// Get retrieves a client from the pool.
// Strategy:
//  1. Try to get an existing client from the channel (non-blocking select)
//  2. If pool is empty but under limit, dial a new client
//  3. If pool is empty and at limit, block until one is returned
func (p *Pool) Get(ctx context.Context) (*Client, error) {
	select {
	case c := <-p.clients:
		if c.State() != acceptor.StateOpen {
			p.discard()
			return p.dialNew(ctx)
		}
		return c, nil
	default:
		p.mu.Lock()
		under := p.curClients < p.maxClients
		p.mu.Unlock()
		if under {
			return p.dialNew(ctx)
		}
		select {
		case c := <-p.clients:
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put returns a client to the pool. A client that is no longer open is
// closed out of the count and discarded.
func (p *Pool) Put(c *Client) {
	if c.State() != acceptor.StateOpen {
		p.discard()
		return
	}
	p.clients <- c
}

// Close shuts down the pool and closes all pooled clients.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.clients)
	var firstErr error
	for c := range p.clients {
		if err := c.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		p.curClients--
	}
	return firstErr
}

func (p *Pool) discard() {
	p.mu.Lock()
	p.curClients--
	p.mu.Unlock()
}

// dialNew dials a fresh client, bounded by maxClients.
func (p *Pool) dialNew(ctx context.Context) (*Client, error) {
	p.mu.Lock()
	if p.curClients >= p.maxClients {
		p.mu.Unlock()
		return nil, invoke.Runtimef("client pool exhausted")
	}
	p.curClients++
	p.mu.Unlock()

	c, err := p.factory(ctx)
	if err != nil {
		p.discard()
		return nil, err
	}
	return c, nil
}
