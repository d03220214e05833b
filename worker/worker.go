// Package worker binds communicators to byte-stream pipes — the transport
// family for parent/child process pairs and their in-process equivalents.
//
// Unlike the WebSocket family, a raw pipe has no close handshake and no
// guarantee the peer has attached its handler yet. Both gaps are covered by
// framed control strings: a READY round-trip before any record may be sent
// (upon receiving READY, echo READY back — the initiator thereby observes
// the peer's handler attachment), and a CLOSE message that triggers a
// cooperative shutdown on the receiving side.
package worker

import (
	"context"
	"io"
	"net"
	"sync"

	"remote-call/acceptor"
	"remote-call/codec"
	"remote-call/communicator"
	"remote-call/invoke"
	"remote-call/middleware"
	"remote-call/transport"
)

// Option configures an Endpoint before it attaches.
type Option func(*config)

type config struct {
	middlewares []middleware.Middleware
	onClose     func()
	codecType   codec.CodecType
}

// WithMiddleware wraps this endpoint's handling of inbound function records.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(cfg *config) { cfg.middlewares = mws }
}

// WithOnClose runs hook inside this endpoint's teardown, after the pending
// table has drained and before the pipe is released. A child endpoint uses
// it to flush state the parent expects to find after Join.
func WithOnClose(hook func()) Option {
	return func(cfg *config) { cfg.onClose = hook }
}

// WithCodec selects the record encoding inside frames. JSON is the default;
// the binary codec suits pipes where payload compactness matters.
func WithCodec(t codec.CodecType) Option {
	return func(cfg *config) { cfg.codecType = t }
}

// Endpoint is one end of a pipe-backed connection.
type Endpoint struct {
	rw        io.ReadWriteCloser
	acc       *acceptor.Acceptor
	comm      *communicator.Communicator
	codec     codec.Codec
	writeMu   sync.Mutex // Frames from concurrent repliers must not interleave
	ready     chan struct{}
	readyOnce sync.Once
	downOnce  sync.Once
	done      chan struct{}
	onClose   func()
}

// Attach wires a communicator over rw and announces READY. It returns as
// soon as the read loop is running; use WaitReady before the first call.
func Attach(rw io.ReadWriteCloser, provider any, opts ...Option) (*Endpoint, error) {
	cfg := config{codecType: codec.CodecTypeJSON}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Endpoint{
		rw:      rw,
		acc:     acceptor.New(),
		codec:   codec.GetCodec(cfg.codecType),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		onClose: cfg.onClose,
	}
	e.comm = communicator.New(provider,
		communicator.WithSender(e.send),
		communicator.WithReady(e.acc.Inspect),
		communicator.WithMiddleware(cfg.middlewares...),
	)

	if err := e.acc.Accept(func() error {
		go e.readLoop()
		return nil
	}); err != nil {
		return nil, err
	}
	// The initial READY goes out asynchronously: on an unbuffered pipe the
	// write blocks until the peer is reading, which may be after our Attach
	// returns.
	go e.sendControl(transport.ControlReady)
	return e, nil
}

// Pipe creates a connected parent/child endpoint pair over an in-process
// duplex pipe.
func Pipe(parentProvider, childProvider any) (parent, child *Endpoint, err error) {
	parentConn, childConn := net.Pipe()
	parent, err = Attach(parentConn, parentProvider)
	if err != nil {
		parentConn.Close()
		childConn.Close()
		return nil, nil, err
	}
	child, err = Attach(childConn, childProvider)
	if err != nil {
		parentConn.Close()
		childConn.Close()
		return nil, nil, err
	}
	return parent, child, nil
}

// Driver returns a fresh proxy over the peer's provider.
func (e *Endpoint) Driver() *communicator.Driver {
	return e.comm.Driver()
}

// State exposes the acceptor state, read-only.
func (e *Endpoint) State() acceptor.State {
	return e.acc.State()
}

// WaitReady blocks until the peer has confirmed its handler is attached.
// No record may be sent before this resolves.
func (e *Endpoint) WaitReady(ctx context.Context) error {
	select {
	case <-e.ready:
		return nil
	case <-e.done:
		return invoke.Runtimef("endpoint closed before peer became ready")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join blocks until this endpoint has fully shut down — the pending table
// drained, the close hook run, the pipe released.
func (e *Endpoint) Join() {
	<-e.done
}

func (e *Endpoint) send(inv *invoke.Invoke) error {
	data, err := e.codec.Encode(inv)
	if err != nil {
		return err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return transport.WriteFrame(e.rw, transport.FrameRecord, data)
}

func (e *Endpoint) sendControl(name string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return transport.WriteFrame(e.rw, transport.FrameControl, []byte(name))
}

// readLoop linearizes inbound deliveries: frames are parsed in receive
// order, control strings are intercepted before any record decode, and
// only decoded records reach the communicator.
func (e *Endpoint) readLoop() {
	for {
		kind, payload, err := transport.ReadFrame(e.rw)
		if err != nil {
			if e.acc.State() == acceptor.StateOpen {
				// Peer disappeared without a CLOSE.
				e.teardown(invoke.Transportf(err, "pipe broken"))
			} else {
				// Local close in progress; the pipe drained as expected.
				e.teardown(nil)
			}
			return
		}

		if kind == transport.FrameControl {
			name, ok := transport.Control(payload)
			if !ok {
				continue // Unknown control, dropped
			}
			switch name {
			case transport.ControlReady:
				first := false
				e.readyOnce.Do(func() {
					close(e.ready)
					first = true
				})
				if first {
					// Echo exactly once, so the initiator observes us.
					go e.sendControl(transport.ControlReady)
				}
			case transport.ControlClose:
				e.teardown(nil)
				return
			}
			continue
		}

		var inv invoke.Invoke
		if decodeErr := e.codec.Decode(payload, &inv); decodeErr != nil {
			continue // Malformed payloads are dropped, not forwarded
		}
		if inv.IsFunction() {
			go func(record invoke.Invoke) {
				e.comm.ReplyData(&record)
			}(inv)
		} else {
			e.comm.ReplyData(&inv)
		}
	}
}

// Close initiates the cooperative shutdown: CLOSE goes to the peer, the
// peer tears down and releases its pipe end, our read loop observes the
// drain and finishes the teardown. ctx bounds the wait; on expiry the pipe
// is forced shut. Closing an endpoint that is not OPEN fails.
func (e *Endpoint) Close(ctx context.Context) error {
	if err := e.acc.BeginClose(); err != nil {
		return err
	}
	e.sendControl(transport.ControlClose)

	select {
	case <-e.done:
	case <-ctx.Done():
		e.rw.Close()
		<-e.done
	}
	return nil
}

// teardown runs exactly once: drain the pending table, run the close hook,
// release the pipe, land the acceptor in CLOSED.
func (e *Endpoint) teardown(cause error) {
	e.downOnce.Do(func() {
		if e.acc.State() == acceptor.StateOpen {
			e.acc.BeginClose()
		}
		e.comm.Destruct(cause)
		if e.onClose != nil {
			e.onClose()
		}
		e.rw.Close()
		if st := e.acc.State(); st == acceptor.StateClosing || st == acceptor.StateRejecting {
			e.acc.Drained()
		}
		close(e.done)
	})
}
