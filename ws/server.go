// Package ws binds communicators to WebSocket connections. Records travel
// as JSON text frames; lifecycle is driven by the acceptor state machine on
// both ends, with close codes surfaced into the destructor.
//
// Server side, one connection:
//
//	HTTP upgrade → provider chosen by URL path → Acceptor.Accept
//	  → readLoop (single goroutine parses frames in order)
//	    → function records: go ReplyData (parallel provider work)
//	    → return records: ReplyData inline
package ws

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"remote-call/acceptor"
	"remote-call/codec"
	"remote-call/communicator"
	"remote-call/invoke"
	"remote-call/middleware"
	"remote-call/registry"
	"remote-call/transport"
)

// CleanCloseCodes lists the close codes treated as a clean shutdown (the
// destructor runs without an error). The close-code discriminant inherited
// from older acceptors (code != 100) matches no documented WebSocket
// status; normal closure and going-away are what a cooperative peer sends.
var CleanCloseCodes = []int{websocket.CloseNormalClosure, websocket.CloseGoingAway}

// closeCause maps a read-loop error to the destructor's cause: nil for a
// clean close, a transport error otherwise.
func closeCause(err error) error {
	if websocket.IsCloseError(err, CleanCloseCodes...) {
		return nil
	}
	return invoke.Transportf(err, "connection lost")
}

// ServerConn is one accepted connection: a socket, its acceptor, and the
// communicator serving the provider selected by the upgrade path.
type ServerConn struct {
	ws      *websocket.Conn
	acc     *acceptor.Acceptor
	comm    *communicator.Communicator
	path    string
	writeMu sync.Mutex // Frames from concurrent repliers must not interleave
	codec   codec.Codec
}

// Path returns the HTTP upgrade URL path that selected this connection's
// provider.
func (c *ServerConn) Path() string {
	return c.path
}

// State exposes the acceptor state, read-only.
func (c *ServerConn) State() acceptor.State {
	return c.acc.State()
}

func (c *ServerConn) send(inv *invoke.Invoke) error {
	data, err := c.codec.Encode(inv)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Server accepts WebSocket connections and hands each one a communicator
// over the provider registered for its upgrade path.
type Server struct {
	mu          sync.Mutex
	providers   map[string]func() any // upgrade path → provider factory (fresh provider per connection)
	middlewares []middleware.Middleware
	upgrader    websocket.Upgrader
	listener    net.Listener
	conns       map[*ServerConn]struct{}
	wg          sync.WaitGroup // Tracks in-flight provider invocations for graceful shutdown
	shutdown    atomic.Bool    // Set during shutdown to suppress the listener-close error
	ad          registry.Advertisement

	// Weight and Version go out with every advertised endpoint. Weight
	// defaults to 1; balancers treat zero as draining, so an explicit
	// Weight is only needed for heterogeneous fleets.
	Weight  int
	Version string
}

func NewServer() *Server {
	return &Server{
		providers: make(map[string]func() any),
		conns:     make(map[*ServerConn]struct{}),
	}
}

// Use registers a middleware applied to every connection's inbound function
// records, in registration order.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Handle registers a provider factory for an upgrade path. The factory runs
// once per accepted connection, so per-connection provider state is
// possible; return a shared instance for stateless providers.
func (s *Server) Handle(path string, provider func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[path] = provider
}

// Listen binds the TCP listener without serving yet, so callers (and tests)
// can read the bound address before any connection arrives.
func (s *Server) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.listener = listener
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve runs the HTTP accept loop until Shutdown. When ListenAndServe was
// given a registry, each handled path has already been published there.
func (s *Server) Serve() error {
	err := http.Serve(s.listener, s)
	// During shutdown, closing the listener makes Serve return an error;
	// the flag distinguishes the intentional close from a real failure.
	if s.shutdown.Load() {
		return nil
	}
	return err
}

// ListenAndServe binds and serves in one call. advertiseBase (e.g.
// "ws://127.0.0.1:8080") and reg are optional: when both are given, every
// handled path is published as one advertisement before accepting — the
// whole server becomes discoverable in a single step, and a crash takes
// every path down together when the lease TTL lapses.
func (s *Server) ListenAndServe(address, advertiseBase string, reg registry.Registry) error {
	if err := s.Listen(address); err != nil {
		return err
	}
	if reg != nil {
		weight := s.Weight
		if weight == 0 {
			weight = 1
		}
		s.mu.Lock()
		endpoints := make(map[string]registry.Endpoint, len(s.providers))
		for path := range s.providers {
			endpoints[providerName(path)] = registry.Endpoint{
				URL:     advertiseBase + path,
				Weight:  weight,
				Version: s.Version,
			}
		}
		s.mu.Unlock()
		ad, err := reg.Advertise(context.Background(), endpoints, 10) // TTL = 10 seconds, KeepAlive renews
		if err != nil {
			return err
		}
		s.ad = ad
	}
	return s.Serve()
}

// providerName derives the registry key from an upgrade path.
func providerName(path string) string {
	return strings.Trim(path, "/")
}

// ServeHTTP upgrades one request. An unknown path is rejected before the
// upgrade; a known path gets a fresh acceptor, communicator, and provider.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	factory := s.providers[r.URL.Path]
	s.mu.Unlock()
	if factory == nil {
		http.Error(w, "no provider on this path", http.StatusNotFound)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := &ServerConn{
		ws:    wsConn,
		acc:   acceptor.New(),
		path:  r.URL.Path,
		codec: codec.GetCodec(codec.CodecTypeJSON),
	}
	conn.comm = communicator.New(factory(),
		communicator.WithSender(conn.send),
		communicator.WithReady(conn.acc.Inspect),
		communicator.WithMiddleware(s.middlewares...),
	)

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	if err := conn.acc.Accept(func() error {
		go s.readLoop(conn)
		return nil
	}); err != nil {
		wsConn.Close()
		s.untrack(conn)
	}
}

func (s *Server) untrack(conn *ServerConn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// readLoop parses inbound frames in receive order. Function records are
// dispatched to their own goroutines so a slow provider method never blocks
// the returns behind it; return records settle inline.
func (s *Server) readLoop(conn *ServerConn) {
	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			s.finish(conn, closeCause(err))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		// The WebSocket family closes via close frames; stray control
		// strings are intercepted here and never reach the communicator.
		if _, ok := transport.Control(data); ok {
			continue
		}
		var inv invoke.Invoke
		if decodeErr := conn.codec.Decode(data, &inv); decodeErr != nil {
			continue // Malformed payloads are dropped, not forwarded
		}
		if inv.IsFunction() {
			s.wg.Add(1)
			go func(record invoke.Invoke) {
				defer s.wg.Done()
				conn.comm.ReplyData(&record)
			}(inv)
		} else {
			conn.comm.ReplyData(&inv)
		}
	}
}

// finish tears one connection down exactly once: peer-initiated closes move
// the acceptor to CLOSING here, the pending table drains, and the acceptor
// lands in CLOSED.
func (s *Server) finish(conn *ServerConn, cause error) {
	if conn.acc.State() == acceptor.StateOpen {
		conn.acc.BeginClose()
	}
	conn.comm.Destruct(cause)
	conn.ws.Close()
	if st := conn.acc.State(); st == acceptor.StateClosing || st == acceptor.StateRejecting {
		conn.acc.Drained()
	}
	s.untrack(conn)
}

// Shutdown performs graceful shutdown:
//  1. Close the advertisement — revoking the lease withdraws every path at
//     once, so clients stop discovering this server before it stops serving
//  2. Set the shutdown flag, then close the listener
//  3. Close live connections cooperatively
//  4. Wait for in-flight provider invocations, bounded by timeout
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.ad != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		s.ad.Close(ctx)
		cancel()
	}

	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	conns := make([]*ServerConn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		conn.writeMu.Lock()
		conn.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.writeMu.Unlock()
		s.finish(conn, nil)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return invoke.Runtimef("timeout waiting for in-flight invocations to finish")
	}
}
