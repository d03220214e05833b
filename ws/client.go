package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"remote-call/acceptor"
	"remote-call/codec"
	"remote-call/communicator"
	"remote-call/invoke"
	"remote-call/loadbalance"
	"remote-call/middleware"
	"remote-call/registry"
	"remote-call/transport"
)

// Client is the dialing end of a WebSocket connection. It carries its own
// communicator, so the link is fully bidirectional: give the client a
// provider and the server can invoke members on it too.
type Client struct {
	ws       *websocket.Conn
	acc      *acceptor.Acceptor
	comm     *communicator.Communicator
	codec    codec.Codec
	writeMu  sync.Mutex
	readDone chan struct{}
}

// ClientOption configures a Client before it connects.
type ClientOption func(*clientConfig)

type clientConfig struct {
	provider    any
	middlewares []middleware.Middleware
}

// WithProvider exposes a provider on the client side for server-initiated
// calls.
func WithProvider(provider any) ClientOption {
	return func(cfg *clientConfig) { cfg.provider = provider }
}

// WithMiddleware wraps the client's handling of inbound function records.
func WithMiddleware(mws ...middleware.Middleware) ClientOption {
	return func(cfg *clientConfig) { cfg.middlewares = mws }
}

// Dial connects to a server endpoint (e.g. "ws://127.0.0.1:8080/calc") and
// opens the acceptor once the socket is up.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	var cfg clientConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	dialer := websocket.Dialer{}
	wsConn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, invoke.Transportf(err, "dial %s failed", url)
	}

	c := &Client{
		ws:       wsConn,
		acc:      acceptor.New(),
		codec:    codec.GetCodec(codec.CodecTypeJSON),
		readDone: make(chan struct{}),
	}
	c.comm = communicator.New(cfg.provider,
		communicator.WithSender(c.send),
		communicator.WithReady(c.acc.Inspect),
		communicator.WithMiddleware(cfg.middlewares...),
	)

	if err := c.acc.Accept(func() error {
		go c.readLoop()
		return nil
	}); err != nil {
		wsConn.Close()
		return nil, err
	}
	return c, nil
}

// DialDiscover resolves a provider name through the registry, picks one
// endpoint with the balancer, and dials it.
func DialDiscover(ctx context.Context, reg registry.Registry, bal loadbalance.Balancer, provider string, opts ...ClientOption) (*Client, error) {
	endpoints, err := reg.Discover(ctx, provider)
	if err != nil {
		return nil, err
	}
	ep, err := bal.Pick(endpoints)
	if err != nil {
		return nil, err
	}
	return Dial(ctx, ep.URL, opts...)
}

// Driver returns a fresh proxy over the remote provider.
func (c *Client) Driver() *communicator.Driver {
	return c.comm.Driver()
}

// State exposes the acceptor state, read-only.
func (c *Client) State() acceptor.State {
	return c.acc.State()
}

func (c *Client) send(inv *invoke.Invoke) error {
	data, err := c.codec.Encode(inv)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// readLoop parses inbound frames in receive order and tears the connection
// down when the peer disappears or completes the close handshake. A locally
// initiated Close owns the teardown instead — the loop only signals that
// the socket has drained.
func (c *Client) readLoop() {
	defer close(c.readDone)
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.acc.State() == acceptor.StateOpen {
				// Peer-initiated close.
				c.acc.BeginClose()
				c.comm.Destruct(closeCause(err))
				c.ws.Close()
				c.acc.Drained()
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if _, ok := transport.Control(data); ok {
			continue
		}
		var inv invoke.Invoke
		if decodeErr := c.codec.Decode(data, &inv); decodeErr != nil {
			continue
		}
		if inv.IsFunction() {
			go func(record invoke.Invoke) {
				c.comm.ReplyData(&record)
			}(inv)
		} else {
			c.comm.ReplyData(&inv)
		}
	}
}

// Close performs the cooperative shutdown: send the close frame, wait for
// the peer's echo (bounded by ctx), drain the pending table, and land the
// acceptor in CLOSED. Closing a connection that is not OPEN fails — a
// second Close observes CLOSING or CLOSED and reports it rather than
// silently re-closing.
func (c *Client) Close(ctx context.Context) error {
	if err := c.acc.BeginClose(); err != nil {
		return err
	}

	c.writeMu.Lock()
	err := c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	if err != nil {
		// The socket is already broken; force the teardown.
		c.ws.Close()
	}

	select {
	case <-c.readDone:
	case <-ctx.Done():
		c.ws.Close()
		<-c.readDone
	}

	c.comm.Destruct(nil)
	c.ws.Close()
	return c.acc.Drained()
}
