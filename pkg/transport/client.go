package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hololinked-dev/hololinked-go/pkg/codec"
	"github.com/hololinked-dev/hololinked-go/pkg/dispatch"
	"github.com/hololinked-dev/hololinked-go/pkg/log"
	"github.com/hololinked-dev/hololinked-go/pkg/wire"
)

// Client connection defaults.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Client errors.
var (
	// ErrClientClosed indicates the client connection is closed.
	ErrClientClosed = errors.New("client connection closed")

	// ErrAlreadyConnected indicates a duplicate Dial on the same client.
	ErrAlreadyConnected = errors.New("already connected")
)

// ConnState represents the client connection state.
type ConnState int32

const (
	// StateDisconnected means no connection exists.
	StateDisconnected ConnState = 0
	// StateConnecting means a connection attempt is in progress.
	StateConnecting ConnState = 1
	// StateConnected means the Hello handshake completed.
	StateConnected ConnState = 2
	// StateClosing means the connection is shutting down.
	StateClosing ConnState = 3
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// StatusError is returned when a response carries a non-success status.
type StatusError struct {
	Status  wire.Status
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// EventHandler receives event pushes for a subscription.
// Handlers run on the connection's read goroutine and should return
// quickly; deliveries for the same subscription arrive in seq order.
type EventHandler func(frame *wire.Event)

// ClientConfig configures a client connection to a Thing server.
type ClientConfig struct {
	// Address of the server (host:port).
	Address string

	// ClientID identifies this client in the Hello envelope.
	ClientID string

	// Codec is the requested payload codec tag (default "json").
	// The server may answer with a different codec; the negotiated one
	// wins on both sides.
	Codec string

	// TLS contains optional TLS settings. Plain TCP when nil.
	TLS *TLSConfig

	// MaxMessageSize is the maximum envelope size (default: 64KB).
	MaxMessageSize uint32

	// ConnectTimeout bounds dialing plus the Hello handshake.
	ConnectTimeout time.Duration

	// RequestTimeout is the default per-request deadline when the
	// caller's context has none.
	RequestTimeout time.Duration

	// KeepAlive configures liveness probing. Zero fields take defaults.
	KeepAlive KeepAliveConfig

	// DisableKeepAlive turns off liveness probing.
	DisableKeepAlive bool

	// Codecs is the payload codec registry (default codec.Default).
	Codecs *codec.Registry

	// Trace receives protocol trace events (optional).
	Trace log.Logger

	// OnDisconnect is called once when the connection drops, with the
	// error that caused it (nil on clean close).
	OnDisconnect func(err error)
}

// Client is a connection to a Thing server. It correlates responses with
// requests by message id and demultiplexes event pushes to subscription
// handlers. Safe for concurrent use.
type Client struct {
	config ClientConfig

	conn   net.Conn
	framer *Framer

	// Negotiated during the Hello handshake.
	codec    codec.Codec
	serverID string

	state  atomic.Int32
	nextID atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan *wire.Response

	subsMu sync.RWMutex
	subs   map[string]EventHandler

	keepAlive *KeepAlive

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce  sync.Once
	closeErr   error
	disconnect sync.Once
}

// Dial connects to a Thing server and performs the Hello handshake.
func Dial(ctx context.Context, config ClientConfig) (*Client, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if config.Codec == "" {
		config.Codec = codec.TagJSON
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.Codecs == nil {
		config.Codecs = codec.Default
	}

	c := &Client{
		config:  config,
		pending: make(map[uint64]chan *wire.Response),
		subs:    make(map[string]EventHandler),
	}
	c.state.Store(int32(StateConnecting))

	dialCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	dialer := &net.Dialer{}
	if config.TLS != nil {
		tlsConf, cfgErr := NewClientTLSConfig(config.TLS)
		if cfgErr != nil {
			return nil, cfgErr
		}
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConf}
		conn, err = tlsDialer.DialContext(dialCtx, "tcp", config.Address)
	} else {
		conn, err = dialer.DialContext(dialCtx, "tcp", config.Address)
	}
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return nil, fmt.Errorf("failed to dial %s: %w", config.Address, err)
	}

	c.conn = conn
	c.framer = NewFramerWithMaxSize(conn, config.MaxMessageSize)
	if config.Trace != nil {
		c.framer.SetLogger(config.Trace, config.ClientID)
	}

	if err := c.handshake(); err != nil {
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		return nil, err
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.state.Store(int32(StateConnected))

	c.wg.Add(1)
	go c.readLoop()

	if !config.DisableKeepAlive {
		c.keepAlive = NewKeepAlive(config.KeepAlive, c.sendPing, func() {
			c.fail(fmt.Errorf("keep-alive timeout"))
		})
		c.keepAlive.Start(c.ctx)
	}

	return c, nil
}

// handshake sends Hello and reads the HelloAck under the connect deadline.
func (c *Client) handshake() error {
	if err := c.conn.SetDeadline(time.Now().Add(c.config.ConnectTimeout)); err != nil {
		return err
	}

	hello, err := wire.EncodeHello(&wire.Hello{
		ClientID: c.config.ClientID,
		Codec:    c.config.Codec,
	})
	if err != nil {
		return err
	}
	if err := c.framer.WriteFrame(hello); err != nil {
		return fmt.Errorf("failed to send hello: %w", err)
	}

	data, err := c.framer.ReadFrame()
	if err != nil {
		return fmt.Errorf("failed to read hello ack: %w", err)
	}
	ack, err := wire.DecodeHelloAck(data)
	if err != nil {
		return err
	}

	// The server has the last word on the codec.
	c.codec, err = c.config.Codecs.Lookup(ack.Codec)
	if err != nil {
		return fmt.Errorf("server chose unsupported codec %q", ack.Codec)
	}
	c.serverID = ack.ServerID

	return c.conn.SetDeadline(time.Time{})
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// ServerID returns the server identifier from the HelloAck.
func (c *Client) ServerID() string {
	return c.serverID
}

// Codec returns the negotiated payload codec.
func (c *Client) Codec() codec.Codec {
	return c.codec
}

// Close closes the connection gracefully.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))

		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}

		// Best-effort close envelope; the peer acks and drops the
		// connection.
		if data, err := wire.EncodeControl(&wire.Control{Type: wire.MessageTypeClose}); err == nil {
			_ = c.framer.WriteFrame(data)
		}

		c.cancel()
		c.closeErr = c.conn.Close()
		c.wg.Wait()

		c.state.Store(int32(StateDisconnected))
		c.failPending(ErrClientClosed)
		c.notifyDisconnect(nil)
	})
	return c.closeErr
}

// fail tears the connection down after an unrecoverable error.
func (c *Client) fail(err error) {
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateClosing)) {
		return
	}
	if c.keepAlive != nil {
		c.keepAlive.Stop()
	}
	c.cancel()
	c.conn.Close()
	c.state.Store(int32(StateDisconnected))
	c.failPending(err)
	c.notifyDisconnect(err)
}

func (c *Client) notifyDisconnect(err error) {
	c.disconnect.Do(func() {
		if c.config.OnDisconnect != nil {
			c.config.OnDisconnect(err)
		}
	})
}

// failPending unblocks all waiters with no response.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *Client) sendPing(seq uint32) error {
	data, err := wire.EncodeControl(&wire.Control{
		Type:     wire.MessageTypePing,
		Sequence: seq,
	})
	if err != nil {
		return err
	}
	return c.framer.WriteFrame(data)
}

// readLoop reads envelopes and routes them to waiters and handlers.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.ctx.Done():
				// Clean shutdown
			default:
				go c.fail(fmt.Errorf("read failed: %w", err))
			}
			return
		}

		msgType, err := wire.PeekMessageType(data)
		if err != nil {
			continue
		}

		switch msgType {
		case wire.MessageTypeResponse:
			if resp, err := wire.DecodeResponse(data); err == nil {
				c.routeResponse(resp)
			}
		case wire.MessageTypeEvent:
			if frame, err := wire.DecodeEvent(data); err == nil {
				c.routeEvent(frame)
			}
		case wire.MessageTypePing:
			if ctrl, err := wire.DecodeControl(data); err == nil {
				if pong, err := wire.EncodeControl(&wire.Control{
					Type:     wire.MessageTypePong,
					Sequence: ctrl.Sequence,
				}); err == nil {
					_ = c.framer.WriteFrame(pong)
				}
			}
		case wire.MessageTypePong:
			if ctrl, err := wire.DecodeControl(data); err == nil && c.keepAlive != nil {
				c.keepAlive.PongReceived(ctrl.Sequence)
			}
		case wire.MessageTypeClose:
			// Server initiated close
			go c.fail(nil)
			return
		}
	}
}

func (c *Client) routeResponse(resp *wire.Response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- resp
	}
	// Unmatched responses (late after timeout) are dropped.
}

func (c *Client) routeEvent(frame *wire.Event) {
	c.subsMu.RLock()
	handler, ok := c.subs[frame.Subscription]
	c.subsMu.RUnlock()

	if ok {
		handler(frame)
	}
}

// Request sends a raw request envelope and waits for the response.
// The ID field is assigned by the client.
func (c *Client) Request(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if c.State() != StateConnected {
		return nil, ErrClientClosed
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	req.ID = c.nextID.Add(1)

	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan *wire.Response, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = ch
	c.pendingMu.Unlock()

	if err := c.framer.WriteFrame(data); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if req.Oneway {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
		return nil, nil
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClientClosed
		}
		return resp, nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

// call performs a request and decodes a successful payload into out.
// A nil out discards the payload; a non-success status becomes a
// StatusError.
func (c *Client) call(ctx context.Context, req *wire.Request, out any) error {
	resp, err := c.Request(ctx, req)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if !resp.IsSuccess() {
		return &StatusError{Status: resp.Status, Message: resp.Message}
	}
	if out == nil || len(resp.Payload) == 0 {
		return nil
	}
	return c.codec.Decode(resp.Payload, out)
}

// ReadProperty reads a property value.
func (c *Client) ReadProperty(ctx context.Context, thingID, name string, out any) error {
	return c.call(ctx, &wire.Request{
		ThingID:    thingID,
		Capability: name,
		Operation:  wire.OpReadProperty,
	}, out)
}

// WriteProperty writes a property value. When the server crops the value
// to the property bounds, the adjusted value is decoded into adjusted
// (pass nil to ignore it).
func (c *Client) WriteProperty(ctx context.Context, thingID, name string, value any, adjusted any) error {
	payload, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	return c.call(ctx, &wire.Request{
		ThingID:    thingID,
		Capability: name,
		Operation:  wire.OpWriteProperty,
		Payload:    payload,
	}, adjusted)
}

// InvokeAction invokes an action. args may be nil for parameterless
// actions; the result, if any, is decoded into out.
func (c *Client) InvokeAction(ctx context.Context, thingID, name string, args any, out any) error {
	req := &wire.Request{
		ThingID:    thingID,
		Capability: name,
		Operation:  wire.OpInvokeAction,
	}
	if args != nil {
		payload, err := c.codec.Encode(args)
		if err != nil {
			return err
		}
		req.Payload = payload
	}
	return c.call(ctx, req, out)
}

// ReadAllProperties reads every readable property of a Thing.
func (c *Client) ReadAllProperties(ctx context.Context, thingID string) (map[string]any, error) {
	var values map[string]any
	err := c.call(ctx, &wire.Request{
		ThingID:   thingID,
		Operation: wire.OpReadAllProperties,
	}, &values)
	return values, err
}

// Subscribe registers for event pushes and returns the subscription id.
func (c *Client) Subscribe(ctx context.Context, thingID, event string, handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler is required")
	}

	var result dispatch.SubscribeResult
	err := c.call(ctx, &wire.Request{
		ThingID:    thingID,
		Capability: event,
		Operation:  wire.OpSubscribeEvent,
	}, &result)
	if err != nil {
		return "", err
	}

	c.subsMu.Lock()
	c.subs[result.Subscription] = handler
	c.subsMu.Unlock()

	return result.Subscription, nil
}

// Unsubscribe cancels a subscription. Idempotent.
func (c *Client) Unsubscribe(ctx context.Context, thingID, event, subscription string) error {
	c.subsMu.Lock()
	delete(c.subs, subscription)
	c.subsMu.Unlock()

	payload, err := c.codec.Encode(dispatch.UnsubscribeRequest{Subscription: subscription})
	if err != nil {
		return err
	}
	return c.call(ctx, &wire.Request{
		ThingID:    thingID,
		Capability: event,
		Operation:  wire.OpUnsubscribeEvent,
		Payload:    payload,
	}, nil)
}
