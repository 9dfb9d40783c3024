package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hololinked-dev/hololinked-go/pkg/codec"
	"github.com/hololinked-dev/hololinked-go/pkg/dispatch"
	"github.com/hololinked-dev/hololinked-go/pkg/log"
	"github.com/hololinked-dev/hololinked-go/pkg/wire"
)

// DefaultHelloTimeout is how long the server waits for the client's Hello.
const DefaultHelloTimeout = 10 * time.Second

// ServerConfig configures a Thing server.
type ServerConfig struct {
	// Address to listen on (e.g., ":7440" or "127.0.0.1:7440").
	Address string

	// ServerID identifies this server in HelloAck envelopes.
	ServerID string

	// TLS contains optional TLS settings. Connections use plain TCP
	// when nil.
	TLS *TLSConfig

	// MaxMessageSize is the maximum envelope size (default: 64KB).
	MaxMessageSize uint32

	// HelloTimeout bounds the wait for the client's Hello envelope.
	HelloTimeout time.Duration

	// Codecs is the payload codec registry used for Hello negotiation.
	// Defaults to codec.Default.
	Codecs *codec.Registry

	// Trace receives protocol trace events (optional).
	Trace log.Logger

	// Logger is the operational logger. Defaults to slog.Default().
	Logger *slog.Logger

	// OnConnect is called after the Hello handshake completes.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnError is called when a connection-level error occurs.
	OnError func(conn *ServerConn, err error)
}

// Server accepts framed connections and routes request envelopes to a
// dispatcher. Each connection negotiates its payload codec during the
// Hello handshake; event subscriptions made on a connection are released
// when it drops.
type Server struct {
	config     ServerConfig
	dispatcher *dispatch.Dispatcher
	codecs     *codec.Registry
	tlsConf    *tls.Config
	logger     *slog.Logger
	listener   net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new Thing server on top of the given dispatcher.
func NewServer(dispatcher *dispatch.Dispatcher, config ServerConfig) (*Server, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.HelloTimeout == 0 {
		config.HelloTimeout = DefaultHelloTimeout
	}
	if config.Codecs == nil {
		config.Codecs = codec.Default
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var tlsConf *tls.Config
	if config.TLS != nil {
		var err error
		tlsConf, err = NewServerTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	return &Server{
		config:     config,
		dispatcher: dispatcher,
		codecs:     config.Codecs,
		tlsConf:    tlsConf,
		logger:     config.Logger,
		conns:      make(map[*ServerConn]struct{}),
	}, nil
}

// Start starts the server and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if s.tlsConf != nil {
		listener = tls.NewListener(listener, s.tlsConf)
	}
	s.listener = listener

	s.running.Store(true)
	s.logger.Info("server listening", "addr", listener.Addr().String(), "tls", s.tlsConf != nil)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop stops the server and closes all connections.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	return nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// acceptLoop accepts incoming connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				if s.config.OnError != nil {
					s.config.OnError(nil, fmt.Errorf("accept error: %w", err))
				}
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs the Hello handshake and then the read loop for a
// single connection.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()

	framer := NewFramerWithMaxSize(conn, s.config.MaxMessageSize)
	if s.config.Trace != nil {
		framer.SetLogger(s.config.Trace, connID)
	}

	sconn := &ServerConn{
		conn:       conn,
		framer:     framer,
		server:     s,
		closeCh:    make(chan struct{}),
		remoteAddr: conn.RemoteAddr(),
		connID:     connID,
	}

	if err := sconn.handshake(); err != nil {
		s.logger.Debug("handshake failed", "conn_id", connID, "err", err)
		conn.Close()
		if s.config.OnError != nil {
			s.config.OnError(nil, fmt.Errorf("handshake failed: %w", err))
		}
		return
	}

	s.traceState(sconn, "", "CONNECTED")
	s.logger.Info("client connected",
		"conn_id", connID,
		"client_id", sconn.clientID,
		"codec", sconn.codec.Tag(),
		"remote", conn.RemoteAddr().String())

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()

	// Covers peer-initiated drops, where the failed read is the first
	// sign the connection is gone. Close is idempotent.
	sconn.Close()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	s.traceState(sconn, "CONNECTED", "DISCONNECTED")
	s.logger.Info("client disconnected", "conn_id", connID)

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) traceState(c *ServerConn, oldState, newState string) {
	if s.config.Trace == nil {
		return
	}
	s.config.Trace.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleServer,
		RemoteAddr:   c.remoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

// ServerConn represents a client connection to the server.
type ServerConn struct {
	conn       net.Conn
	framer     *Framer
	server     *Server
	closeCh    chan struct{}
	closeOnce  sync.Once
	remoteAddr net.Addr
	connID     string

	// Negotiated during the Hello handshake.
	codec    codec.Codec
	clientID string
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// ClientID returns the client identifier from the Hello envelope.
func (c *ServerConn) ClientID() string {
	return c.clientID
}

// Codec returns the negotiated payload codec.
func (c *ServerConn) Codec() codec.Codec {
	return c.codec
}

// Send sends an encoded envelope to the client.
// Thread-safe: the frame writer serializes concurrent writers.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return net.ErrClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Close closes the connection. Subscriptions owned by the connection are
// released here, at close detection, not when the read loop unwinds: the
// loop may still be blocked inside a dispatch and events must stop flowing
// to a dead peer immediately.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
		c.server.dispatcher.Publisher().ReleaseOwner(c.connID)
	})
	return err
}

// handshake reads the client's Hello, negotiates the payload codec, and
// answers with a HelloAck. A client that requests an unknown codec gets
// the fallback instead of a failed connection.
func (c *ServerConn) handshake() error {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.server.config.HelloTimeout)); err != nil {
		return err
	}

	data, err := c.framer.ReadFrame()
	if err != nil {
		return fmt.Errorf("failed to read hello: %w", err)
	}

	msgType, err := wire.PeekMessageType(data)
	if err != nil {
		return fmt.Errorf("malformed first envelope: %w", err)
	}
	if msgType != wire.MessageTypeHello {
		return fmt.Errorf("expected hello, got %s", msgType)
	}

	hello, err := wire.DecodeHello(data)
	if err != nil {
		return err
	}

	c.codec = c.server.codecs.Negotiate(hello.Codec)
	c.clientID = hello.ClientID

	ack, err := wire.EncodeHelloAck(&wire.HelloAck{
		ServerID: c.server.config.ServerID,
		Codec:    c.codec.Tag(),
	})
	if err != nil {
		return err
	}
	if err := c.framer.WriteFrame(ack); err != nil {
		return fmt.Errorf("failed to send hello ack: %w", err)
	}

	return c.conn.SetReadDeadline(time.Time{})
}

// readLoop reads envelopes from the connection until it closes.
func (c *ServerConn) readLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.server.ctx.Done():
			return
		default:
		}

		data, err := c.framer.ReadFrame()
		if err != nil {
			if c.server.config.OnError != nil && c.server.running.Load() {
				select {
				case <-c.closeCh:
					// Already closing, don't report
				default:
					c.server.config.OnError(c, err)
				}
			}
			return
		}

		msgType, err := wire.PeekMessageType(data)
		if err != nil {
			c.traceError(fmt.Sprintf("malformed envelope: %v", err))
			continue
		}

		switch {
		case msgType.IsControl():
			if ctrl, err := wire.DecodeControl(data); err == nil {
				c.handleControl(ctrl)
			}
		case msgType == wire.MessageTypeRequest:
			c.handleRequest(data)
		default:
			c.traceError(fmt.Sprintf("unexpected envelope type %s", msgType))
		}
	}
}

// handleRequest decodes and dispatches a request, then writes the response
// unless the request was one-way. A response that cannot be written because
// the connection dropped is discarded.
func (c *ServerConn) handleRequest(data []byte) {
	start := time.Now()

	req, err := wire.DecodeRequest(data)
	if err != nil {
		// Salvage the message id if possible so the client can
		// correlate the rejection.
		var partial wire.Request
		if wire.Unmarshal(data, &partial) == nil && partial.ID != 0 {
			c.sendResponse(&wire.Response{
				ID:      partial.ID,
				Status:  wire.StatusInvalidInput,
				Message: err.Error(),
			}, start)
			return
		}
		c.traceError(fmt.Sprintf("undecodable request: %v", err))
		return
	}

	c.traceMessage(req, nil, 0)

	resp := c.server.dispatcher.Dispatch(c.server.ctx, &dispatch.Envelope{
		Request: req,
		Codec:   c.codec,
		Origin:  c.connID,
		Deliver: c.deliverEvent,
	})

	if req.Oneway {
		return
	}
	c.sendResponse(resp, start)
}

func (c *ServerConn) sendResponse(resp *wire.Response, start time.Time) {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		c.traceError(fmt.Sprintf("failed to encode response: %v", err))
		return
	}
	if err := c.Send(data); err != nil {
		// Connection gone, response dropped
		return
	}
	c.traceMessage(nil, resp, time.Since(start))
}

// deliverEvent pushes an event envelope to the client. Used as the
// delivery sink for subscriptions made on this connection.
func (c *ServerConn) deliverEvent(frame *wire.Event) {
	data, err := wire.EncodeEvent(frame)
	if err != nil {
		c.traceError(fmt.Sprintf("failed to encode event: %v", err))
		return
	}
	_ = c.Send(data)
}

// handleControl processes ping/pong/close envelopes.
func (c *ServerConn) handleControl(ctrl *wire.Control) {
	c.traceControl(ctrl.Type, ctrl.Sequence, log.DirectionIn)

	switch ctrl.Type {
	case wire.MessageTypePing:
		if pong, err := wire.EncodeControl(&wire.Control{
			Type:     wire.MessageTypePong,
			Sequence: ctrl.Sequence,
		}); err == nil {
			c.Send(pong)
			c.traceControl(wire.MessageTypePong, ctrl.Sequence, log.DirectionOut)
		}

	case wire.MessageTypePong:
		// Clients drive keep-alive; nothing to do here.

	case wire.MessageTypeClose:
		if ack, err := wire.EncodeControl(&wire.Control{Type: wire.MessageTypeClose}); err == nil {
			c.Send(ack)
			c.traceControl(wire.MessageTypeClose, 0, log.DirectionOut)
		}
		c.Close()
	}
}

func (c *ServerConn) traceControl(msgType wire.MessageType, seq uint32, direction log.Direction) {
	if c.server.config.Trace == nil {
		return
	}
	c.server.config.Trace.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		LocalRole:    log.RoleServer,
		RemoteAddr:   c.remoteAddr.String(),
		ControlMsg: &log.ControlMsgEvent{
			Type:     msgType,
			Sequence: seq,
		},
	})
}

func (c *ServerConn) traceMessage(req *wire.Request, resp *wire.Response, processing time.Duration) {
	if c.server.config.Trace == nil {
		return
	}

	event := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleServer,
		RemoteAddr:   c.remoteAddr.String(),
	}

	if req != nil {
		op := req.Operation
		event.Direction = log.DirectionIn
		event.ThingID = req.ThingID
		event.Message = &log.MessageEvent{
			Type:        wire.MessageTypeRequest,
			MessageID:   req.ID,
			Operation:   &op,
			Capability:  req.Capability,
			PayloadSize: len(req.Payload),
		}
	} else {
		status := resp.Status
		event.Direction = log.DirectionOut
		event.Message = &log.MessageEvent{
			Type:           wire.MessageTypeResponse,
			MessageID:      resp.ID,
			Status:         &status,
			PayloadSize:    len(resp.Payload),
			ProcessingTime: &processing,
		}
	}

	c.server.config.Trace.Log(event)
}

func (c *ServerConn) traceError(msg string) {
	if c.server.config.Trace == nil {
		return
	}
	c.server.config.Trace.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		LocalRole:    log.RoleServer,
		RemoteAddr:   c.remoteAddr.String(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: msg,
		},
	})
}
