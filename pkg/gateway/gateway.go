package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/hololinked-dev/hololinked-go/pkg/codec"
	"github.com/hololinked-dev/hololinked-go/pkg/dispatch"
	"github.com/hololinked-dev/hololinked-go/pkg/wire"
)

const (
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 5 * time.Second

	// DefaultReadTimeout is the HTTP server read timeout for non-streaming
	// requests.
	DefaultReadTimeout = 60 * time.Second
)

// Observer receives per-request notifications.
type Observer interface {
	HTTPRequestServed(method string, code int)
}

// Config configures the HTTP gateway.
type Config struct {
	// Address is the listen address, e.g. ":8080".
	Address string

	// Logger receives gateway diagnostics. May be nil.
	Logger *slog.Logger

	// Metrics is served at /metrics when set.
	Metrics http.Handler

	// Observer receives per-request counts. May be nil.
	Observer Observer

	// ShutdownTimeout bounds Stop. Zero selects DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Gateway exposes attached Things over HTTP. Payloads are JSON regardless
// of what the socket transport negotiates.
type Gateway struct {
	dispatcher *dispatch.Dispatcher
	config     Config
	logger     *slog.Logger
	router     *httprouter.Router
	server     *http.Server
	listener   net.Listener
	json       codec.Codec

	nextID atomic.Uint64
}

// New creates a gateway serving the dispatcher's Things.
func New(dispatcher *dispatch.Dispatcher, config Config) (*Gateway, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("gateway: address is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	jsonCodec, err := codec.Default.Lookup(codec.TagJSON)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		dispatcher: dispatcher,
		config:     config,
		logger:     config.Logger,
		router:     httprouter.New(),
		json:       jsonCodec,
	}
	g.setupRoutes()
	return g, nil
}

// setupRoutes configures the route table.
func (g *Gateway) setupRoutes() {
	g.router.GET("/things", g.handleThings)
	g.router.GET("/things/:id", g.handleDescribe)
	g.router.GET("/things/:id/properties", g.handleReadAll)
	g.router.GET("/things/:id/properties/:name", g.handleReadProperty)
	g.router.PUT("/things/:id/properties/:name", g.handleWriteProperty)
	g.router.POST("/things/:id/actions/:name", g.handleInvokeAction)
	g.router.GET("/things/:id/events/:name", g.handleEventStream)
	g.router.GET("/things/:id/ws", g.handleWebSocket)

	if g.config.Metrics != nil {
		g.router.Handler(http.MethodGet, "/metrics", g.config.Metrics)
	}
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	g.router.ServeHTTP(rec, r)

	if g.config.Observer != nil {
		g.config.Observer.HTTPRequestServed(r.Method, rec.code)
	}
}

// Start begins serving. It returns once the listener is bound.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.config.Address)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	g.listener = ln

	g.server = &http.Server{
		Handler:     g,
		ReadTimeout: DefaultReadTimeout,
	}

	go func() {
		g.logger.Info("gateway listening", "address", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Stop gracefully shuts the gateway down.
func (g *Gateway) Stop() error {
	if g.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.config.ShutdownTimeout)
	defer cancel()
	return g.server.Shutdown(ctx)
}

// dispatch routes one gateway request through the dispatcher. Streaming
// handlers pass their own origin so their subscriptions can be released
// as a unit; plain requests use the remote address.
func (g *Gateway) dispatch(ctx context.Context, origin string, req *wire.Request, deliver func(*wire.Event)) *wire.Response {
	req.Type = wire.MessageTypeRequest
	req.ID = g.nextID.Add(1)

	env := &dispatch.Envelope{
		Request: req,
		Codec:   g.json,
		Origin:  origin,
		Deliver: deliver,
	}
	return g.dispatcher.Dispatch(ctx, env)
}

// statusCode maps a response status to an HTTP status code.
func statusCode(s wire.Status) int {
	switch s {
	case wire.StatusSuccess:
		return http.StatusOK
	case wire.StatusNotFound:
		return http.StatusNotFound
	case wire.StatusInvalidInput:
		return http.StatusBadRequest
	case wire.StatusInvalidState:
		return http.StatusConflict
	case wire.StatusTimeout:
		return http.StatusGatewayTimeout
	case wire.StatusTransportError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the structured JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeResponse translates a dispatch response into an HTTP response.
func (g *Gateway) writeResponse(w http.ResponseWriter, resp *wire.Response) {
	if resp.Status != wire.StatusSuccess {
		g.writeError(w, resp.Status, resp.Message)
		return
	}

	if len(resp.Payload) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Payload)
}

func (g *Gateway) writeError(w http.ResponseWriter, status wire.Status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode(status))
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:   status.String(),
		Message: message,
	})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// statusRecorder captures the response code for the observer.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so streaming handlers work.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is needed for the WebSocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("gateway: response writer does not support hijacking")
	}
	return h.Hijack()
}
