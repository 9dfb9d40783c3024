package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hololinked-dev/hololinked-go/pkg/codec"
	"github.com/hololinked-dev/hololinked-go/pkg/events"
	"github.com/hololinked-dev/hololinked-go/pkg/thing"
	"github.com/hololinked-dev/hololinked-go/pkg/wire"
)

// Dispatcher errors.
var (
	ErrUnknownThing   = errors.New("unknown thing")
	ErrDuplicateThing = errors.New("thing already attached")
	ErrClosed         = errors.New("dispatcher is closed")
)

// DefaultQueueSize bounds each Thing's write/action queue.
const DefaultQueueSize = 32

// Observer receives per-request metrics notifications. May block briefly
// but is called on the request path.
type Observer interface {
	RequestHandled(thingID string, op wire.Operation, status wire.Status, elapsed time.Duration)
}

// Options configures a Dispatcher.
type Options struct {
	// Timeout is the per-request deadline. On expiry the client gets a
	// Timeout envelope; the handler is not aborted and its late response
	// is dropped. Zero disables the deadline.
	Timeout time.Duration

	// QueueSize bounds each Thing's write/action queue. Zero selects
	// DefaultQueueSize. A full queue blocks acceptance, which backpressures
	// the transport reader.
	QueueSize int

	// Logger receives dispatch diagnostics. May be nil.
	Logger *slog.Logger

	// Observer receives per-request metrics. May be nil.
	Observer Observer
}

// Envelope is a decoded request together with its connection context.
type Envelope struct {
	Request *wire.Request

	// Codec is the payload codec the connection negotiated.
	Codec codec.Codec

	// Origin identifies the originating connection; it owns any
	// subscriptions created by this request.
	Origin string

	// Deliver receives event frames for subscriptions created by this
	// request. Required for subscribe operations.
	Deliver events.Delivery
}

// SubscribeResult is the payload of a successful subscribe response.
type SubscribeResult struct {
	Subscription string `json:"subscription" cbor:"subscription"`
	Event        string `json:"event" cbor:"event"`
}

// UnsubscribeRequest is the payload of an unsubscribe request.
type UnsubscribeRequest struct {
	Subscription string `json:"subscription" cbor:"subscription"`
}

// Dispatcher routes request envelopes to attached Things.
type Dispatcher struct {
	mu        sync.RWMutex
	runtimes  map[string]*runtime
	publisher *events.Publisher
	opts      Options
	closed    bool
}

// New creates a dispatcher delivering events through publisher.
func New(publisher *events.Publisher, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Dispatcher{
		runtimes:  make(map[string]*runtime),
		publisher: publisher,
		opts:      opts,
	}
}

// Attach seals a Thing, declares its events with the publisher, and starts
// its serialization worker.
func (d *Dispatcher) Attach(t *thing.Thing) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if _, ok := d.runtimes[t.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateThing, t.ID())
	}

	t.Seal()
	for _, name := range t.EventNames() {
		ev, err := t.Event(name)
		if err != nil {
			return err
		}
		if err := d.publisher.Declare(t.ID(), name, ev.Metadata().MinInterval); err != nil {
			return err
		}
	}

	r := newRuntime(t, d.opts.QueueSize, d.opts.Logger)
	d.runtimes[t.ID()] = r
	go r.worker()
	return nil
}

// Thing returns an attached Thing by id.
func (d *Dispatcher) Thing(id string) (*thing.Thing, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.runtimes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownThing, id)
	}
	return r.thing, nil
}

// ThingIDs returns the ids of all attached Things.
func (d *Dispatcher) ThingIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.runtimes))
	for id := range d.runtimes {
		ids = append(ids, id)
	}
	return ids
}

// Publisher returns the event publisher the dispatcher delivers through.
func (d *Dispatcher) Publisher() *events.Publisher {
	return d.publisher
}

// Dispatch routes one request envelope and returns exactly one response.
// It blocks until the response is ready or the per-request deadline
// expires. Transports suppress the response for oneway requests.
func (d *Dispatcher) Dispatch(ctx context.Context, env *Envelope) *wire.Response {
	start := time.Now()
	resp := d.dispatch(ctx, env)

	if d.opts.Observer != nil {
		d.opts.Observer.RequestHandled(env.Request.ThingID, env.Request.Operation, resp.Status, time.Since(start))
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, env *Envelope) *wire.Response {
	req := env.Request

	d.mu.RLock()
	r, ok := d.runtimes[req.ThingID]
	closed := d.closed
	d.mu.RUnlock()

	if closed {
		return errResponse(req.ID, wire.StatusInternalError, "dispatcher is closed")
	}
	if !ok {
		return errResponse(req.ID, wire.StatusNotFound, fmt.Sprintf("unknown thing %q", req.ThingID))
	}

	// Read-all addresses the whole Thing and unsubscribe is keyed on the
	// subscription id alone, so neither resolves a capability name.
	var cap *thing.Capability
	if req.Operation != wire.OpReadAllProperties && req.Operation != wire.OpUnsubscribeEvent {
		var err error
		cap, err = r.thing.Resolve(req.Capability)
		if err != nil {
			return errResponse(req.ID, wire.StatusNotFound, err.Error())
		}
		if want := operationKind(req.Operation); cap.Kind != want {
			return errResponse(req.ID, wire.StatusNotFound,
				fmt.Sprintf("capability %q is a %s, not a %s", req.Capability, cap.Kind, want))
		}
	}

	switch req.Operation {
	case wire.OpReadProperty, wire.OpReadAllProperties:
		return d.await(ctx, req, func() *wire.Response {
			return r.executeRead(ctx, env, cap)
		})

	case wire.OpSubscribeEvent:
		return d.await(ctx, req, func() *wire.Response {
			return r.subscribe(ctx, d.publisher, env, cap)
		})

	case wire.OpUnsubscribeEvent:
		return d.await(ctx, req, func() *wire.Response {
			return r.unsubscribe(d.publisher, env)
		})

	case wire.OpWriteProperty, wire.OpInvokeAction:
		return d.submit(ctx, r, env, cap)

	default:
		return errResponse(req.ID, wire.StatusNotFound, fmt.Sprintf("unsupported operation %d", req.Operation))
	}
}

// submit queues a write/action job on the Thing's worker and waits for its
// response in acceptance order.
func (d *Dispatcher) submit(ctx context.Context, r *runtime, env *Envelope, cap *thing.Capability) *wire.Response {
	req := env.Request
	j := &job{
		ctx:    ctx,
		env:    env,
		cap:    cap,
		result: make(chan *wire.Response, 1),
	}

	var deadline <-chan time.Time
	if d.opts.Timeout > 0 {
		timer := time.NewTimer(d.opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case r.queue <- j:
	case <-r.done:
		return errResponse(req.ID, wire.StatusInternalError, "runtime shutting down")
	case <-deadline:
		return errResponse(req.ID, wire.StatusTimeout, "request timed out before acceptance")
	case <-ctx.Done():
		return ctxResponse(req.ID, ctx)
	}

	select {
	case resp := <-j.result:
		return resp
	case <-deadline:
		// The handler is not aborted; its late response lands in the
		// buffered result channel and is dropped.
		return errResponse(req.ID, wire.StatusTimeout, "no handler response within deadline")
	case <-ctx.Done():
		return ctxResponse(req.ID, ctx)
	}
}

// await runs fn with the per-request deadline applied. Used for the
// concurrent (read/subscribe) paths.
func (d *Dispatcher) await(ctx context.Context, req *wire.Request, fn func() *wire.Response) *wire.Response {
	if d.opts.Timeout <= 0 && ctx.Done() == nil {
		return fn()
	}

	ch := make(chan *wire.Response, 1)
	go func() { ch <- fn() }()

	var deadline <-chan time.Time
	if d.opts.Timeout > 0 {
		timer := time.NewTimer(d.opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case resp := <-ch:
		return resp
	case <-deadline:
		return errResponse(req.ID, wire.StatusTimeout, "no handler response within deadline")
	case <-ctx.Done():
		return ctxResponse(req.ID, ctx)
	}
}

// Close shuts down all runtimes. Queued requests are drained with
// InternalError responses.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	runtimes := make([]*runtime, 0, len(d.runtimes))
	for _, r := range d.runtimes {
		runtimes = append(runtimes, r)
	}
	d.mu.Unlock()

	for _, r := range runtimes {
		r.stop()
	}
}

// operationKind maps a wire operation to the capability kind it targets.
func operationKind(op wire.Operation) thing.Kind {
	switch op {
	case wire.OpReadProperty, wire.OpWriteProperty, wire.OpReadAllProperties:
		return thing.KindProperty
	case wire.OpInvokeAction:
		return thing.KindAction
	case wire.OpSubscribeEvent, wire.OpUnsubscribeEvent:
		return thing.KindEvent
	default:
		return 0
	}
}

func errResponse(id uint64, status wire.Status, message string) *wire.Response {
	return &wire.Response{
		ID:      id,
		Status:  status,
		Message: message,
	}
}

// ctxResponse classifies a context failure: a deadline is a Timeout, a
// cancellation means the origin is gone and the response will be dropped.
func ctxResponse(id uint64, ctx context.Context) *wire.Response {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errResponse(id, wire.StatusTimeout, "no handler response within deadline")
	}
	return errResponse(id, wire.StatusTransportError, "request canceled")
}
