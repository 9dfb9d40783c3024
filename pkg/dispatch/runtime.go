package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hololinked-dev/hololinked-go/pkg/events"
	"github.com/hololinked-dev/hololinked-go/pkg/thing"
	"github.com/hololinked-dev/hololinked-go/pkg/wire"
)

// job is one queued write/action request.
type job struct {
	ctx    context.Context
	env    *Envelope
	cap    *thing.Capability
	result chan *wire.Response
}

// runtime is the serialization domain for one Thing: a FIFO queue consumed
// by one worker goroutine for writes and actions, and a read-write lock
// that lets reads run concurrently while excluding in-flight writes.
type runtime struct {
	thing  *thing.Thing
	logger *slog.Logger

	queue chan *job
	done  chan struct{}
	once  sync.Once

	// rw separates concurrent reads from serialized writes. The state
	// machine check and the handler body run under the same side of the
	// lock, so the checked state is the state in effect during execution.
	rw sync.RWMutex
}

func newRuntime(t *thing.Thing, queueSize int, logger *slog.Logger) *runtime {
	return &runtime{
		thing:  t,
		logger: logger,
		queue:  make(chan *job, queueSize),
		done:   make(chan struct{}),
	}
}

// worker consumes the write/action queue one job at a time. Responses are
// produced in queue (acceptance) order. A panicking handler produces an
// InternalError response; the worker itself never dies.
func (r *runtime) worker() {
	for {
		select {
		case j := <-r.queue:
			j.result <- r.executeWrite(j)
		case <-r.done:
			r.drain()
			return
		}
	}
}

// drain answers every queued request with InternalError during shutdown.
func (r *runtime) drain() {
	for {
		select {
		case j := <-r.queue:
			j.result <- errResponse(j.env.Request.ID, wire.StatusInternalError, "runtime shutting down")
		default:
			return
		}
	}
}

func (r *runtime) stop() {
	r.once.Do(func() { close(r.done) })
}

// executeWrite runs one write/action job under the exclusive lock.
func (r *runtime) executeWrite(j *job) (resp *wire.Response) {
	req := j.env.Request
	defer func() {
		if rec := recover(); rec != nil {
			if r.logger != nil {
				r.logger.Error("handler panic",
					"thing", req.ThingID,
					"capability", req.Capability,
					"panic", rec)
			}
			resp = errResponse(req.ID, wire.StatusInternalError, fmt.Sprintf("handler panic: %v", rec))
		}
	}()

	r.rw.Lock()
	defer r.rw.Unlock()

	state, ok := r.checkState(j.cap)
	if !ok {
		return errResponse(req.ID, wire.StatusInvalidState,
			fmt.Sprintf("%s not allowed in state %s", req.Capability, state))
	}

	inv := thing.NewInvocation(j.ctx, r.thing, req.Capability, state, req.Payload, j.env.Codec)

	switch req.Operation {
	case wire.OpWriteProperty:
		return r.writeProperty(inv, req)
	case wire.OpInvokeAction:
		return r.invokeAction(inv, req)
	default:
		return errResponse(req.ID, wire.StatusInternalError, "non-write operation on write path")
	}
}

func (r *runtime) writeProperty(inv *thing.Invocation, req *wire.Request) *wire.Response {
	p, err := r.thing.Property(req.Capability)
	if err != nil {
		return errResponse(req.ID, wire.StatusNotFound, err.Error())
	}

	if len(req.Payload) == 0 {
		return errResponse(req.ID, wire.StatusInvalidInput, "property write requires a payload")
	}
	var value any
	if err := inv.Codec().Decode(req.Payload, &value); err != nil {
		return errResponse(req.ID, wire.StatusInvalidInput, fmt.Sprintf("payload decode failed: %v", err))
	}

	adjusted, err := p.Write(inv, value)
	if err != nil {
		return errResponse(req.ID, classifyPropertyError(err), err.Error())
	}

	if resp := r.applyTransition(inv, req); resp != nil {
		return resp
	}

	final := value
	if adjusted != nil {
		final = adjusted
	}
	r.thing.ValueChanged(req.Capability, final)

	resp := &wire.Response{ID: req.ID, Status: wire.StatusSuccess}
	if adjusted != nil {
		payload, err := inv.Codec().Encode(adjusted)
		if err != nil {
			return errResponse(req.ID, wire.StatusTransportError, fmt.Sprintf("response encode failed: %v", err))
		}
		resp.Payload = payload
	}
	return resp
}

func (r *runtime) invokeAction(inv *thing.Invocation, req *wire.Request) *wire.Response {
	a, err := r.thing.Action(req.Capability)
	if err != nil {
		return errResponse(req.ID, wire.StatusNotFound, err.Error())
	}

	result, err := a.Invoke(inv)
	if err != nil {
		return errResponse(req.ID, wire.StatusHandlerError, err.Error())
	}

	if resp := r.applyTransition(inv, req); resp != nil {
		return resp
	}

	resp := &wire.Response{ID: req.ID, Status: wire.StatusSuccess}
	if result != nil {
		payload, err := inv.Codec().Encode(result)
		if err != nil {
			return errResponse(req.ID, wire.StatusTransportError, fmt.Sprintf("response encode failed: %v", err))
		}
		resp.Payload = payload
	}
	return resp
}

// applyTransition applies the handler's requested state transition after a
// successful return. Returns a non-nil error response when the transition
// itself fails, which indicates a handler programming error.
func (r *runtime) applyTransition(inv *thing.Invocation, req *wire.Request) *wire.Response {
	to, ok := inv.RequestedTransition()
	if !ok {
		return nil
	}

	m := r.thing.Machine()
	if m == nil {
		return errResponse(req.ID, wire.StatusInternalError, "transition requested on stateless thing")
	}
	if err := m.Transition(to); err != nil {
		return errResponse(req.ID, wire.StatusInternalError, err.Error())
	}
	return nil
}

// executeRead serves a read under the shared lock, concurrently with other
// reads but never with an in-flight write.
func (r *runtime) executeRead(ctx context.Context, env *Envelope, cap *thing.Capability) (resp *wire.Response) {
	req := env.Request
	defer func() {
		if rec := recover(); rec != nil {
			if r.logger != nil {
				r.logger.Error("read handler panic",
					"thing", req.ThingID,
					"capability", req.Capability,
					"panic", rec)
			}
			resp = errResponse(req.ID, wire.StatusInternalError, fmt.Sprintf("handler panic: %v", rec))
		}
	}()

	r.rw.RLock()
	defer r.rw.RUnlock()

	if req.Operation == wire.OpReadAllProperties {
		inv := thing.NewInvocation(ctx, r.thing, "", r.thing.State(), nil, env.Codec)
		values, err := r.thing.ReadAllProperties(inv)
		if err != nil {
			return errResponse(req.ID, wire.StatusHandlerError, err.Error())
		}
		return encodeResult(req.ID, env, values)
	}

	state, ok := r.checkState(cap)
	if !ok {
		return errResponse(req.ID, wire.StatusInvalidState,
			fmt.Sprintf("%s not allowed in state %s", req.Capability, state))
	}

	p, err := r.thing.Property(req.Capability)
	if err != nil {
		return errResponse(req.ID, wire.StatusNotFound, err.Error())
	}

	inv := thing.NewInvocation(ctx, r.thing, req.Capability, state, req.Payload, env.Codec)
	value, err := p.Read(inv)
	if err != nil {
		return errResponse(req.ID, wire.StatusHandlerError, err.Error())
	}
	return encodeResult(req.ID, env, value)
}

// subscribe creates a subscription owned by the origin connection. Runs
// under the shared lock so the state check is consistent with writes.
func (r *runtime) subscribe(ctx context.Context, p *events.Publisher, env *Envelope, cap *thing.Capability) *wire.Response {
	req := env.Request

	r.rw.RLock()
	defer r.rw.RUnlock()

	state, ok := r.checkState(cap)
	if !ok {
		return errResponse(req.ID, wire.StatusInvalidState,
			fmt.Sprintf("%s not allowed in state %s", req.Capability, state))
	}
	if env.Deliver == nil {
		return errResponse(req.ID, wire.StatusInvalidInput, "connection does not accept event delivery")
	}

	id, err := p.Subscribe(req.ThingID, req.Capability, env.Origin, env.Codec, env.Deliver)
	if err != nil {
		if errors.Is(err, events.ErrUnknownEvent) {
			return errResponse(req.ID, wire.StatusNotFound, err.Error())
		}
		return errResponse(req.ID, wire.StatusInternalError, err.Error())
	}

	return encodeResult(req.ID, env, SubscribeResult{Subscription: id, Event: req.Capability})
}

// unsubscribe removes a subscription. Idempotent: an unknown id succeeds.
func (r *runtime) unsubscribe(p *events.Publisher, env *Envelope) *wire.Response {
	req := env.Request

	var unsub UnsubscribeRequest
	if len(req.Payload) > 0 {
		if err := env.Codec.Decode(req.Payload, &unsub); err != nil {
			return errResponse(req.ID, wire.StatusInvalidInput, fmt.Sprintf("payload decode failed: %v", err))
		}
	}
	if unsub.Subscription == "" {
		return errResponse(req.ID, wire.StatusInvalidInput, "missing subscription id")
	}

	p.Unsubscribe(unsub.Subscription)
	return &wire.Response{ID: req.ID, Status: wire.StatusSuccess}
}

// checkState returns the current state and whether the capability is
// allowed in it. Stateless Things allow everything.
func (r *runtime) checkState(cap *thing.Capability) (thing.State, bool) {
	if r.thing.Machine() == nil {
		return "", true
	}
	state := r.thing.Machine().Current()
	return state, cap.AllowedIn(state)
}

func encodeResult(id uint64, env *Envelope, value any) *wire.Response {
	payload, err := env.Codec.Encode(value)
	if err != nil {
		return errResponse(id, wire.StatusTransportError, fmt.Sprintf("response encode failed: %v", err))
	}
	return &wire.Response{ID: id, Status: wire.StatusSuccess, Payload: payload}
}

// classifyPropertyError maps property write failures onto the taxonomy:
// validation failures are InvalidInput, anything a setter reports is a
// domain failure.
func classifyPropertyError(err error) wire.Status {
	switch {
	case errors.Is(err, thing.ErrPropertyOutOfRange),
		errors.Is(err, thing.ErrPropertyValueType),
		errors.Is(err, thing.ErrPropertyReadOnly):
		return wire.StatusInvalidInput
	default:
		return wire.StatusHandlerError
	}
}
