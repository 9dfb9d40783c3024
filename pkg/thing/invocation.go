package thing

import (
	"context"

	"github.com/hololinked-dev/hololinked-go/pkg/codec"
)

// Invocation is the execution context handed to capability handlers. It
// carries the decoded request, the state observed at the access check, and
// the codec the originating connection negotiated.
type Invocation struct {
	ctx        context.Context
	thing      *Thing
	capability string
	state      State
	payload    []byte
	codec      codec.Codec

	transition    State
	hasTransition bool
}

// NewInvocation creates an invocation context for a capability call.
func NewInvocation(ctx context.Context, t *Thing, capability string, state State, payload []byte, c codec.Codec) *Invocation {
	return &Invocation{
		ctx:        ctx,
		thing:      t,
		capability: capability,
		state:      state,
		payload:    payload,
		codec:      c,
	}
}

// Context returns the request context.
func (inv *Invocation) Context() context.Context {
	if inv.ctx == nil {
		return context.Background()
	}
	return inv.ctx
}

// Thing returns the Thing being invoked.
func (inv *Invocation) Thing() *Thing {
	return inv.thing
}

// Capability returns the name of the capability being invoked.
func (inv *Invocation) Capability() string {
	return inv.capability
}

// State returns the state observed at the access check. The serialization
// domain guarantees this is still the state in effect during the handler.
func (inv *Invocation) State() State {
	return inv.state
}

// Payload returns the raw request payload bytes.
func (inv *Invocation) Payload() []byte {
	return inv.payload
}

// Codec returns the payload codec the connection negotiated.
func (inv *Invocation) Codec() codec.Codec {
	return inv.codec
}

// Decode unmarshals the request payload into v using the connection codec.
// An empty payload leaves v untouched.
func (inv *Invocation) Decode(v any) error {
	if len(inv.payload) == 0 {
		return nil
	}
	return inv.codec.Decode(inv.payload, v)
}

// TransitionTo requests a state transition as part of a successful return.
// The transition is applied by the dispatcher after the handler succeeds;
// on handler failure the state stays unchanged. Calling it again replaces
// the previous request.
func (inv *Invocation) TransitionTo(s State) {
	inv.transition = s
	inv.hasTransition = true
}

// RequestedTransition returns the state transition the handler asked for,
// if any.
func (inv *Invocation) RequestedTransition() (State, bool) {
	return inv.transition, inv.hasTransition
}
