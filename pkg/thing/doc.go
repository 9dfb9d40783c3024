// Package thing implements the Thing model: an addressable object exposing
// properties, actions, and events through a capability table, gated by an
// access state machine.
//
// A Thing is built once at startup: capabilities are registered during
// construction and the Thing is sealed when a server attaches. After sealing
// the capability table is immutable, so resolution needs no locking. The
// only hot mutable state per Thing is the state machine's current state,
// which the dispatcher reads and mutates inside the Thing's serialization
// domain.
//
// Properties come in two variants: storage-backed (the Thing owns the value
// slot, with optional numeric bounds) and computed (a getter/setter handler
// pair). Dispatch treats both uniformly.
package thing
