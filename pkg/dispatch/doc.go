// Package dispatch implements the request router: the single entry point
// that resolves a request envelope against a Thing's capability table,
// checks the access state machine, invokes the handler, and produces
// exactly one response envelope per accepted request.
//
// Each attached Thing is a serialization domain. Property writes and action
// invocations flow through a per-Thing FIFO queue consumed by one worker
// goroutine, so their responses come back in acceptance order. Property
// reads and subscription operations run concurrently with each other under
// a read lock that excludes in-flight writes, so readers always observe a
// consistent state snapshot.
//
// A configurable per-request timeout returns a Timeout envelope to the
// client without aborting the handler; the handler's late response is
// dropped. Handler panics are recovered into InternalError responses and
// never kill the worker.
package dispatch
