// Package events implements the event publisher: fan-out of
// handler-triggered notifications to all live subscribers of an event,
// under a per-event rate ceiling.
//
// Publish never blocks the caller. Emissions arriving faster than the
// event's minimum interval are coalesced: the pending value is replaced and
// a single delivery fires when the interval timer expires, carrying the
// latest payload. Each subscriber owns a bounded queue; when it is full the
// oldest entry is dropped and a drop counter incremented. Sequence numbers
// are per subscriber, gapless, and monotonic, so drops are visible through
// the counter rather than as gaps.
package events
