package thing

import (
	"time"
)

// EventMetadata describes an event capability.
type EventMetadata struct {
	// Name is the URI-safe event name, unique per Thing.
	Name string

	// Description is a human-readable description.
	Description string

	// MinInterval is the minimum time between deliveries of this event.
	// Emissions arriving faster are coalesced to the latest payload.
	// Zero selects the publisher default.
	MinInterval time.Duration

	// AllowedStates is the set of states in which subscribing is
	// permitted. Nil means any state.
	AllowedStates []State
}

// Event is one event capability. It carries only the declaration; delivery
// is handled by the event publisher.
type Event struct {
	meta *EventMetadata
}

// NewEvent creates an event declaration.
func NewEvent(meta *EventMetadata) *Event {
	return &Event{meta: meta}
}

// Name returns the event name.
func (e *Event) Name() string {
	return e.meta.Name
}

// Metadata returns the event metadata.
func (e *Event) Metadata() *EventMetadata {
	return e.meta
}
