package thing

import (
	"errors"
)

// Action errors.
var (
	ErrNoHandler = errors.New("action has no handler")
)

// ActionHandler executes an action. The returned value (may be nil) is
// encoded into the response payload. A successful handler may request a
// state transition via inv.TransitionTo.
type ActionHandler func(inv *Invocation) (any, error)

// ActionMetadata describes an action capability.
type ActionMetadata struct {
	// Name is the URI-safe action name, unique per Thing.
	Name string

	// Description is a human-readable description.
	Description string

	// AllowedStates is the set of states in which the action may run.
	// Nil means any state.
	AllowedStates []State
}

// Action is one action capability with its handler.
type Action struct {
	meta    *ActionMetadata
	handler ActionHandler
}

// NewAction creates an action with the given metadata and handler.
func NewAction(meta *ActionMetadata, handler ActionHandler) *Action {
	return &Action{
		meta:    meta,
		handler: handler,
	}
}

// Name returns the action name.
func (a *Action) Name() string {
	return a.meta.Name
}

// Metadata returns the action metadata.
func (a *Action) Metadata() *ActionMetadata {
	return a.meta
}

// Invoke runs the action handler.
func (a *Action) Invoke(inv *Invocation) (any, error) {
	if a.handler == nil {
		return nil, ErrNoHandler
	}
	return a.handler(inv)
}
