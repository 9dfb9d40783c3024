package thing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// State is one logical state of a Thing (e.g. "CONNECTED", "MEASURING").
type State string

// State machine errors.
var (
	ErrUnknownState = errors.New("unknown state")
)

// StateMachine tracks the current logical state of a Thing.
//
// Transitions happen only as a side effect of a successful capability
// invocation that explicitly requested one; the machine never infers
// transitions on its own. The dispatcher reads the current state and applies
// transitions inside the Thing's serialization domain, so the state observed
// by an access check is the state in effect during the handler body.
type StateMachine struct {
	mu      sync.RWMutex
	states  map[State]struct{}
	initial State
	current State
}

// NewStateMachine creates a state machine with the given initial state.
// The initial state is always part of the state set.
func NewStateMachine(initial State, others ...State) *StateMachine {
	m := &StateMachine{
		states:  make(map[State]struct{}, len(others)+1),
		initial: initial,
		current: initial,
	}
	m.states[initial] = struct{}{}
	for _, s := range others {
		m.states[s] = struct{}{}
	}
	return m
}

// Current returns the current state.
func (m *StateMachine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Initial returns the designated initial state.
func (m *StateMachine) Initial() State {
	return m.initial
}

// Has returns true if s is part of the state set.
func (m *StateMachine) Has(s State) bool {
	_, ok := m.states[s]
	return ok
}

// States returns the state set in sorted order.
func (m *StateMachine) States() []State {
	states := make([]State, 0, len(m.states))
	for s := range m.states {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	return states
}

// Transition moves the machine to a new state.
// Returns an error if the target state is not part of the state set.
func (m *StateMachine) Transition(to State) error {
	if !m.Has(to) {
		return fmt.Errorf("%w: %s", ErrUnknownState, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = to
	return nil
}

// Reset returns the machine to its initial state.
func (m *StateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}

// allowedIn returns true if state s is in the allowed set.
// A nil or empty set means the capability is allowed in any state.
func allowedIn(allowed []State, s State) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}
