package thing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Thing errors.
var (
	ErrDuplicateCapability = errors.New("capability name already registered")
	ErrUnknownCapability   = errors.New("unknown capability")
	ErrThingSealed         = errors.New("thing is sealed")
	ErrInvalidName         = errors.New("invalid capability name")
)

// Kind discriminates capability kinds in the capability table.
type Kind uint8

const (
	KindProperty Kind = iota + 1
	KindAction
	KindEvent
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindProperty:
		return "property"
	case KindAction:
		return "action"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Capability is the resolution result for a registered name.
type Capability struct {
	Name          string
	Kind          Kind
	AllowedStates []State
}

// AllowedIn returns true if the capability may be used while the Thing is
// in state s. An empty allowed set means any state.
func (c *Capability) AllowedIn(s State) bool {
	return allowedIn(c.AllowedStates, s)
}

// ValueChangedHook is invoked after a successful property write with the
// value actually stored. Used by the persistence layer.
type ValueChangedHook func(property string, value any)

// Thing is an addressable object exposing properties, actions, and events.
// Capability names share one namespace per Thing. Registration happens
// during construction; Seal freezes the table when a server attaches, after
// which resolution is safe without locking.
type Thing struct {
	mu sync.RWMutex

	id          string
	title       string
	description string

	machine *StateMachine

	properties map[string]*Property
	actions    map[string]*Action
	events     map[string]*Event
	kinds      map[string]Kind

	sealed bool

	valueChanged ValueChangedHook
}

// NewThing creates a Thing with the given URI-safe identifier. A nil state
// machine means the Thing is stateless and every capability is allowed.
func NewThing(id string, machine *StateMachine) (*Thing, error) {
	if !validName(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, id)
	}
	return &Thing{
		id:         id,
		machine:    machine,
		properties: make(map[string]*Property),
		actions:    make(map[string]*Action),
		events:     make(map[string]*Event),
		kinds:      make(map[string]Kind),
	}, nil
}

// ID returns the Thing identifier.
func (t *Thing) ID() string {
	return t.id
}

// Title returns the human-readable title.
func (t *Thing) Title() string {
	return t.title
}

// SetTitle sets the human-readable title.
func (t *Thing) SetTitle(title string) {
	t.title = title
}

// Description returns the human-readable description.
func (t *Thing) Description() string {
	return t.description
}

// SetDescription sets the human-readable description.
func (t *Thing) SetDescription(desc string) {
	t.description = desc
}

// Machine returns the access state machine, or nil for a stateless Thing.
func (t *Thing) Machine() *StateMachine {
	return t.machine
}

// State returns the current state, or empty for a stateless Thing.
func (t *Thing) State() State {
	if t.machine == nil {
		return ""
	}
	return t.machine.Current()
}

// Seal freezes the capability table. Called by a server when the Thing is
// attached; all registration afterwards fails.
func (t *Thing) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
}

// Sealed returns true if the capability table is frozen.
func (t *Thing) Sealed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sealed
}

// register reserves a capability name in the shared namespace.
func (t *Thing) register(name string, kind Kind) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return fmt.Errorf("%w: cannot register %q", ErrThingSealed, name)
	}
	if existing, ok := t.kinds[name]; ok {
		return fmt.Errorf("%w: %q already registered as %s", ErrDuplicateCapability, name, existing)
	}
	t.kinds[name] = kind
	return nil
}

// AddProperty registers a property capability.
func (t *Thing) AddProperty(p *Property) error {
	if err := t.register(p.Name(), KindProperty); err != nil {
		return err
	}
	t.mu.Lock()
	t.properties[p.Name()] = p
	t.mu.Unlock()
	return nil
}

// AddAction registers an action capability.
func (t *Thing) AddAction(a *Action) error {
	if err := t.register(a.Name(), KindAction); err != nil {
		return err
	}
	t.mu.Lock()
	t.actions[a.Name()] = a
	t.mu.Unlock()
	return nil
}

// AddEvent registers an event capability.
func (t *Thing) AddEvent(e *Event) error {
	if err := t.register(e.Name(), KindEvent); err != nil {
		return err
	}
	t.mu.Lock()
	t.events[e.Name()] = e
	t.mu.Unlock()
	return nil
}

// Resolve looks up a registered capability by name.
func (t *Thing) Resolve(name string) (*Capability, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	kind, ok := t.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q on thing %q", ErrUnknownCapability, name, t.id)
	}

	cap := &Capability{Name: name, Kind: kind}
	switch kind {
	case KindProperty:
		cap.AllowedStates = t.properties[name].Metadata().AllowedStates
	case KindAction:
		cap.AllowedStates = t.actions[name].Metadata().AllowedStates
	case KindEvent:
		cap.AllowedStates = t.events[name].Metadata().AllowedStates
	}
	return cap, nil
}

// Property returns a property capability by name.
func (t *Thing) Property(name string) (*Property, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.properties[name]
	if !ok {
		return nil, fmt.Errorf("%w: property %q on thing %q", ErrUnknownCapability, name, t.id)
	}
	return p, nil
}

// Action returns an action capability by name.
func (t *Thing) Action(name string) (*Action, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	a, ok := t.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: action %q on thing %q", ErrUnknownCapability, name, t.id)
	}
	return a, nil
}

// Event returns an event capability by name.
func (t *Thing) Event(name string) (*Event, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.events[name]
	if !ok {
		return nil, fmt.Errorf("%w: event %q on thing %q", ErrUnknownCapability, name, t.id)
	}
	return e, nil
}

// PropertyNames returns the registered property names in sorted order.
func (t *Thing) PropertyNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.properties))
	for name := range t.properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EventNames returns the registered event names in sorted order.
func (t *Thing) EventNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.events))
	for name := range t.events {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActionNames returns the registered action names in sorted order.
func (t *Thing) ActionNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.actions))
	for name := range t.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadAllProperties reads every property on the Thing. Handler-backed
// properties run their getter; a getter failure fails the whole read.
func (t *Thing) ReadAllProperties(inv *Invocation) (map[string]any, error) {
	result := make(map[string]any, len(t.properties))
	for _, name := range t.PropertyNames() {
		p, err := t.Property(name)
		if err != nil {
			return nil, err
		}
		value, err := p.Read(inv)
		if err != nil {
			return nil, fmt.Errorf("read of %q failed: %w", name, err)
		}
		result[name] = value
	}
	return result, nil
}

// SetValueChangedHook registers the persistence callback fired after every
// successful property write. Must be called before the Thing is sealed.
func (t *Thing) SetValueChangedHook(hook ValueChangedHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.valueChanged = hook
}

// ValueChanged fires the value-changed hook, if one is registered.
func (t *Thing) ValueChanged(property string, value any) {
	t.mu.RLock()
	hook := t.valueChanged
	t.mu.RUnlock()

	if hook != nil {
		hook(property, value)
	}
}

// validName reports whether a name is URI-safe: a letter or underscore
// followed by letters, digits, hyphens, or underscores.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9', r == '-':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
