package thing

import (
	"errors"
	"fmt"
	"sync"
)

// BoundsPolicy selects what happens when a numeric write falls outside the
// property's declared bounds.
type BoundsPolicy uint8

const (
	// BoundsReject fails the write with ErrPropertyOutOfRange.
	BoundsReject BoundsPolicy = iota

	// BoundsCrop clamps the value to the violated bound and stores the
	// clamped value. The write succeeds and reports the value actually
	// stored.
	BoundsCrop
)

// Property errors.
var (
	ErrPropertyReadOnly   = errors.New("property is not writable")
	ErrPropertyOutOfRange = errors.New("value out of range")
	ErrPropertyValueType  = errors.New("invalid value type for property")
)

// PropertyMetadata describes a property capability.
type PropertyMetadata struct {
	// Name is the URI-safe property name, unique per Thing.
	Name string

	// Description is a human-readable description.
	Description string

	// ReadOnly forbids writes through the dispatcher. The hosting object
	// can still update the stored value directly (e.g. measurements).
	ReadOnly bool

	// Default is the initial stored value. Copied per instance at
	// construction, never shared across Things.
	Default any

	// Min and Max are optional numeric bounds. Nil means unbounded.
	Min any
	Max any

	// Policy selects crop or reject behavior for out-of-bounds writes.
	Policy BoundsPolicy

	// AllowedStates is the set of states in which reads and writes are
	// permitted. Nil means any state.
	AllowedStates []State

	// Unit is the unit of measurement (e.g. "s", "nm").
	Unit string
}

// Getter computes a property value on read.
type Getter func(inv *Invocation) (any, error)

// Setter applies a property value on write.
type Setter func(inv *Invocation, value any) error

// Property is one property capability. It is a tagged variant: either a
// storage slot owned by the Thing (with optional bounds) or a getter/setter
// handler pair delegating to the hosting object. Dispatch treats both
// uniformly.
type Property struct {
	mu     sync.RWMutex
	meta   *PropertyMetadata
	value  any
	getter Getter
	setter Setter
}

// NewProperty creates a storage-backed property. The default value from the
// metadata becomes the initial stored value.
func NewProperty(meta *PropertyMetadata) *Property {
	return &Property{
		meta:  meta,
		value: meta.Default,
	}
}

// NewComputedProperty creates a handler-backed property. A nil setter makes
// the property read-only regardless of the metadata flag.
func NewComputedProperty(meta *PropertyMetadata, getter Getter, setter Setter) *Property {
	return &Property{
		meta:   meta,
		getter: getter,
		setter: setter,
	}
}

// Name returns the property name.
func (p *Property) Name() string {
	return p.meta.Name
}

// Metadata returns the property metadata.
func (p *Property) Metadata() *PropertyMetadata {
	return p.meta
}

// Computed returns true if the property is handler-backed.
func (p *Property) Computed() bool {
	return p.getter != nil || p.setter != nil
}

// Read returns the current property value.
func (p *Property) Read(inv *Invocation) (any, error) {
	if p.getter != nil {
		return p.getter(inv)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value, nil
}

// Value returns the stored value without an invocation context. For
// handler-backed properties it returns nil; use Read instead.
func (p *Property) Value() any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Write applies a new property value. For storage-backed properties the
// value is validated against the declared bounds first; under the crop
// policy an out-of-bounds value is clamped and the clamped value is
// returned, otherwise the returned value is nil (stored as given).
func (p *Property) Write(inv *Invocation, value any) (any, error) {
	if p.meta.ReadOnly {
		return nil, ErrPropertyReadOnly
	}

	if p.Computed() {
		if p.setter == nil {
			return nil, ErrPropertyReadOnly
		}
		return nil, p.setter(inv, value)
	}

	final, cropped, err := p.normalize(value)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.value = final
	p.mu.Unlock()

	if cropped {
		return final, nil
	}
	return nil, nil
}

// SetValueInternal stores a value directly, bypassing the read-only flag.
// Used by the hosting object to update measurement-style properties and by
// the persistence layer to restore saved values. Bounds still apply.
func (p *Property) SetValueInternal(value any) error {
	if p.Computed() {
		return fmt.Errorf("%w: property %q has no storage slot", ErrPropertyValueType, p.meta.Name)
	}

	final, _, err := p.normalize(value)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.value = final
	p.mu.Unlock()
	return nil
}

// normalize validates a value against the declared bounds. Under the crop
// policy the returned value is clamped and the second result reports
// whether clamping happened.
func (p *Property) normalize(value any) (any, bool, error) {
	if p.meta.Min == nil && p.meta.Max == nil {
		return value, false, nil
	}

	v, ok := toFloat64(value)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q expects a numeric value", ErrPropertyValueType, p.meta.Name)
	}

	if p.meta.Min != nil {
		min, _ := toFloat64(p.meta.Min)
		if v < min {
			if p.meta.Policy == BoundsCrop {
				return min, true, nil
			}
			return nil, false, fmt.Errorf("%w: %v < %v", ErrPropertyOutOfRange, value, p.meta.Min)
		}
	}

	if p.meta.Max != nil {
		max, _ := toFloat64(p.meta.Max)
		if v > max {
			if p.meta.Policy == BoundsCrop {
				return max, true, nil
			}
			return nil, false, fmt.Errorf("%w: %v > %v", ErrPropertyOutOfRange, value, p.meta.Max)
		}
	}

	return value, false, nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
