// Package codec provides the payload codec registry. Envelope framing is
// always CBOR; the payload bytes inside an envelope are encoded with the
// codec negotiated per connection. JSON is the default and the only codec
// the HTTP gateway accepts.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

const (
	// TagJSON identifies the structured-text codec.
	TagJSON = "json"
	// TagCBOR identifies the binary codec.
	TagCBOR = "cbor"
)

var (
	ErrDuplicateTag = errors.New("codec: tag already registered")
	ErrUnknownTag   = errors.New("codec: unknown tag")
)

// Codec encodes and decodes request and event payloads.
type Codec interface {
	// Tag returns the short identifier used during negotiation.
	Tag() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// Registry maps codec tags to implementations. The zero value is not
// usable, use NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns a registry with the JSON and CBOR codecs installed.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	_ = r.Register(jsonCodec{})
	_ = r.Register(cborCodec{})
	return r
}

// Register adds a codec under its tag.
func (r *Registry) Register(c Codec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codecs[c.Tag()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTag, c.Tag())
	}
	r.codecs[c.Tag()] = c
	return nil
}

// Lookup returns the codec registered under tag.
func (r *Registry) Lookup(tag string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.codecs[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	return c, nil
}

// Negotiate resolves the tag a client asked for. Unknown or empty tags
// fall back to JSON, so a connection always ends up with a working codec.
func (r *Registry) Negotiate(tag string) Codec {
	if c, err := r.Lookup(tag); err == nil {
		return c
	}
	c, _ := r.Lookup(TagJSON)
	return c
}

// Default is the process-wide registry.
var Default = NewRegistry()

type jsonCodec struct{}

func (jsonCodec) Tag() string { return TagJSON }

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// cborCodec uses the same deterministic encode and lenient decode options
// as the envelope layer.
type cborCodec struct{}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical, // Deterministic key ordering
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix, // Unix timestamps
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create payload CBOR encoder mode: %v", err))
	}
	cborDec, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet, // Ignore duplicate keys (last wins)
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create payload CBOR decoder mode: %v", err))
	}
}

func (cborCodec) Tag() string { return TagCBOR }

func (cborCodec) Encode(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

func (cborCodec) Decode(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}
