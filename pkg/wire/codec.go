package wire

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for envelopes.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for envelopes.
var decMode cbor.DecMode

func init() {
	var err error

	// Configure encoder for deterministic output
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Configure decoder to be lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// PeekMessageType reads key 1 of an envelope without decoding the rest.
func PeekMessageType(data []byte) (MessageType, error) {
	var peek struct {
		Type MessageType `cbor:"1,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return MessageTypeUnknown, fmt.Errorf("failed to peek message type: %w", err)
	}
	if peek.Type == MessageTypeUnknown || peek.Type > MessageTypeClose {
		return MessageTypeUnknown, fmt.Errorf("unknown message type: %d", peek.Type)
	}
	return peek.Type, nil
}

// EncodeHello encodes a hello envelope.
func EncodeHello(h *Hello) ([]byte, error) {
	h.Type = MessageTypeHello
	return Marshal(h)
}

// DecodeHello decodes a hello envelope.
func DecodeHello(data []byte) (*Hello, error) {
	var h Hello
	if err := Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode hello: %w", err)
	}
	if h.Type != MessageTypeHello {
		return nil, fmt.Errorf("not a hello message: type=%d", h.Type)
	}
	return &h, nil
}

// EncodeHelloAck encodes a hello acknowledgement envelope.
func EncodeHelloAck(h *HelloAck) ([]byte, error) {
	h.Type = MessageTypeHelloAck
	return Marshal(h)
}

// DecodeHelloAck decodes a hello acknowledgement envelope.
func DecodeHelloAck(data []byte) (*HelloAck, error) {
	var h HelloAck
	if err := Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode hello ack: %w", err)
	}
	if h.Type != MessageTypeHelloAck {
		return nil, fmt.Errorf("not a hello ack message: type=%d", h.Type)
	}
	return &h, nil
}

// EncodeRequest encodes a request envelope.
func EncodeRequest(req *Request) ([]byte, error) {
	req.Type = MessageTypeRequest
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(req)
}

// DecodeRequest decodes a request envelope.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if req.Type != MessageTypeRequest {
		return nil, fmt.Errorf("not a request message: type=%d", req.Type)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response envelope.
func EncodeResponse(resp *Response) ([]byte, error) {
	resp.Type = MessageTypeResponse
	return Marshal(resp)
}

// DecodeResponse decodes a response envelope.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Type != MessageTypeResponse {
		return nil, fmt.Errorf("not a response message: type=%d", resp.Type)
	}
	return &resp, nil
}

// EncodeEvent encodes an event push envelope.
func EncodeEvent(ev *Event) ([]byte, error) {
	ev.Type = MessageTypeEvent
	return Marshal(ev)
}

// DecodeEvent decodes an event push envelope.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Type != MessageTypeEvent {
		return nil, fmt.Errorf("not an event message: type=%d", ev.Type)
	}
	return &ev, nil
}

// EncodeControl encodes a control envelope (ping/pong/close).
func EncodeControl(msg *Control) ([]byte, error) {
	if !msg.Type.IsControl() {
		return nil, fmt.Errorf("not a control message type: %d", msg.Type)
	}
	return Marshal(msg)
}

// DecodeControl decodes a control envelope.
func DecodeControl(data []byte) (*Control, error) {
	var msg Control
	if err := Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode control message: %w", err)
	}
	if !msg.Type.IsControl() {
		return nil, fmt.Errorf("not a control message: type=%d", msg.Type)
	}
	return &msg, nil
}
