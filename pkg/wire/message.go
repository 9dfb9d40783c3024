package wire

import (
	"fmt"
)

// CBOR map keys for envelope encoding.
// All envelopes use integer keys for efficiency; key 1 is always the
// message type.
const (
	KeyMessageType = 1
	KeyMessageID   = 2
)

// MessageType discriminates envelope kinds on the wire.
type MessageType uint8

const (
	MessageTypeUnknown MessageType = 0

	// MessageTypeHello is the client's first envelope on a connection.
	MessageTypeHello MessageType = 1

	// MessageTypeHelloAck confirms (or overrides) the negotiated codec.
	MessageTypeHelloAck MessageType = 2

	// MessageTypeRequest is an operation request on a Thing capability.
	MessageTypeRequest MessageType = 3

	// MessageTypeResponse correlates to a request by message id.
	MessageTypeResponse MessageType = 4

	// MessageTypeEvent is a server push for an event subscription.
	MessageTypeEvent MessageType = 5

	// MessageTypePing and MessageTypePong are keep-alive probes.
	MessageTypePing MessageType = 6
	MessageTypePong MessageType = 7

	// MessageTypeClose initiates a graceful connection close.
	MessageTypeClose MessageType = 8
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageTypeHello:
		return "Hello"
	case MessageTypeHelloAck:
		return "HelloAck"
	case MessageTypeRequest:
		return "Request"
	case MessageTypeResponse:
		return "Response"
	case MessageTypeEvent:
		return "Event"
	case MessageTypePing:
		return "Ping"
	case MessageTypePong:
		return "Pong"
	case MessageTypeClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// Hello is the first envelope a client sends on a new connection.
// It names the codec the client wants for payloads.
//
// CBOR encoding:
//
//	{
//	  1: messageType,  // 1
//	  2: clientId,     // string
//	  3: codec         // string codec tag, e.g. "json", "cbor"
//	}
type Hello struct {
	Type     MessageType `cbor:"1,keyasint"`
	ClientID string      `cbor:"2,keyasint,omitempty"`
	Codec    string      `cbor:"3,keyasint,omitempty"`
}

// HelloAck confirms the connection and carries the codec the server will
// actually use. A server that does not support the requested codec answers
// with its fallback instead of failing the connection.
type HelloAck struct {
	Type     MessageType `cbor:"1,keyasint"`
	ServerID string      `cbor:"2,keyasint,omitempty"`
	Codec    string      `cbor:"3,keyasint"`
}

// Request represents an operation request on a Thing capability.
//
// CBOR encoding:
//
//	{
//	  1: messageType,  // 3
//	  2: messageId,    // uint64, unique per connection lifetime, never 0
//	  3: thingId,      // string
//	  4: capability,   // string capability name ("" for read-all)
//	  5: operation,    // uint8, see Operation
//	  6: payload,      // byte string in the connection codec (optional)
//	  7: oneway        // bool: suppress the response envelope
//	}
type Request struct {
	Type       MessageType `cbor:"1,keyasint"`
	ID         uint64      `cbor:"2,keyasint"`
	ThingID    string      `cbor:"3,keyasint"`
	Capability string      `cbor:"4,keyasint,omitempty"`
	Operation  Operation   `cbor:"5,keyasint"`
	Payload    []byte      `cbor:"6,keyasint,omitempty"`
	Oneway     bool        `cbor:"7,keyasint,omitempty"`
}

// Validate checks if the request is well formed.
func (r *Request) Validate() error {
	if r.ID == 0 {
		return fmt.Errorf("message id 0 is reserved")
	}
	if r.ThingID == "" {
		return fmt.Errorf("missing thing id")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	if r.Capability == "" && r.Operation != OpReadAllProperties {
		return fmt.Errorf("missing capability name")
	}
	return nil
}

// Response represents the reply to a Request.
//
// CBOR encoding:
//
//	{
//	  1: messageType,  // 4
//	  2: messageId,    // uint64: matches the request
//	  3: status,       // uint8: 0=success, or error kind
//	  4: payload,      // byte string in the connection codec (if success)
//	  5: message       // string: human-readable error message (if error)
//	}
type Response struct {
	Type    MessageType `cbor:"1,keyasint"`
	ID      uint64      `cbor:"2,keyasint"`
	Status  Status      `cbor:"3,keyasint"`
	Payload []byte      `cbor:"4,keyasint,omitempty"`
	Message string      `cbor:"5,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// Event represents a push notification for an event subscription.
//
// CBOR encoding:
//
//	{
//	  1: messageType,   // 5
//	  2: subscription,  // string subscription id
//	  3: event,         // string event name
//	  4: seq,           // uint64: per-subscriber, gapless, monotonic
//	  5: dropped,       // uint64: total payloads this subscriber lost
//	  6: timestamp,     // int64: emission time, unix nanoseconds
//	  7: payload        // byte string in the connection codec
//	}
type Event struct {
	Type         MessageType `cbor:"1,keyasint"`
	Subscription string      `cbor:"2,keyasint"`
	Event        string      `cbor:"3,keyasint"`
	Seq          uint64      `cbor:"4,keyasint"`
	Dropped      uint64      `cbor:"5,keyasint,omitempty"`
	Timestamp    int64       `cbor:"6,keyasint"`
	Payload      []byte      `cbor:"7,keyasint,omitempty"`
}

// Control represents a transport-level control envelope (ping/pong/close).
type Control struct {
	Type     MessageType `cbor:"1,keyasint"`
	Sequence uint32      `cbor:"2,keyasint,omitempty"`
}

// IsControl reports whether t is a transport-level control type.
func (t MessageType) IsControl() bool {
	return t == MessageTypePing || t == MessageTypePong || t == MessageTypeClose
}
