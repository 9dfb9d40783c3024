// Package wire defines the CBOR wire format for the object RPC protocol.
//
// Envelopes use CBOR (RFC 8949) with integer keys for compact encoding and
// are length-prefixed on the socket transport. The envelope structure is
// always CBOR; the payload field inside an envelope is an opaque byte string
// encoded with the codec the connection negotiated (see package codec).
//
// # Message Types
//
// Key 1 of every envelope is the message type:
//   - Hello / HelloAck: connection setup and codec negotiation
//   - Request: client to server (property read/write, action invoke,
//     event subscribe/unsubscribe)
//   - Response: server to client, correlated by message id
//   - Event: server to client push, outside the request/response flow
//   - Ping / Pong / Close: transport-level control
//
// # Nullable vs Absent
//
// Integer-keyed maps distinguish absent keys (field not present in this
// message) from keys carrying an explicit null (value cleared).
package wire
