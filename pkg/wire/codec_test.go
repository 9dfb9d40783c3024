package wire

import (
	"bytes"
	"testing"
	"time"
)

func TestRequestRoundTrip(t *testing.T) {
	req := &Request{
		ID:         42,
		ThingID:    "spectrometer-1",
		Capability: "integration_time",
		Operation:  OpWriteProperty,
		Payload:    []byte(`500`),
	}

	data, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}

	decoded, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}

	if decoded.ID != req.ID {
		t.Errorf("ID = %d, want %d", decoded.ID, req.ID)
	}
	if decoded.ThingID != req.ThingID {
		t.Errorf("ThingID = %q, want %q", decoded.ThingID, req.ThingID)
	}
	if decoded.Capability != req.Capability {
		t.Errorf("Capability = %q, want %q", decoded.Capability, req.Capability)
	}
	if decoded.Operation != OpWriteProperty {
		t.Errorf("Operation = %v, want %v", decoded.Operation, OpWriteProperty)
	}
	if !bytes.Equal(decoded.Payload, req.Payload) {
		t.Errorf("Payload = %q, want %q", decoded.Payload, req.Payload)
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{
			name: "valid read",
			req:  Request{ID: 1, ThingID: "t", Capability: "p", Operation: OpReadProperty},
		},
		{
			name: "read-all without capability",
			req:  Request{ID: 1, ThingID: "t", Operation: OpReadAllProperties},
		},
		{
			name:    "zero message id",
			req:     Request{ID: 0, ThingID: "t", Capability: "p", Operation: OpReadProperty},
			wantErr: true,
		},
		{
			name:    "missing thing id",
			req:     Request{ID: 1, Capability: "p", Operation: OpReadProperty},
			wantErr: true,
		},
		{
			name:    "missing capability",
			req:     Request{ID: 1, ThingID: "t", Operation: OpReadProperty},
			wantErr: true,
		},
		{
			name:    "invalid operation",
			req:     Request{ID: 1, ThingID: "t", Capability: "p", Operation: Operation(99)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp := &Response{
		ID:      42,
		Status:  StatusInvalidState,
		Message: "connect not allowed in state CONNECTED",
	}

	data, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}

	decoded, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}

	if decoded.ID != 42 {
		t.Errorf("ID = %d, want 42", decoded.ID)
	}
	if decoded.Status != StatusInvalidState {
		t.Errorf("Status = %v, want %v", decoded.Status, StatusInvalidState)
	}
	if decoded.Message != resp.Message {
		t.Errorf("Message = %q, want %q", decoded.Message, resp.Message)
	}
	if decoded.IsSuccess() {
		t.Error("IsSuccess() = true for error response")
	}
}

func TestEventRoundTrip(t *testing.T) {
	ev := &Event{
		Subscription: "cu0g3trhc6s278f5v7h0",
		Event:        "measurement",
		Seq:          7,
		Dropped:      2,
		Timestamp:    time.Now().UnixNano(),
		Payload:      []byte(`[1,2,3]`),
	}

	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.Subscription != ev.Subscription {
		t.Errorf("Subscription = %q, want %q", decoded.Subscription, ev.Subscription)
	}
	if decoded.Seq != 7 || decoded.Dropped != 2 {
		t.Errorf("Seq/Dropped = %d/%d, want 7/2", decoded.Seq, decoded.Dropped)
	}
	if decoded.Timestamp != ev.Timestamp {
		t.Errorf("Timestamp = %d, want %d", decoded.Timestamp, ev.Timestamp)
	}
}

func TestHelloNegotiation(t *testing.T) {
	data, err := EncodeHello(&Hello{ClientID: "ctl-1", Codec: "cbor"})
	if err != nil {
		t.Fatalf("EncodeHello failed: %v", err)
	}
	h, err := DecodeHello(data)
	if err != nil {
		t.Fatalf("DecodeHello failed: %v", err)
	}
	if h.Codec != "cbor" {
		t.Errorf("Codec = %q, want cbor", h.Codec)
	}

	ackData, err := EncodeHelloAck(&HelloAck{ServerID: "srv", Codec: "json"})
	if err != nil {
		t.Fatalf("EncodeHelloAck failed: %v", err)
	}
	ack, err := DecodeHelloAck(ackData)
	if err != nil {
		t.Fatalf("DecodeHelloAck failed: %v", err)
	}
	if ack.Codec != "json" {
		t.Errorf("ack Codec = %q, want json", ack.Codec)
	}
}

func TestControlRoundTrip(t *testing.T) {
	data, err := EncodeControl(&Control{Type: MessageTypePing, Sequence: 3})
	if err != nil {
		t.Fatalf("EncodeControl failed: %v", err)
	}
	msg, err := DecodeControl(data)
	if err != nil {
		t.Fatalf("DecodeControl failed: %v", err)
	}
	if msg.Type != MessageTypePing || msg.Sequence != 3 {
		t.Errorf("got %v seq=%d, want Ping seq=3", msg.Type, msg.Sequence)
	}

	if _, err := EncodeControl(&Control{Type: MessageTypeRequest}); err == nil {
		t.Error("EncodeControl accepted a non-control type")
	}
}

func TestPeekMessageType(t *testing.T) {
	reqData, _ := EncodeRequest(&Request{
		ID: 1, ThingID: "t", Capability: "p", Operation: OpReadProperty,
	})
	respData, _ := EncodeResponse(&Response{ID: 1, Status: StatusSuccess})
	evData, _ := EncodeEvent(&Event{Subscription: "s", Event: "e"})
	pingData, _ := EncodeControl(&Control{Type: MessageTypePing})

	tests := []struct {
		name string
		data []byte
		want MessageType
	}{
		{"request", reqData, MessageTypeRequest},
		{"response", respData, MessageTypeResponse},
		{"event", evData, MessageTypeEvent},
		{"ping", pingData, MessageTypePing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PeekMessageType(tt.data)
			if err != nil {
				t.Fatalf("PeekMessageType failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("PeekMessageType = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := PeekMessageType([]byte{0xff, 0xff}); err == nil {
		t.Error("PeekMessageType accepted garbage")
	}
}
