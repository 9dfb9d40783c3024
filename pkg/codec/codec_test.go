package codec

import (
	"testing"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()

	for _, tag := range []string{TagJSON, TagCBOR} {
		c, err := r.Lookup(tag)
		if err != nil {
			t.Fatalf("Lookup(%q) failed: %v", tag, err)
		}
		if c.Tag() != tag {
			t.Errorf("Tag() = %q, want %q", c.Tag(), tag)
		}
	}

	if _, err := r.Lookup("msgpack"); err == nil {
		t.Error("Lookup accepted an unregistered tag")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(jsonCodec{}); err == nil {
		t.Error("Register accepted a duplicate tag")
	}
}

func TestNegotiateFallback(t *testing.T) {
	r := NewRegistry()

	if c := r.Negotiate(TagCBOR); c.Tag() != TagCBOR {
		t.Errorf("Negotiate(cbor) = %q, want cbor", c.Tag())
	}
	if c := r.Negotiate("msgpack"); c.Tag() != TagJSON {
		t.Errorf("Negotiate(unknown) = %q, want json fallback", c.Tag())
	}
	if c := r.Negotiate(""); c.Tag() != TagJSON {
		t.Errorf("Negotiate(empty) = %q, want json fallback", c.Tag())
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	type sample struct {
		IntegrationTime float64  `json:"integration_time" cbor:"integration_time"`
		Channels        []uint16 `json:"channels" cbor:"channels"`
	}

	in := sample{IntegrationTime: 0.025, Channels: []uint16{101, 204, 88}}

	for _, tag := range []string{TagJSON, TagCBOR} {
		t.Run(tag, func(t *testing.T) {
			c, err := Default.Lookup(tag)
			if err != nil {
				t.Fatalf("Lookup(%q) failed: %v", tag, err)
			}

			data, err := c.Encode(in)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			var out sample
			if err := c.Decode(data, &out); err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if out.IntegrationTime != in.IntegrationTime {
				t.Errorf("IntegrationTime = %v, want %v", out.IntegrationTime, in.IntegrationTime)
			}
			if len(out.Channels) != len(in.Channels) {
				t.Fatalf("Channels length = %d, want %d", len(out.Channels), len(in.Channels))
			}
		})
	}
}
