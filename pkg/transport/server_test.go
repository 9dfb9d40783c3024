package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hololinked-dev/hololinked-go/pkg/codec"
	"github.com/hololinked-dev/hololinked-go/pkg/dispatch"
	"github.com/hololinked-dev/hololinked-go/pkg/events"
	"github.com/hololinked-dev/hololinked-go/pkg/thing"
	"github.com/hololinked-dev/hololinked-go/pkg/wire"
)

// newTestServer starts a server hosting a spectrometer-shaped Thing on a
// loopback port and returns it with its publisher.
func newTestServer(t *testing.T) (*Server, *events.Publisher) {
	t.Helper()

	machine := thing.NewStateMachine("DISCONNECTED", "CONNECTED")
	th, err := thing.NewThing("dev-1", machine)
	if err != nil {
		t.Fatalf("NewThing failed: %v", err)
	}

	connect := thing.NewAction(&thing.ActionMetadata{
		Name:          "connect",
		AllowedStates: []thing.State{"DISCONNECTED"},
	}, func(inv *thing.Invocation) (any, error) {
		inv.TransitionTo("CONNECTED")
		return nil, nil
	})
	if err := th.AddAction(connect); err != nil {
		t.Fatalf("AddAction failed: %v", err)
	}

	echo := thing.NewAction(&thing.ActionMetadata{Name: "echo"}, func(inv *thing.Invocation) (any, error) {
		var args map[string]any
		if err := inv.Decode(&args); err != nil {
			return nil, err
		}
		return args, nil
	})
	if err := th.AddAction(echo); err != nil {
		t.Fatalf("AddAction failed: %v", err)
	}

	sleep := thing.NewAction(&thing.ActionMetadata{Name: "sleep"}, func(inv *thing.Invocation) (any, error) {
		var args struct {
			Ms int `json:"ms"`
		}
		if err := inv.Decode(&args); err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(args.Ms) * time.Millisecond)
		return nil, nil
	})
	if err := th.AddAction(sleep); err != nil {
		t.Fatalf("AddAction failed: %v", err)
	}

	prop := thing.NewProperty(&thing.PropertyMetadata{
		Name:    "integration_time",
		Default: 0.025,
		Min:     0.001,
		Policy:  thing.BoundsCrop,
	})
	if err := th.AddProperty(prop); err != nil {
		t.Fatalf("AddProperty failed: %v", err)
	}

	// Negative interval: every publish is delivered, no coalescing
	if err := th.AddEvent(thing.NewEvent(&thing.EventMetadata{
		Name:        "measurement",
		MinInterval: -1,
	})); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}

	pub := events.NewPublisher(events.Options{})
	d := dispatch.New(pub, dispatch.Options{Timeout: 2 * time.Second})
	if err := d.Attach(th); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	srv, err := NewServer(d, ServerConfig{
		Address:  "127.0.0.1:0",
		ServerID: "test-server",
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	t.Cleanup(func() {
		srv.Stop()
		d.Close()
		pub.Close()
	})
	return srv, pub
}

func dialTest(t *testing.T, srv *Server, tag string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), ClientConfig{
		Address:          srv.Addr().String(),
		ClientID:         "test-client",
		Codec:            tag,
		DisableKeepAlive: true,
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHandshakeNegotiation(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("cbor honored", func(t *testing.T) {
		c := dialTest(t, srv, codec.TagCBOR)
		if c.Codec().Tag() != codec.TagCBOR {
			t.Errorf("negotiated codec = %q, want cbor", c.Codec().Tag())
		}
		if c.ServerID() != "test-server" {
			t.Errorf("ServerID = %q, want test-server", c.ServerID())
		}
		if c.State() != StateConnected {
			t.Errorf("State = %v, want CONNECTED", c.State())
		}
	})

	t.Run("unknown falls back to json", func(t *testing.T) {
		c := dialTest(t, srv, "msgpack")
		if c.Codec().Tag() != codec.TagJSON {
			t.Errorf("negotiated codec = %q, want json", c.Codec().Tag())
		}
	})
}

func TestRequestResponse(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dialTest(t, srv, codec.TagJSON)
	ctx := context.Background()

	// Read the default
	var value float64
	if err := c.ReadProperty(ctx, "dev-1", "integration_time", &value); err != nil {
		t.Fatalf("ReadProperty failed: %v", err)
	}
	if value != 0.025 {
		t.Errorf("integration_time = %v, want 0.025", value)
	}

	// An out-of-range write comes back cropped
	var adjusted float64
	if err := c.WriteProperty(ctx, "dev-1", "integration_time", -5.0, &adjusted); err != nil {
		t.Fatalf("WriteProperty failed: %v", err)
	}
	if adjusted != 0.001 {
		t.Errorf("adjusted = %v, want 0.001", adjusted)
	}

	// Actions round-trip their result
	var result map[string]any
	if err := c.InvokeAction(ctx, "dev-1", "echo", map[string]any{"a": "b"}, &result); err != nil {
		t.Fatalf("InvokeAction failed: %v", err)
	}
	if result["a"] != "b" {
		t.Errorf("echo result = %v, want a=b", result)
	}

	// Read-all sees the cropped write
	values, err := c.ReadAllProperties(ctx, "dev-1")
	if err != nil {
		t.Fatalf("ReadAllProperties failed: %v", err)
	}
	if values["integration_time"] != 0.001 {
		t.Errorf("integration_time = %v, want 0.001", values["integration_time"])
	}
}

func TestStateGatingOverWire(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dialTest(t, srv, codec.TagJSON)
	ctx := context.Background()

	if err := c.InvokeAction(ctx, "dev-1", "connect", nil, nil); err != nil {
		t.Fatalf("first connect failed: %v", err)
	}

	err := c.InvokeAction(ctx, "dev-1", "connect", nil, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("second connect error = %v, want StatusError", err)
	}
	if statusErr.Status != wire.StatusInvalidState {
		t.Errorf("status = %v, want InvalidState", statusErr.Status)
	}
}

func TestUnknownThing(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dialTest(t, srv, codec.TagJSON)

	err := c.ReadProperty(context.Background(), "no-such-thing", "x", nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want StatusError", err)
	}
	if statusErr.Status != wire.StatusNotFound {
		t.Errorf("status = %v, want NotFound", statusErr.Status)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	srv, pub := newTestServer(t)
	c := dialTest(t, srv, codec.TagJSON)
	ctx := context.Background()

	frames := make(chan *wire.Event, 8)
	subID, err := c.Subscribe(ctx, "dev-1", "measurement", func(frame *wire.Event) {
		frames <- frame
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if subID == "" {
		t.Fatal("empty subscription id")
	}

	src := pub.Source("dev-1")
	for i := 1; i <= 3; i++ {
		if err := src.Emit("measurement", map[string]int{"n": i}); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}

	for want := uint64(1); want <= 3; want++ {
		select {
		case frame := <-frames:
			if frame.Seq != want {
				t.Errorf("seq = %d, want %d", frame.Seq, want)
			}
			if frame.Event != "measurement" {
				t.Errorf("event = %q, want measurement", frame.Event)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", want)
		}
	}

	// After unsubscribing no more frames arrive
	if err := c.Unsubscribe(ctx, "dev-1", "measurement", subID); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := src.Emit("measurement", map[string]int{"n": 4}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	select {
	case frame := <-frames:
		t.Errorf("unexpected frame after unsubscribe: seq=%d", frame.Seq)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisconnectReleasesSubscriptions(t *testing.T) {
	srv, pub := newTestServer(t)
	c := dialTest(t, srv, codec.TagJSON)
	ctx := context.Background()

	if _, err := c.Subscribe(ctx, "dev-1", "measurement", func(*wire.Event) {}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if n := pub.SubscriberCount("dev-1", "measurement"); n != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", n)
	}

	c.Close()

	// The server notices the close and releases the connection's
	// subscriptions.
	deadline := time.Now().Add(2 * time.Second)
	for pub.SubscriberCount("dev-1", "measurement") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriptions were not released on disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCloseReleasesSubscriptionsDuringDispatch(t *testing.T) {
	srv, pub := newTestServer(t)
	c := dialTest(t, srv, codec.TagJSON)
	ctx := context.Background()

	if _, err := c.Subscribe(ctx, "dev-1", "measurement", func(*wire.Event) {}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if n := pub.SubscriberCount("dev-1", "measurement"); n != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", n)
	}

	// A oneway sleep keeps the read loop busy inside the dispatch, so the
	// server cannot learn anything from the socket until it returns.
	payload, err := c.Codec().Encode(map[string]int{"ms": 1500})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := c.Request(ctx, &wire.Request{
		ThingID:    "dev-1",
		Capability: "sleep",
		Operation:  wire.OpInvokeAction,
		Payload:    payload,
		Oneway:     true,
	}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	srv.connsMu.RLock()
	var sconn *ServerConn
	for conn := range srv.conns {
		sconn = conn
	}
	srv.connsMu.RUnlock()
	if sconn == nil {
		t.Fatal("no server connection")
	}
	sconn.Close()

	// Release happens at close detection, well before the in-flight
	// handler finishes.
	deadline := time.Now().Add(500 * time.Millisecond)
	for pub.SubscriberCount("dev-1", "measurement") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriptions were not released while a dispatch was in flight")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOnewayRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dialTest(t, srv, codec.TagJSON)

	resp, err := c.Request(context.Background(), &wire.Request{
		ThingID:    "dev-1",
		Capability: "connect",
		Operation:  wire.OpInvokeAction,
		Oneway:     true,
	})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp != nil {
		t.Errorf("oneway response = %+v, want nil", resp)
	}

	// The action still ran: the state gate now rejects a second connect
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := c.InvokeAction(context.Background(), "dev-1", "connect", nil, nil)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Status == wire.StatusInvalidState {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("connect state never applied, last err = %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConnectionCount(t *testing.T) {
	srv, _ := newTestServer(t)

	c1 := dialTest(t, srv, codec.TagJSON)
	c2 := dialTest(t, srv, codec.TagJSON)

	deadline := time.Now().Add(2 * time.Second)
	for srv.ConnectionCount() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("ConnectionCount = %d, want 2", srv.ConnectionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	c1.Close()
	c2.Close()

	deadline = time.Now().Add(2 * time.Second)
	for srv.ConnectionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ConnectionCount = %d, want 0", srv.ConnectionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestKeepAliveOverWire(t *testing.T) {
	srv, _ := newTestServer(t)

	c, err := Dial(context.Background(), ClientConfig{
		Address:  srv.Addr().String(),
		ClientID: "ka-client",
		KeepAlive: KeepAliveConfig{
			PingInterval:   20 * time.Millisecond,
			PongTimeout:    200 * time.Millisecond,
			MaxMissedPongs: 3,
		},
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	// The server answers pings, so the connection stays up
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if c.State() != StateConnected {
			t.Fatalf("State = %v, want CONNECTED", c.State())
		}
		time.Sleep(20 * time.Millisecond)
	}

	stats := c.keepAlive.Stats()
	if stats.LastPongTime.IsZero() {
		t.Error("no pong was ever received")
	}
}
