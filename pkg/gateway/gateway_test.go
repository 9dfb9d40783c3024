package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hololinked-dev/hololinked-go/pkg/dispatch"
	"github.com/hololinked-dev/hololinked-go/pkg/events"
	"github.com/hololinked-dev/hololinked-go/pkg/thing"
)

// newTestGateway builds a gateway over a spectrometer-shaped Thing and
// serves it from an httptest server.
func newTestGateway(t *testing.T) (*httptest.Server, *events.Publisher) {
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

	prop := thing.NewProperty(&thing.PropertyMetadata{
		Name:    "integration_time",
		Default: 0.025,
		Min:     0.001,
		Policy:  thing.BoundsCrop,
	})
	if err := th.AddProperty(prop); err != nil {
		t.Fatalf("AddProperty failed: %v", err)
	}

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

	g, err := New(d, Config{Address: ":0"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	srv := httptest.NewServer(g)
	t.Cleanup(func() {
		srv.Close()
		d.Close()
		pub.Close()
	})
	return srv, pub
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
	}
	return resp
}

func TestListThings(t *testing.T) {
	srv, _ := newTestGateway(t)

	var body map[string][]string
	resp := getJSON(t, srv.URL+"/things", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(body["things"]) != 1 || body["things"][0] != "dev-1" {
		t.Errorf("things = %v", body["things"])
	}
}

func TestDescribe(t *testing.T) {
	srv, _ := newTestGateway(t)

	var desc thing.Description
	resp := getJSON(t, srv.URL+"/things/dev-1", &desc)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if desc.ID != "dev-1" || desc.State != "DISCONNECTED" {
		t.Errorf("description = %+v", desc)
	}
	if _, ok := desc.Properties["integration_time"]; !ok {
		t.Error("integration_time missing from listing")
	}
	if _, ok := desc.Actions["connect"]; !ok {
		t.Error("connect missing from listing")
	}
}

func TestReadWriteProperty(t *testing.T) {
	srv, _ := newTestGateway(t)
	url := srv.URL + "/things/dev-1/properties/integration_time"

	var value float64
	if resp := getJSON(t, url, &value); resp.StatusCode != http.StatusOK {
		t.Fatalf("read status = %d", resp.StatusCode)
	}
	if value != 0.025 {
		t.Errorf("value = %v, want 0.025", value)
	}

	// Write below the minimum gets cropped; the applied value comes back.
	req, _ := http.NewRequest(http.MethodPut, url, strings.NewReader("-5.0"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("write status = %d", resp.StatusCode)
	}
	var adjusted float64
	if err := json.NewDecoder(resp.Body).Decode(&adjusted); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if adjusted != 0.001 {
		t.Errorf("adjusted = %v, want 0.001", adjusted)
	}

	getJSON(t, url, &value)
	if value != 0.001 {
		t.Errorf("value after write = %v, want 0.001", value)
	}
}

func TestReadAllProperties(t *testing.T) {
	srv, _ := newTestGateway(t)

	var all map[string]any
	resp := getJSON(t, srv.URL+"/things/dev-1/properties", &all)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if all["integration_time"] != 0.025 {
		t.Errorf("all = %v", all)
	}
}

func TestInvokeAction(t *testing.T) {
	srv, _ := newTestGateway(t)
	url := srv.URL + "/things/dev-1/actions/connect"

	resp, err := http.Post(url, "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	// State gating: a second connect conflicts.
	resp, err = http.Post(url, "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["error"] != "INVALID_STATE" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestGateway(t)

	cases := []struct {
		name string
		url  string
		want int
	}{
		{"unknown thing", "/things/nope", http.StatusNotFound},
		{"unknown property", "/things/dev-1/properties/nope", http.StatusNotFound},
		{"unknown event", "/things/dev-1/events/nope", http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tc.url)
			if err != nil {
				t.Fatalf("GET failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestServerSentEvents(t *testing.T) {
	srv, pub := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/things/dev-1/events/measurement")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Subscription registration races with the first emit; poll until the
	// subscriber is visible.
	deadline := time.Now().Add(2 * time.Second)
	for pub.SubscriberCount("dev-1", "measurement") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := pub.Source("dev-1").Emit("measurement", map[string]any{"counts": 42}); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if data == "" {
		t.Fatal("no data line received")
	}

	var frame streamEvent
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		t.Fatalf("frame decode failed: %v", err)
	}
	if frame.Event != "measurement" || frame.Seq != 1 {
		t.Errorf("frame = %+v", frame)
	}
	var payload map[string]any
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("payload decode failed: %v", err)
	}
	if payload["counts"] != 42.0 {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocketStream(t *testing.T) {
	srv, pub := newTestGateway(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/things/dev-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsCommand{Action: "subscribe", Event: "measurement"}); err != nil {
		t.Fatalf("subscribe write failed: %v", err)
	}

	var reply wsReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("reply read failed: %v", err)
	}
	if reply.Error != "" || reply.Subscription == "" {
		t.Fatalf("reply = %+v", reply)
	}

	if err := pub.Source("dev-1").Emit("measurement", map[string]any{"counts": 7}); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	var frame streamEvent
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("frame read failed: %v", err)
	}
	if frame.Event != "measurement" || frame.Subscription != reply.Subscription {
		t.Errorf("frame = %+v", frame)
	}

	// Unsubscribe confirms and stops delivery.
	if err := conn.WriteJSON(wsCommand{
		Action:       "unsubscribe",
		Event:        "measurement",
		Subscription: reply.Subscription,
	}); err != nil {
		t.Fatalf("unsubscribe write failed: %v", err)
	}
	var unsubReply wsReply
	if err := conn.ReadJSON(&unsubReply); err != nil {
		t.Fatalf("reply read failed: %v", err)
	}
	if unsubReply.Error != "" {
		t.Fatalf("unsubscribe reply = %+v", unsubReply)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pub.SubscriberCount("dev-1", "measurement") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketUnknownThing(t *testing.T) {
	srv, _ := newTestGateway(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/things/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial to unknown thing succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("resp = %+v", resp)
	}
}
