package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/xid"

	"github.com/hololinked-dev/hololinked-go/pkg/dispatch"
	"github.com/hololinked-dev/hololinked-go/pkg/wire"
)

// streamEvent is the JSON shape of one event frame on SSE and WebSocket
// streams.
type streamEvent struct {
	Subscription string          `json:"subscription"`
	Event        string          `json:"event"`
	Seq          uint64          `json:"seq"`
	Dropped      uint64          `json:"dropped,omitempty"`
	Timestamp    int64           `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

func toStreamEvent(frame *wire.Event) *streamEvent {
	return &streamEvent{
		Subscription: frame.Subscription,
		Event:        frame.Event,
		Seq:          frame.Seq,
		Dropped:      frame.Dropped,
		Timestamp:    frame.Timestamp,
		Data:         frame.Payload,
	}
}

// handleEventStream serves one event subscription as a server-sent event
// stream. The subscription lives until the client disconnects.
func (g *Gateway) handleEventStream(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.writeError(w, wire.StatusInternalError, "streaming not supported")
		return
	}

	origin := "sse:" + xid.New().String()
	frames := make(chan *wire.Event)
	done := make(chan struct{})

	// The delivery goroutine must never block past the stream's lifetime,
	// or releasing the subscription would hang.
	deliver := func(frame *wire.Event) {
		select {
		case frames <- frame:
		case <-done:
		}
	}

	resp := g.dispatch(r.Context(), origin, &wire.Request{
		ThingID:    ps.ByName("id"),
		Capability: ps.ByName("name"),
		Operation:  wire.OpSubscribeEvent,
	}, deliver)
	if resp.Status != wire.StatusSuccess {
		g.writeError(w, resp.Status, resp.Message)
		return
	}

	defer func() {
		close(done)
		g.dispatcher.Publisher().ReleaseOwner(origin)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case frame := <-frames:
			data, err := json.Marshal(toStreamEvent(frame))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", frame.Event, frame.Seq, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// wsCommand is a client-to-server message on the WebSocket stream.
type wsCommand struct {
	Action       string `json:"action"` // "subscribe" or "unsubscribe"
	Event        string `json:"event,omitempty"`
	Subscription string `json:"subscription,omitempty"`
}

// wsReply confirms a command.
type wsReply struct {
	Action       string `json:"action"`
	Event        string `json:"event,omitempty"`
	Subscription string `json:"subscription,omitempty"`
	Error        string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket streams event frames for one Thing over a WebSocket.
// The client subscribes and unsubscribes with JSON commands; frames and
// command replies are interleaved on the socket.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	thingID := ps.ByName("id")
	if _, err := g.dispatcher.Thing(thingID); err != nil {
		g.writeError(w, wire.StatusNotFound, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	origin := "ws:" + xid.New().String()
	s := &wsSession{
		gateway: g,
		conn:    conn,
		thingID: thingID,
		origin:  origin,
		done:    make(chan struct{}),
	}
	s.run(r)
}

// wsSession is one WebSocket connection. Writes are serialized through a
// single writer goroutine fed by the outbound channel.
type wsSession struct {
	gateway *Gateway
	conn    *websocket.Conn
	thingID string
	origin  string
	done    chan struct{}
}

func (s *wsSession) run(r *http.Request) {
	outbound := make(chan any, 16)

	go s.writePump(outbound)

	defer func() {
		close(s.done)
		s.gateway.dispatcher.Publisher().ReleaseOwner(s.origin)
		_ = s.conn.Close()
	}()

	deliver := func(frame *wire.Event) {
		select {
		case outbound <- toStreamEvent(frame):
		case <-s.done:
		}
	}

	for {
		var cmd wsCommand
		if err := s.conn.ReadJSON(&cmd); err != nil {
			return
		}

		switch cmd.Action {
		case "subscribe":
			resp := s.gateway.dispatch(r.Context(), s.origin, &wire.Request{
				ThingID:    s.thingID,
				Capability: cmd.Event,
				Operation:  wire.OpSubscribeEvent,
			}, deliver)
			s.reply(outbound, cmd, resp, func(reply *wsReply, result *dispatch.SubscribeResult) {
				reply.Subscription = result.Subscription
			})

		case "unsubscribe":
			payload, _ := json.Marshal(dispatch.UnsubscribeRequest{Subscription: cmd.Subscription})
			resp := s.gateway.dispatch(r.Context(), s.origin, &wire.Request{
				ThingID:    s.thingID,
				Capability: cmd.Event,
				Operation:  wire.OpUnsubscribeEvent,
				Payload:    payload,
			}, nil)
			s.reply(outbound, cmd, resp, nil)

		default:
			s.send(outbound, &wsReply{Action: cmd.Action, Error: "unknown action"})
		}
	}
}

// reply sends the command confirmation, decoding the subscribe result when
// the command succeeded.
func (s *wsSession) reply(outbound chan<- any, cmd wsCommand, resp *wire.Response, onResult func(*wsReply, *dispatch.SubscribeResult)) {
	reply := &wsReply{Action: cmd.Action, Event: cmd.Event}

	if resp.Status != wire.StatusSuccess {
		reply.Error = resp.Status.String()
		if resp.Message != "" {
			reply.Error = resp.Message
		}
		s.send(outbound, reply)
		return
	}

	if onResult != nil {
		var result dispatch.SubscribeResult
		if err := json.Unmarshal(resp.Payload, &result); err == nil {
			onResult(reply, &result)
		}
	}
	s.send(outbound, reply)
}

func (s *wsSession) send(outbound chan<- any, v any) {
	select {
	case outbound <- v:
	case <-s.done:
	}
}

// writePump serializes all socket writes.
func (s *wsSession) writePump(outbound <-chan any) {
	for {
		select {
		case v := <-outbound:
			if err := s.conn.WriteJSON(v); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
