package gateway

import (
	"io"
	"net/http"
	"sort"

	"github.com/julienschmidt/httprouter"

	"github.com/hololinked-dev/hololinked-go/pkg/wire"
)

// maxBodySize bounds property/action payloads.
const maxBodySize = 1 << 20

// handleThings lists the attached Thing IDs.
func (g *Gateway) handleThings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ids := g.dispatcher.ThingIDs()
	sort.Strings(ids)
	g.writeJSON(w, map[string][]string{"things": ids})
}

// handleDescribe serves the capability listing for one Thing.
func (g *Gateway) handleDescribe(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	t, err := g.dispatcher.Thing(ps.ByName("id"))
	if err != nil {
		g.writeError(w, wire.StatusNotFound, err.Error())
		return
	}
	g.writeJSON(w, t.Describe())
}

// handleReadAll reads every readable property of a Thing.
func (g *Gateway) handleReadAll(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resp := g.dispatch(r.Context(), "http:"+r.RemoteAddr, &wire.Request{
		ThingID:   ps.ByName("id"),
		Operation: wire.OpReadAllProperties,
	}, nil)
	g.writeResponse(w, resp)
}

// handleReadProperty reads one property.
func (g *Gateway) handleReadProperty(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resp := g.dispatch(r.Context(), "http:"+r.RemoteAddr, &wire.Request{
		ThingID:    ps.ByName("id"),
		Capability: ps.ByName("name"),
		Operation:  wire.OpReadProperty,
	}, nil)
	g.writeResponse(w, resp)
}

// handleWriteProperty writes one property. The body is the JSON value;
// the response carries the applied value, which may have been cropped to
// the property's bounds.
func (g *Gateway) handleWriteProperty(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	body, ok := g.readBody(w, r)
	if !ok {
		return
	}

	resp := g.dispatch(r.Context(), "http:"+r.RemoteAddr, &wire.Request{
		ThingID:    ps.ByName("id"),
		Capability: ps.ByName("name"),
		Operation:  wire.OpWriteProperty,
		Payload:    body,
	}, nil)
	g.writeResponse(w, resp)
}

// handleInvokeAction invokes an action with the JSON body as arguments.
func (g *Gateway) handleInvokeAction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	body, ok := g.readBody(w, r)
	if !ok {
		return
	}

	resp := g.dispatch(r.Context(), "http:"+r.RemoteAddr, &wire.Request{
		ThingID:    ps.ByName("id"),
		Capability: ps.ByName("name"),
		Operation:  wire.OpInvokeAction,
		Payload:    body,
	}, nil)
	g.writeResponse(w, resp)
}

// readBody reads a bounded request body. An empty body is allowed and
// yields a nil payload.
func (g *Gateway) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		g.writeError(w, wire.StatusTransportError, "failed to read request body")
		return nil, false
	}
	if len(body) > maxBodySize {
		g.writeError(w, wire.StatusInvalidInput, "request body too large")
		return nil, false
	}
	if len(body) == 0 {
		return nil, true
	}
	return body, true
}
