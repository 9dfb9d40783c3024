// Package gateway exposes attached Things over HTTP.
//
// The gateway maps the wire operations onto a REST-shaped route table:
//
//	GET  /things                        list attached Thing IDs
//	GET  /things/:id                    capability listing
//	GET  /things/:id/properties         read all properties
//	GET  /things/:id/properties/:name   read one property
//	PUT  /things/:id/properties/:name   write one property
//	POST /things/:id/actions/:name      invoke an action
//	GET  /things/:id/events/:name       server-sent event stream
//	GET  /things/:id/ws                 WebSocket event stream
//	GET  /metrics                       Prometheus exposition (when configured)
//
// Payloads are always JSON, independent of what socket clients negotiate.
// Error statuses map onto HTTP codes: NOT_FOUND is 404, INVALID_INPUT is
// 400, INVALID_STATE is 409, TIMEOUT is 504, TRANSPORT_ERROR is 502 and
// everything else is 500, with a structured JSON error body.
package gateway
