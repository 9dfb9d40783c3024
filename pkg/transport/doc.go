// Package transport implements the framed TCP transport for Thing servers.
//
// Envelopes are CBOR-encoded (see pkg/wire) and carried in frames with a
// 4-byte big-endian length prefix. A connection starts with a Hello/HelloAck
// handshake that negotiates the payload codec; after that, requests flow to
// the dispatcher and event pushes flow back over the same connection.
//
// Server hosts Things behind a dispatch.Dispatcher:
//
//	srv, _ := transport.NewServer(dispatcher, transport.ServerConfig{
//	    Address: ":7440",
//	})
//	srv.Start(ctx)
//
// Client connects, correlates responses by message id, and demultiplexes
// event pushes to subscription handlers:
//
//	c, _ := transport.Dial(ctx, transport.ClientConfig{
//	    Address: "localhost:7440",
//	    Codec:   "cbor",
//	})
//	var value float64
//	c.ReadProperty(ctx, "spectrometer", "integration_time", &value)
//
// TLS is optional on both sides; when enabled the server requires TLS 1.3
// and advertises the "hololinked/1" ALPN protocol. Liveness is monitored
// with ping/pong control envelopes driven by the client.
package transport
