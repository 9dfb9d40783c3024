// Package log provides structured protocol tracing for Thing servers.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, dispatch).
// It is separate from operational logging (slog): a protocol trace is a
// complete machine-readable record of frames, envelopes, and state changes
// for debugging and analysis.
//
// # Basic Usage
//
// Applications configure tracing by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Trace = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Trace, _ = log.NewFileLogger("/var/log/hololinked/server.tlog")
//
//	// Both: use MultiLogger
//	cfg.Trace = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded envelopes (MessageEvent)
//   - Dispatch: connection and Thing state changes (StateChangeEvent)
//
// Control messages (ping/pong/close) and errors have dedicated event types.
//
// # File Format
//
// Trace files are a concatenation of CBOR-encoded events, by convention with
// a .tlog extension. Reader streams them back with optional filtering.
package log
