package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hololinked-dev/hololinked-go/pkg/log"
)

// Envelopes travel as frames: a 4-byte big-endian length followed by that
// many bytes of encoded envelope. The prefix counts only the envelope, not
// itself. A zero length is never valid on the wire.
const (
	lengthPrefixSize = 4

	// DefaultMaxMessageSize caps frame payloads at 64 KB unless a
	// config overrides it. Both peers enforce their own cap.
	DefaultMaxMessageSize = 64 * 1024

	// Frames larger than this are truncated in trace events.
	maxTracedFrameBytes = 4 * 1024
)

var (
	// ErrMessageTooLarge reports a frame over the negotiated cap, on
	// either the write or the read side.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageEmpty reports a zero-length frame.
	ErrMessageEmpty = errors.New("message is empty")

	// ErrFrameTruncated reports a connection that died mid-frame.
	ErrFrameTruncated = errors.New("frame truncated")
)

// Framer reads and writes length-prefixed frames on one connection.
// Writes are serialized internally so the response path and concurrent
// event deliveries can share the socket; reads must come from a single
// goroutine, which both the client and server loops guarantee.
type Framer struct {
	r              io.Reader
	w              io.Writer
	writeMu        sync.Mutex
	maxMessageSize uint32
	lengthBuf      [lengthPrefixSize]byte

	trace  log.Logger
	connID string
}

// NewFramer creates a framer with the default message size cap.
func NewFramer(rw io.ReadWriter) *Framer {
	return NewFramerWithMaxSize(rw, DefaultMaxMessageSize)
}

// NewFramerWithMaxSize creates a framer with an explicit message size cap.
func NewFramerWithMaxSize(rw io.ReadWriter, maxSize uint32) *Framer {
	return &Framer{
		r:              rw,
		w:              rw,
		maxMessageSize: maxSize,
	}
}

// SetLogger enables frame-level tracing. Pass nil to disable.
func (f *Framer) SetLogger(trace log.Logger, connID string) {
	f.trace = trace
	f.connID = connID
}

// WriteFrame writes one frame. Safe for concurrent use.
func (f *Framer) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if uint32(len(data)) > f.maxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), f.maxMessageSize)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))

	if _, err := f.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := f.w.Write(data); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}

	f.traceFrame(data, log.DirectionOut)
	return nil
}

// ReadFrame reads one frame and returns its payload. io.EOF means the
// peer closed cleanly between frames; a close mid-frame is reported as
// ErrFrameTruncated.
func (f *Framer) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(f.r, f.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(f.lengthBuf[:])
	if length == 0 {
		return nil, ErrMessageEmpty
	}
	if length > f.maxMessageSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, f.maxMessageSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	f.traceFrame(payload, log.DirectionIn)
	return payload, nil
}

func (f *Framer) traceFrame(data []byte, direction log.Direction) {
	if f.trace == nil {
		return
	}

	frameData := data
	truncated := false
	if len(data) > maxTracedFrameBytes {
		frameData = data[:maxTracedFrameBytes]
		truncated = true
	}

	f.trace.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: f.connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      lengthPrefixSize + len(data),
			Data:      frameData,
			Truncated: truncated,
		},
	})
}
