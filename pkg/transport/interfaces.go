package transport

import (
	"io"
	"net"
)

// FrameReadWriter reads and writes length-prefixed frames.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

// Conn is the common surface of a framed connection endpoint.
type Conn interface {
	// Send writes an encoded envelope to the peer.
	Send(data []byte) error

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr

	io.Closer
}

// Compile-time interface satisfaction checks.
var (
	_ FrameReadWriter = (*Framer)(nil)
	_ Conn            = (*ServerConn)(nil)
)
