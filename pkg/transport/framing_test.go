package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&buf)

	payloads := [][]byte{
		{0x01},
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 1024),
	}

	for _, p := range payloads {
		if err := f.WriteFrame(p); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}
	for i, want := range payloads {
		got, err := f.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %x, want %x", i, got, want)
		}
	}

	// No more frames
	if _, err := f.ReadFrame(); err != io.EOF {
		t.Errorf("ReadFrame after drain = %v, want io.EOF", err)
	}
}

func TestWriteFrameEmpty(t *testing.T) {
	f := NewFramer(&bytes.Buffer{})
	if err := f.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("WriteFrame(nil) = %v, want ErrMessageEmpty", err)
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	f := NewFramerWithMaxSize(&bytes.Buffer{}, 8)
	if err := f.WriteFrame(make([]byte, 9)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("WriteFrame oversized = %v, want ErrMessageTooLarge", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFramer(&buf).WriteFrame(make([]byte, 64)); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	// The reading side enforces its own cap regardless of what the
	// writer allowed.
	f := NewFramerWithMaxSize(&buf, 16)
	if _, err := f.ReadFrame(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("ReadFrame = %v, want ErrMessageTooLarge", err)
	}
}

// brokenConn yields a fixed byte sequence and then EOF, standing in for a
// connection that died mid-frame.
type brokenConn struct {
	*bytes.Reader
}

func (brokenConn) Write(p []byte) (int, error) { return len(p), nil }

func framerOver(data []byte) *Framer {
	return NewFramer(brokenConn{bytes.NewReader(data)})
}

func TestReadFrameTruncated(t *testing.T) {
	t.Run("short prefix", func(t *testing.T) {
		if _, err := framerOver([]byte{0x00, 0x00}).ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
			t.Errorf("ReadFrame = %v, want ErrFrameTruncated", err)
		}
	})

	t.Run("short payload", func(t *testing.T) {
		// Prefix says 10 bytes, only 3 follow
		data := []byte{0x00, 0x00, 0x00, 0x0A, 0x01, 0x02, 0x03}
		if _, err := framerOver(data).ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
			t.Errorf("ReadFrame = %v, want ErrFrameTruncated", err)
		}
	})

	t.Run("zero length", func(t *testing.T) {
		data := []byte{0x00, 0x00, 0x00, 0x00}
		if _, err := framerOver(data).ReadFrame(); !errors.Is(err, ErrMessageEmpty) {
			t.Errorf("ReadFrame = %v, want ErrMessageEmpty", err)
		}
	})
}

func TestConcurrentWriters(t *testing.T) {
	var buf bytes.Buffer
	f := NewFramer(&buf)

	const writers = 8
	const frames = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < frames; j++ {
				if err := f.WriteFrame([]byte("payload")); err != nil {
					t.Errorf("WriteFrame failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for i := 0; i < writers*frames; i++ {
		got, err := f.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if string(got) != "payload" {
			t.Fatalf("frame %d corrupted: %q", i, got)
		}
	}
}
