package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func writeTestTrace(t *testing.T, path string, events []Event) {
	t.Helper()

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.tlog")
	events := []Event{
		{Timestamp: time.Now(), ConnectionID: "a", Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "b", Layer: LayerWire, Category: CategoryMessage},
		{Timestamp: time.Now(), ConnectionID: "a", Layer: LayerDispatch, Category: CategoryState},
	}
	writeTestTrace(t, path, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var count int
	for {
		_, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	if count != 3 {
		t.Errorf("read %d events, want 3", count)
	}
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.tlog")
	events := []Event{
		{Timestamp: time.Now(), ConnectionID: "a", ThingID: "oscilloscope"},
		{Timestamp: time.Now(), ConnectionID: "b", ThingID: "spectrometer"},
		{Timestamp: time.Now(), ConnectionID: "a", ThingID: "spectrometer"},
	}
	writeTestTrace(t, path, events)

	t.Run("by connection", func(t *testing.T) {
		reader, err := NewFilteredReader(path, Filter{ConnectionID: "a"})
		if err != nil {
			t.Fatalf("NewFilteredReader failed: %v", err)
		}
		defer reader.Close()

		var count int
		for {
			e, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			if e.ConnectionID != "a" {
				t.Errorf("ConnectionID = %q, want %q", e.ConnectionID, "a")
			}
			count++
		}
		if count != 2 {
			t.Errorf("read %d events, want 2", count)
		}
	})

	t.Run("by thing", func(t *testing.T) {
		reader, err := NewFilteredReader(path, Filter{ThingID: "spectrometer"})
		if err != nil {
			t.Fatalf("NewFilteredReader failed: %v", err)
		}
		defer reader.Close()

		var count int
		for {
			_, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			count++
		}
		if count != 2 {
			t.Errorf("read %d events, want 2", count)
		}
	})
}

func TestFileLoggerCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.tlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	// Log after close is silently ignored
	logger.Log(Event{ConnectionID: "late"})
}
