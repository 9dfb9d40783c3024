package log

// Logger receives trace events from the transport and wire layers. A nil
// Logger in a config disables tracing; implementations must tolerate calls
// from multiple goroutines and return quickly, since Log sits on the frame
// read and write paths.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event. The zero value is ready to use.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

// MultiLogger fans each event out to several loggers, typically a console
// SlogAdapter next to a FileLogger capturing the full trace.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger creates a logger that forwards to every given sink in order.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

func (m *MultiLogger) Log(event Event) {
	for _, s := range m.sinks {
		s.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
