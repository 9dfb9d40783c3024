package wire

// Status represents a response status code. Non-zero values form the
// protocol's error taxonomy.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusNotFound indicates an unknown Thing or capability name.
	StatusNotFound Status = 1

	// StatusInvalidInput indicates the payload failed shape validation.
	// The handler was never invoked.
	StatusInvalidInput Status = 2

	// StatusInvalidState indicates the capability is not allowed in the
	// Thing's current state. The handler was never invoked.
	StatusInvalidState Status = 3

	// StatusHandlerError indicates a domain-level failure reported by the
	// handler itself.
	StatusHandlerError Status = 4

	// StatusInternalError indicates an unexpected fault inside dispatch.
	StatusInternalError Status = 5

	// StatusTimeout indicates no handler response within the deadline.
	// The handler is not aborted; its late result is discarded.
	StatusTimeout Status = 6

	// StatusTransportError indicates an encode/decode or connection fault.
	StatusTransportError Status = 7
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusInvalidInput:
		return "INVALID_INPUT"
	case StatusInvalidState:
		return "INVALID_STATE"
	case StatusHandlerError:
		return "HANDLER_ERROR"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusTransportError:
		return "TRANSPORT_ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
