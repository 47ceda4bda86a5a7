package filtergen

// ErrorKind categorizes generation failures.
type ErrorKind int

const (
	// ErrServiceUnavailable indicates a transport or service-level failure
	// while issuing the generation call.
	ErrServiceUnavailable ErrorKind = iota
	// ErrEmptyResponse indicates the service replied with no content.
	ErrEmptyResponse
	// ErrMalformedResponse indicates the reply could not be parsed as the
	// declared {filter: string} shape.
	ErrMalformedResponse
	// ErrInvalidFilterValue indicates the reply parsed but the filter field
	// was missing, empty, or not usable.
	ErrInvalidFilterValue
)

// String returns the stable name of the kind, used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case ErrServiceUnavailable:
		return "service_unavailable"
	case ErrEmptyResponse:
		return "empty_response"
	case ErrMalformedResponse:
		return "malformed_response"
	case ErrInvalidFilterValue:
		return "invalid_filter_value"
	default:
		return "unknown"
	}
}

// GenerationError represents a specific type of filter-generation failure.
// Message is human-readable and surfaced to the user verbatim.
type GenerationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
