package analyzer

import "errors"

var (
	// ErrUnsupportedBackend is returned for an unknown symbolizer backend.
	ErrUnsupportedBackend = errors.New("unsupported symbolizer backend")

	// ErrMissingInput is returned when a request lacks the capture or binary.
	ErrMissingInput = errors.New("capture and binary are required")
)
