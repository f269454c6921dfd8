package worker

import "errors"

// Sentinel errors for worker construction
var (
	// ErrNilBuffer indicates a worker was started without a buffer
	ErrNilBuffer = errors.New("buffer cannot be nil")

	// ErrNilGenerator indicates a producer was started without a generator
	ErrNilGenerator = errors.New("generator function cannot be nil")
)
