package recorder

import (
	"errors"
	"fmt"
)

// Sentinel errors for the recorder package.
var (
	// ErrInvalidTargetRate indicates a non-positive target sample rate.
	ErrInvalidTargetRate = errors.New("recorder: invalid target sample rate")

	// ErrNoSource indicates the recorder was built without a capture source.
	ErrNoSource = errors.New("recorder: capture source is required")
)

// CloseError reports that the capture device failed to close cleanly at the
// end of a session. The recorder is Idle regardless, and any audio captured
// before the failure is returned alongside it.
type CloseError struct {
	// SessionID identifies the session being stopped.
	SessionID string

	// Cause is the error returned by the capture source.
	Cause error
}

// Error implements the error interface.
func (e *CloseError) Error() string {
	return fmt.Sprintf("recorder: close device (session %s): %v", e.SessionID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *CloseError) Unwrap() error {
	return e.Cause
}

// IsCloseError returns true if the error is a device close failure.
func IsCloseError(err error) bool {
	var closeErr *CloseError
	return errors.As(err, &closeErr)
}
