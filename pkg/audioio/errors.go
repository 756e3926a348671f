package audioio

import (
	"errors"
	"fmt"
)

// Sentinel errors for the audioio package.
var (
	// ErrDeviceUnavailable indicates microphone access was denied or no
	// input device exists.
	ErrDeviceUnavailable = errors.New("audioio: device unavailable")

	// ErrSourceClosed indicates the source was closed and cannot be reopened.
	ErrSourceClosed = errors.New("audioio: source closed")

	// ErrAlreadyOpen indicates Open was called on a source that is capturing.
	ErrAlreadyOpen = errors.New("audioio: source already open")

	// ErrInvalidRate indicates a non-positive sample rate.
	ErrInvalidRate = errors.New("audioio: invalid sample rate")

	// ErrBackendNotCompiled indicates the backend was left out of this build.
	ErrBackendNotCompiled = errors.New("audioio: backend not compiled in")
)

// DeviceError describes a failure to acquire or release a capture device.
type DeviceError struct {
	// Backend is the backend name (e.g., "malgo", "portaudio", "mock").
	Backend string

	// Op is the operation that failed ("open", "start", "close").
	Op string

	// Cause is the underlying backend error.
	Cause error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("audioio [%s]: %s: %v", e.Backend, e.Op, e.Cause)
	}
	return fmt.Sprintf("audioio [%s]: %s failed", e.Backend, e.Op)
}

// Unwrap returns the underlying cause.
func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// Is reports open/start failures as ErrDeviceUnavailable so callers can test
// with errors.Is regardless of backend.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceUnavailable && (e.Op == "open" || e.Op == "start")
}

// unavailable builds a DeviceError for a failed acquisition.
func unavailable(backend, op string, cause error) error {
	return &DeviceError{Backend: backend, Op: op, Cause: cause}
}

// IsDeviceUnavailable returns true if the error means no usable input device.
func IsDeviceUnavailable(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable)
}
