package avatar

import (
	"errors"
	"fmt"
)

// Sentinel errors for the avatar package.
var (
	// ErrControllerNotLoaded indicates no controller is attached to the handle.
	ErrControllerNotLoaded = errors.New("avatar: controller not loaded")

	// ErrInterruptUnsupported indicates the controller cannot interrupt.
	ErrInterruptUnsupported = errors.New("avatar: controller does not support interrupt")

	// ErrHandlerRegistered indicates a handler already exists for the event kind.
	ErrHandlerRegistered = errors.New("avatar: handler already registered")

	// ErrNotConnected indicates the controller transport is not connected.
	ErrNotConnected = errors.New("avatar: not connected")

	// ErrAlreadyConnected indicates Connect was called twice.
	ErrAlreadyConnected = errors.New("avatar: already connected")

	// ErrEmptyAudio indicates there is nothing to send.
	ErrEmptyAudio = errors.New("avatar: empty audio")
)

// ConnectionError describes a failure to reach the controller endpoint.
type ConnectionError struct {
	// URL is the endpoint being dialed.
	URL string

	// StatusCode is the HTTP status of a rejected handshake, if any.
	StatusCode int

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("avatar: connect %s (HTTP %d): %v", e.URL, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("avatar: connect %s: %v", e.URL, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsNotLoaded returns true if the error means no controller is present.
func IsNotLoaded(err error) bool {
	return errors.Is(err, ErrControllerNotLoaded)
}

// IsNotConnected returns true if the controller cannot currently send.
func IsNotConnected(err error) bool {
	if errors.Is(err, ErrNotConnected) {
		return true
	}
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
