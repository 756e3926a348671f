//go:build !cgo

package audioio

import (
	"fmt"
	"log/slog"
)

const malgoCompiled = false

// newMalgoSource returns an error when cgo is disabled.
func newMalgoSource(cfg Config, logger *slog.Logger) (CaptureSource, error) {
	return nil, fmt.Errorf("%w: malgo requires cgo", ErrBackendNotCompiled)
}
