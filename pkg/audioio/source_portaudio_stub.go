//go:build !portaudio

package audioio

import (
	"fmt"
	"log/slog"
)

const portaudioCompiled = false

// newPortAudioSource returns an error unless built with the portaudio tag.
func newPortAudioSource(cfg Config, logger *slog.Logger) (CaptureSource, error) {
	return nil, fmt.Errorf("%w: PortAudio support requires the portaudio build tag", ErrBackendNotCompiled)
}
