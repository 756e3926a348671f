package audioio

import (
	"errors"
	"fmt"
	"log/slog"
)

// NewSource creates a capture source with the given configuration.
//
// With BackendAuto the compiled-in hardware backends are tried in
// preference order (malgo, then PortAudio). Auto never falls back to the
// mock; a build without hardware backends yields a DeviceError that
// IsDeviceUnavailable recognizes.
func NewSource(cfg Config, logger *slog.Logger) (CaptureSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Backend != BackendAuto {
		return newSource(cfg.Backend, cfg, logger)
	}

	var errs []error
	for _, backend := range preferredBackends() {
		source, err := newSource(backend, cfg, logger)
		if err == nil {
			return source, nil
		}
		logger.Debug("capture backend unavailable", "backend", backend, "error", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		errs = append(errs, ErrBackendNotCompiled)
	}
	return nil, unavailable(string(BackendAuto), "open", errors.Join(errs...))
}

func newSource(backend Backend, cfg Config, logger *slog.Logger) (CaptureSource, error) {
	logger.Info("creating capture source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"block_size", cfg.BlockSize,
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendMalgo:
		return newMalgoSource(cfg, logger)
	case BackendPortAudio:
		return newPortAudioSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// preferredBackends lists compiled-in hardware backends, best first.
func preferredBackends() []Backend {
	var backends []Backend
	if malgoCompiled {
		backends = append(backends, BackendMalgo)
	}
	if portaudioCompiled {
		backends = append(backends, BackendPortAudio)
	}
	return backends
}

// AvailableBackends returns the backends compiled into this binary. The
// mock is always first.
func AvailableBackends() []Backend {
	return append([]Backend{BackendMock}, preferredBackends()...)
}
