// Package audioio provides microphone capture and the resample/encode pipeline
// that turns captured float samples into wire-ready PCM16.
//
// This package supports multiple capture backends:
//   - malgo (miniaudio) - default on Linux, macOS and Windows when cgo is enabled
//   - PortAudio - opt-in with the "portaudio" build tag
//   - Mock - CI/Testing without hardware
//
// The backend is selected automatically based on build tags and platform,
// or can be explicitly specified via configuration.
package audioio

import (
	"fmt"
)

// Backend represents the capture backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendMalgo uses miniaudio through github.com/gen2brain/malgo.
	BackendMalgo Backend = "malgo"
	// BackendPortAudio uses PortAudio for cross-platform audio I/O.
	BackendPortAudio Backend = "portaudio"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// DefaultBlockSize is the number of frames delivered per capture callback.
const DefaultBlockSize = 4096

// DefaultSampleRate is the rate requested from the device and the default
// target rate expected by the avatar driving service.
const DefaultSampleRate = 16000

// Config holds capture configuration.
type Config struct {
	// Backend specifies which capture backend to use.
	// Default: "auto" (selects best available for platform)
	Backend Backend `yaml:"backend" json:"backend" mapstructure:"backend"`

	// SampleRate is the rate requested from the device in Hz. The device may
	// grant a different rate; Open reports the granted one. The recorder
	// resamples from it to each session's target rate.
	// Default: 16000
	SampleRate int `yaml:"sample_rate" json:"sample_rate" mapstructure:"sample_rate"`

	// Channels is the number of channels requested from the device.
	// Blocks are always downmixed to mono before delivery.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels" mapstructure:"channels"`

	// BlockSize is the number of frames per delivered block.
	// Default: 4096
	BlockSize int `yaml:"block_size" json:"block_size" mapstructure:"block_size"`

	// EchoCancellation, NoiseSuppression and AutoGainControl are processing
	// constraints requested from the platform. Backends without a processing
	// graph log them and continue.
	EchoCancellation bool `yaml:"echo_cancellation" json:"echo_cancellation" mapstructure:"echo_cancellation"`
	NoiseSuppression bool `yaml:"noise_suppression" json:"noise_suppression" mapstructure:"noise_suppression"`
	AutoGainControl  bool `yaml:"auto_gain_control" json:"auto_gain_control" mapstructure:"auto_gain_control"`

	// Device is the backend-specific device name. Empty selects the default
	// input device.
	Device string `yaml:"device" json:"device" mapstructure:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendAuto,
		SampleRate:       DefaultSampleRate,
		Channels:         1,
		BlockSize:        DefaultBlockSize,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  false,
		Device:           "", // Use system default
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	}
	switch c.Backend {
	case BackendAuto, BackendMalgo, BackendPortAudio, BackendMock:
	default:
		return fmt.Errorf("unsupported backend: %s", c.Backend)
	}
	return nil
}

// BlockDuration returns the duration of one block in seconds at the given rate.
func (c *Config) BlockDuration(rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(c.BlockSize) / float64(rate)
}
