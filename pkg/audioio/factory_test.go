package audioio

import (
	"errors"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero rate", func(c *Config) { c.SampleRate = 0 }},
		{"zero channels", func(c *Config) { c.Channels = 0 }},
		{"negative block", func(c *Config) { c.BlockSize = -1 }},
		{"unknown backend", func(c *Config) { c.Backend = "jack" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestConfig_BlockDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockSize = 4096

	if d := cfg.BlockDuration(16000); d != 0.256 {
		t.Errorf("Expected 0.256s, got %f", d)
	}
	if d := cfg.BlockDuration(0); d != 0 {
		t.Errorf("Expected 0 for zero rate, got %f", d)
	}
}

func TestNewSource_Mock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	source, err := NewSource(cfg, nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	if source.Name() != "mock" {
		t.Errorf("Expected mock source, got %s", source.Name())
	}
}

func TestNewSource_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = -1

	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("Expected error for invalid config")
	}
}

func TestAvailableBackends(t *testing.T) {
	backends := AvailableBackends()
	if len(backends) == 0 || backends[0] != BackendMock {
		t.Errorf("Expected mock to always be available, got %v", backends)
	}
}

func TestAvailableBackends_MatchesBuild(t *testing.T) {
	backends := AvailableBackends()
	has := func(b Backend) bool {
		for _, x := range backends {
			if x == b {
				return true
			}
		}
		return false
	}

	if has(BackendMalgo) != malgoCompiled {
		t.Errorf("Expected malgo listed=%v, got %v", malgoCompiled, backends)
	}
	if has(BackendPortAudio) != portaudioCompiled {
		t.Errorf("Expected portaudio listed=%v, got %v", portaudioCompiled, backends)
	}
}

func TestNewSource_BackendNotCompiled(t *testing.T) {
	if portaudioCompiled {
		t.Skip("built with the portaudio tag")
	}

	cfg := DefaultConfig()
	cfg.Backend = BackendPortAudio

	_, err := NewSource(cfg, nil)
	if !errors.Is(err, ErrBackendNotCompiled) {
		t.Errorf("Expected ErrBackendNotCompiled, got %v", err)
	}
}

func TestNewSource_AutoWithoutBackends(t *testing.T) {
	if malgoCompiled || portaudioCompiled {
		t.Skip("hardware backend compiled in")
	}

	_, err := NewSource(DefaultConfig(), nil)
	if !IsDeviceUnavailable(err) {
		t.Errorf("Expected device unavailable, got %v", err)
	}
}
