// Package config loads the application configuration for the avatar
// microphone commands.
//
// Values come from defaults, then an optional YAML file, then AVATAR_*
// environment variables. Nested keys map to upper-case names joined by
// underscores, so audio.sample_rate is AVATAR_AUDIO_SAMPLE_RATE.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-avatar-audio/pkg/audioio"
	"github.com/teslashibe/go-avatar-audio/pkg/avatar"
	"github.com/teslashibe/go-avatar-audio/pkg/recorder"
	"github.com/teslashibe/go-avatar-audio/pkg/web"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "AVATAR"

// DefaultControlURL is where the control server listens by default.
const DefaultControlURL = "http://localhost:8080"

// Config is the application configuration.
type Config struct {
	Log      LogConfig       `yaml:"log" json:"log" mapstructure:"log"`
	Audio    audioio.Config  `yaml:"audio" json:"audio" mapstructure:"audio"`
	Recorder RecorderConfig  `yaml:"recorder" json:"recorder" mapstructure:"recorder"`
	Avatar   avatar.WSConfig `yaml:"avatar" json:"avatar" mapstructure:"avatar"`
	Web      web.Config      `yaml:"web" json:"web" mapstructure:"web"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level" mapstructure:"level"`
	// Format is text or json. Empty picks by GO_ENV.
	Format string `yaml:"format" json:"format" mapstructure:"format"`
}

// RecorderConfig configures capture sessions.
type RecorderConfig struct {
	// TargetRate is used when a start request carries no rate.
	TargetRate int `yaml:"target_rate" json:"target_rate" mapstructure:"target_rate"`
	// Resampler is linear, polyphase, polyphase-low or polyphase-high.
	Resampler string `yaml:"resampler" json:"resampler" mapstructure:"resampler"`
}

// DefaultConfig returns a Config with sensible defaults. The avatar URL is
// empty, which runs without a controller.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Audio: audioio.DefaultConfig(),
		Recorder: RecorderConfig{
			TargetRate: recorder.DefaultTargetRate,
			Resampler:  "linear",
		},
		Avatar: avatar.DefaultWSConfig(),
		Web:    web.DefaultConfig(),
	}
}

// HasAvatar reports whether a controller endpoint is configured.
func (c *Config) HasAvatar() bool {
	return c.Avatar.URL != ""
}

// Validate checks every section.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	if c.Recorder.TargetRate <= 0 {
		return fmt.Errorf("recorder.target_rate must be positive, got %d", c.Recorder.TargetRate)
	}
	if _, err := audioio.NewResampler(c.Recorder.Resampler, nil); err != nil {
		return fmt.Errorf("recorder.resampler: %w", err)
	}

	if c.HasAvatar() {
		if err := c.Avatar.Validate(); err != nil {
			return fmt.Errorf("avatar: %w", err)
		}
	}

	if err := c.Web.Validate(); err != nil {
		return fmt.Errorf("web: %w", err)
	}
	return nil
}

// Load reads configuration from path (optional) and the environment, then
// validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: file not found: %s", path)
			}
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("audio.backend", string(d.Audio.Backend))
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.block_size", d.Audio.BlockSize)
	v.SetDefault("audio.echo_cancellation", d.Audio.EchoCancellation)
	v.SetDefault("audio.noise_suppression", d.Audio.NoiseSuppression)
	v.SetDefault("audio.auto_gain_control", d.Audio.AutoGainControl)
	v.SetDefault("audio.device", d.Audio.Device)

	v.SetDefault("recorder.target_rate", d.Recorder.TargetRate)
	v.SetDefault("recorder.resampler", d.Recorder.Resampler)

	v.SetDefault("avatar.url", d.Avatar.URL)
	v.SetDefault("avatar.codec", d.Avatar.Codec)
	v.SetDefault("avatar.sample_rate", d.Avatar.SampleRate)
	v.SetDefault("avatar.handshake_timeout", d.Avatar.HandshakeTimeout)
	v.SetDefault("avatar.write_timeout", d.Avatar.WriteTimeout)
	v.SetDefault("avatar.ping_interval", d.Avatar.PingInterval)

	v.SetDefault("web.addr", d.Web.Addr)
	v.SetDefault("web.chunk_bytes", d.Web.ChunkBytes)
	v.SetDefault("web.send_on_stop", d.Web.SendOnStop)
}

// ControlURL returns the control server URL from AVATAR_CONTROL_URL.
// Falls back to the provided default if not set.
func ControlURL(defaultURL string) string {
	if u := os.Getenv(EnvPrefix + "_CONTROL_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return defaultURL
}
