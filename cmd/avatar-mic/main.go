// Avatar Mic - captures the microphone and feeds recordings to an avatar
// controller, driven through a local HTTP control API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-avatar-audio/internal/config"
	"github.com/teslashibe/go-avatar-audio/internal/log"
	"github.com/teslashibe/go-avatar-audio/pkg/audioio"
	"github.com/teslashibe/go-avatar-audio/pkg/avatar"
	"github.com/teslashibe/go-avatar-audio/pkg/recorder"
	"github.com/teslashibe/go-avatar-audio/pkg/web"
)

func main() {
	configPath := flag.String("config", os.Getenv("AVATAR_CONFIG"), "Path to YAML config (optional)")
	addr := flag.String("addr", "", "Control server listen address (overrides web.addr)")
	avatarURL := flag.String("avatar-url", "", "Avatar controller WebSocket URL (overrides avatar.url)")
	backend := flag.String("backend", "", "Capture backend: auto, malgo, portaudio, mock")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Web.Addr = *addr
	}
	if *avatarURL != "" {
		cfg.Avatar.URL = *avatarURL
	}
	if *backend != "" {
		cfg.Audio.Backend = audioio.Backend(*backend)
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("avatar-mic failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	source, err := audioio.NewSource(cfg.Audio, logger)
	if err != nil {
		return fmt.Errorf("create audio source: %w", err)
	}

	res, err := audioio.NewResampler(cfg.Recorder.Resampler, logger)
	if err != nil {
		return err
	}

	rec, err := recorder.New(source,
		recorder.WithLogger(logger),
		recorder.WithResampler(res),
		recorder.WithDefaultTargetRate(cfg.Recorder.TargetRate),
		recorder.WithCaptureRate(cfg.Audio.SampleRate),
		recorder.WithRestartHandler(func(audio *recorder.EncodedAudio, err error) {
			if audio != nil {
				logger.Warn("recording replaced by a new start",
					"session_id", audio.SessionID,
					"samples", audio.Samples,
				)
			}
			if err != nil {
				logger.Warn("stopping replaced recording failed", "error", err)
			}
		}),
	)
	if err != nil {
		return err
	}
	// Teardown: the device is released and buffered audio discarded.
	defer rec.Cleanup()

	events := avatar.NewEvents()
	handle := avatar.NewHandle(events, logger)

	var controller *avatar.WSController
	if cfg.HasAvatar() {
		if cfg.Avatar.SampleRate != cfg.Recorder.TargetRate {
			logger.Info("recordings are resampled to the controller rate before sending",
				"avatar_rate", cfg.Avatar.SampleRate,
				"target_rate", cfg.Recorder.TargetRate,
			)
		}
		controller, err = avatar.NewWSController(cfg.Avatar, events, logger)
		if err != nil {
			return fmt.Errorf("create avatar controller: %w", err)
		}
		defer controller.Close()
	} else {
		logger.Info("no avatar controller configured, recordings stay local")
	}

	server, err := web.NewServer(cfg.Web, rec, handle, logger)
	if err != nil {
		return err
	}
	server.StartAsync(ctx)
	defer func() {
		if err := server.Shutdown(); err != nil {
			logger.Warn("control server shutdown failed", "error", err)
		}
	}()

	if controller != nil {
		go controller.Maintain(ctx, handle, avatar.DefaultRetryInterval)
	}

	logger.Info("avatar-mic ready",
		"addr", cfg.Web.Addr,
		"backend", source.Name(),
		"resampler", res.Name(),
		"capture_rate", cfg.Audio.SampleRate,
		"target_rate", cfg.Recorder.TargetRate,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
