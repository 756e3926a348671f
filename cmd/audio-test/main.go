// Audio Test - records from the microphone (or re-encodes a PCM16LE file)
// and writes the result as PCM16LE, optionally streaming it to an avatar
// controller.
//
// Usage:
//
//	audio-test -duration 5s -out take.pcm
//	audio-test -duration 5s -capture-rate 48000 -rate 16000 -out take.pcm
//	audio-test -in capture_48k.pcm -in-rate 48000 -rate 16000 -out take.pcm
//	audio-test -remote http://localhost:8080 -duration 3s -out take.pcm
//	audio-test -duration 3s -avatar-url ws://localhost:9000/audio -codec opus
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-avatar-audio/internal/config"
	"github.com/teslashibe/go-avatar-audio/internal/httpc"
	"github.com/teslashibe/go-avatar-audio/internal/log"
	"github.com/teslashibe/go-avatar-audio/pkg/audioio"
	"github.com/teslashibe/go-avatar-audio/pkg/avatar"
	"github.com/teslashibe/go-avatar-audio/pkg/codec"
	"github.com/teslashibe/go-avatar-audio/pkg/recorder"
)

type options struct {
	duration   time.Duration
	rate       int
	capRate    int
	out        string
	in         string
	inRate     int
	backend    string
	resampler  string
	remote     string
	avatarURL  string
	codecName  string
	chunkBytes int
}

func main() {
	var opts options
	flag.DurationVar(&opts.duration, "duration", 3*time.Second, "Recording length")
	flag.IntVar(&opts.rate, "rate", recorder.DefaultTargetRate, "Target sample rate in Hz")
	flag.IntVar(&opts.capRate, "capture-rate", 0, "Rate requested from the device (0 uses -rate)")
	flag.StringVar(&opts.out, "out", "recording.pcm", "Output PCM16LE file (empty to skip)")
	flag.StringVar(&opts.in, "in", "", "Encode this PCM16LE mono file instead of recording")
	flag.IntVar(&opts.inRate, "in-rate", 48000, "Sample rate of -in")
	flag.StringVar(&opts.backend, "backend", string(audioio.BackendAuto), "Capture backend: auto, malgo, portaudio, mock")
	flag.StringVar(&opts.resampler, "resampler", "polyphase-high", "Resampler: linear, polyphase, polyphase-low, polyphase-high")
	flag.StringVar(&opts.remote, "remote", "", "Drive a running avatar-mic at this URL (\"env\" reads AVATAR_CONTROL_URL)")
	flag.StringVar(&opts.avatarURL, "avatar-url", "", "Stream the result to this avatar controller")
	flag.StringVar(&opts.codecName, "codec", codec.PCM16, "Controller payload codec")
	flag.IntVar(&opts.chunkBytes, "chunk-bytes", avatar.DefaultChunkBytes, "Streaming chunk size")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level, "text")
	logger := log.L()

	fmt.Println("🎤 Audio Test")
	fmt.Println("=============")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	audio, err := produce(ctx, opts, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	if audio == nil {
		fmt.Println("⚠️  Nothing was captured")
		return
	}

	fmt.Printf("✅ %d samples @ %d Hz (%v, %d bytes)\n",
		audio.Samples, audio.SampleRate, audio.Duration.Round(time.Millisecond), len(audio.Data))

	if opts.out != "" {
		if err := os.WriteFile(opts.out, audio.Data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "❌ write %s: %v\n", opts.out, err)
			os.Exit(1)
		}
		fmt.Printf("💾 Wrote %s (play: ffplay -f s16le -ar %d -ac 1 %s)\n", opts.out, audio.SampleRate, opts.out)
	}

	if opts.avatarURL != "" {
		if err := stream(ctx, opts, audio, logger); err != nil {
			fmt.Fprintf(os.Stderr, "❌ stream: %v\n", err)
			os.Exit(1)
		}
	}
}

func produce(ctx context.Context, opts options, logger *slog.Logger) (*recorder.EncodedAudio, error) {
	switch {
	case opts.in != "":
		return encodeFile(opts, logger)
	case opts.remote != "":
		return recordRemote(ctx, opts)
	default:
		return recordLocal(ctx, opts, logger)
	}
}

// encodeFile resamples a pre-recorded PCM16LE file.
func encodeFile(opts options, logger *slog.Logger) (*recorder.EncodedAudio, error) {
	data, err := os.ReadFile(opts.in)
	if err != nil {
		return nil, err
	}
	res, err := audioio.NewResampler(opts.resampler, logger)
	if err != nil {
		return nil, err
	}

	samples := audioio.Int16ToFloat(audioio.DecodeLittleEndian(data))
	fmt.Printf("📂 %s: %d samples @ %d Hz, resampler %s\n", opts.in, len(samples), opts.inRate, res.Name())

	return recorder.EncodeSamples(samples, opts.inRate, opts.rate, res)
}

func recordLocal(ctx context.Context, opts options, logger *slog.Logger) (*recorder.EncodedAudio, error) {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.Backend(opts.backend)
	cfg.SampleRate = opts.rate
	if opts.capRate > 0 {
		cfg.SampleRate = opts.capRate
	}

	source, err := audioio.NewSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	res, err := audioio.NewResampler(opts.resampler, logger)
	if err != nil {
		return nil, err
	}
	rec, err := recorder.New(source,
		recorder.WithLogger(logger),
		recorder.WithResampler(res),
		recorder.WithCaptureRate(cfg.SampleRate),
	)
	if err != nil {
		return nil, err
	}
	defer rec.Cleanup()

	if err := rec.Start(ctx, opts.rate); err != nil {
		if audioio.IsDeviceUnavailable(err) {
			return nil, fmt.Errorf("microphone unavailable (check permissions): %w", err)
		}
		return nil, err
	}

	session := rec.Session()
	fmt.Printf("🔴 Recording %v from %s (device rate %d Hz)... Ctrl+C to stop early\n",
		opts.duration, source.Name(), session.NativeRate)
	wait(ctx, opts.duration)

	audio, err := rec.Stop(context.Background())
	if recorder.IsCloseError(err) {
		fmt.Printf("⚠️  %v\n", err)
		err = nil
	}
	return audio, err
}

// recordRemote drives a running avatar-mic through its control API.
func recordRemote(ctx context.Context, opts options) (*recorder.EncodedAudio, error) {
	base := opts.remote
	if base == "env" {
		base = config.ControlURL(config.DefaultControlURL)
	}
	control := httpc.NewControl(base, nil)

	if err := control.Start(ctx, opts.rate); err != nil {
		return nil, err
	}
	fmt.Printf("🔴 Remote recording on %s for %v...\n", base, opts.duration)
	wait(ctx, opts.duration)

	send := false
	resp, err := control.Stop(context.Background(), &send)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	if resp.Warning != "" {
		fmt.Printf("⚠️  %s\n", resp.Warning)
	}

	data, rate, err := control.Last(context.Background())
	if err != nil {
		return nil, err
	}
	return &recorder.EncodedAudio{
		SessionID:  resp.SessionID,
		Data:       data,
		SampleRate: rate,
		Samples:    len(data) / 2,
		Duration:   time.Duration(resp.DurationMs) * time.Millisecond,
	}, nil
}

func stream(ctx context.Context, opts options, audio *recorder.EncodedAudio, logger *slog.Logger) error {
	wsCfg := avatar.DefaultWSConfig()
	wsCfg.URL = opts.avatarURL
	wsCfg.Codec = opts.codecName
	wsCfg.SampleRate = audio.SampleRate

	controller, err := avatar.NewWSController(wsCfg, nil, logger)
	if err != nil {
		return err
	}
	if err := controller.Connect(ctx); err != nil {
		return err
	}
	defer controller.Close()

	n, err := avatar.StreamAudio(ctx, controller, audio.Data, opts.chunkBytes)
	stats := controller.Stats()
	fmt.Printf("📡 Sent %d chunks (%d frames, %d bytes on the wire)\n", n, stats.FramesSent, stats.BytesSent)
	return err
}

func wait(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
