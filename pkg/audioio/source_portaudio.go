//go:build portaudio

package audioio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portaudioCompiled = true

// PortAudioSource captures audio through PortAudio's callback API.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	stream     *portaudio.Stream
	blocks     *blocker
	nativeRate int

	// Stats
	opens            atomic.Int64
	chunksDelivered  atomic.Int64
	samplesDelivered atomic.Int64
}

// newPortAudioSource creates a new PortAudio capture source.
func newPortAudioSource(cfg Config, logger *slog.Logger) (CaptureSource, error) {
	logger.Info("PortAudio source created",
		"device", cfg.Device,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)
	return &PortAudioSource{cfg: cfg, logger: logger}, nil
}

// Open initializes PortAudio, opens the input stream and starts it.
func (s *PortAudioSource) Open(ctx context.Context, requestedRate int, sink BlockSink) (nativeRate int, err error) {
	if requestedRate <= 0 {
		return 0, ErrInvalidRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return 0, ErrAlreadyOpen
	}

	if err := portaudio.Initialize(); err != nil {
		return 0, unavailable(s.Name(), "open", err)
	}
	defer func() {
		if err != nil {
			_ = portaudio.Terminate()
		}
	}()

	input, err := s.inputDevice()
	if err != nil {
		return 0, unavailable(s.Name(), "open", err)
	}

	params := portaudio.LowLatencyParameters(input, nil)
	params.Input.Channels = s.cfg.Channels
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = float64(requestedRate)
	params.FramesPerBuffer = s.cfg.BlockSize

	channels := s.cfg.Channels
	blocks := newBlocker(s.cfg.BlockSize, requestedRate, sink)

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		frame := make([]float32, len(in))
		copy(frame, in)
		n := blocks.push(Downmix(frame, channels))
		if n > 0 {
			s.chunksDelivered.Add(int64(n))
			s.samplesDelivered.Add(int64(n * s.cfg.BlockSize))
		}
	})
	if err != nil {
		return 0, unavailable(s.Name(), "open", err)
	}

	rate := requestedRate
	if info := stream.Info(); info != nil && info.SampleRate > 0 {
		rate = int(info.SampleRate)
		blocks.rate = rate
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return 0, unavailable(s.Name(), "start", err)
	}

	s.stream = stream
	s.blocks = blocks
	s.nativeRate = rate
	s.opens.Add(1)

	s.logger.Info("PortAudio source opened",
		"device", input.Name,
		"requested_rate", requestedRate,
		"native_rate", rate,
	)

	return rate, nil
}

func (s *PortAudioSource) inputDevice() (*portaudio.DeviceInfo, error) {
	if s.cfg.Device == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == s.cfg.Device && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", s.cfg.Device)
}

// Close stops and closes the stream, then terminates PortAudio.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil
	}

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	s.blocks.detach()
	if err := s.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, err)
	}

	s.stream = nil
	s.blocks = nil

	s.logger.Info("PortAudio source closed")

	if len(errs) > 0 {
		return &DeviceError{Backend: s.Name(), Op: "close", Cause: errs[0]}
	}
	return nil
}

// Name returns "portaudio".
func (s *PortAudioSource) Name() string {
	return "portaudio"
}

// Stats returns source statistics.
func (s *PortAudioSource) Stats() SourceStats {
	s.mu.Lock()
	open := s.stream != nil
	rate := s.nativeRate
	s.mu.Unlock()

	return SourceStats{
		Opens:            s.opens.Load(),
		ChunksDelivered:  s.chunksDelivered.Load(),
		SamplesDelivered: s.samplesDelivered.Load(),
		Open:             open,
		NativeRate:       rate,
		Backend:          "portaudio",
	}
}

var _ SourceWithStats = (*PortAudioSource)(nil)
