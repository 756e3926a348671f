//go:build cgo

package audioio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const malgoCompiled = true

// MalgoSource captures audio through miniaudio.
// This is the production implementation on desktop platforms.
type MalgoSource struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	blocks     *blocker
	nativeRate int

	// Stats
	opens            atomic.Int64
	chunksDelivered  atomic.Int64
	samplesDelivered atomic.Int64
}

// newMalgoSource creates a new miniaudio capture source.
func newMalgoSource(cfg Config, logger *slog.Logger) (CaptureSource, error) {
	logger.Info("malgo source created",
		"device", cfg.Device,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)
	return &MalgoSource{cfg: cfg, logger: logger}, nil
}

// Open acquires the capture device and starts the callback stream.
func (s *MalgoSource) Open(ctx context.Context, requestedRate int, sink BlockSink) (nativeRate int, err error) {
	if requestedRate <= 0 {
		return 0, ErrInvalidRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		return 0, ErrAlreadyOpen
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		s.logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return 0, unavailable(s.Name(), "open", err)
	}

	// Release the context if anything below fails.
	defer func() {
		if err != nil {
			_ = mctx.Uninit()
			mctx.Free()
		}
	}()

	if s.cfg.EchoCancellation || s.cfg.NoiseSuppression || s.cfg.AutoGainControl {
		s.logger.Debug("malgo has no voice processing graph; constraints ignored",
			"echo_cancellation", s.cfg.EchoCancellation,
			"noise_suppression", s.cfg.NoiseSuppression,
			"auto_gain_control", s.cfg.AutoGainControl,
		)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(s.cfg.Channels)
	deviceConfig.SampleRate = uint32(requestedRate)
	deviceConfig.PeriodSizeInFrames = uint32(s.cfg.BlockSize)

	if s.cfg.Device != "" {
		id, err := findCaptureDevice(mctx, s.cfg.Device)
		if err != nil {
			return 0, unavailable(s.Name(), "open", err)
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	channels := s.cfg.Channels
	var blocks *blocker

	onData := func(_, input []byte, frameCount uint32) {
		mono := Downmix(decodeFloat32(input), channels)
		n := blocks.push(mono)
		if n > 0 {
			s.chunksDelivered.Add(int64(n))
			s.samplesDelivered.Add(int64(n * s.cfg.BlockSize))
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return 0, unavailable(s.Name(), "open", err)
	}

	rate := int(device.SampleRate())
	if rate <= 0 {
		rate = requestedRate
	}
	blocks = newBlocker(s.cfg.BlockSize, rate, sink)

	if err := device.Start(); err != nil {
		device.Uninit()
		return 0, unavailable(s.Name(), "start", err)
	}

	s.ctx = mctx
	s.device = device
	s.blocks = blocks
	s.nativeRate = rate
	s.opens.Add(1)

	s.logger.Info("malgo audio source opened",
		"requested_rate", requestedRate,
		"native_rate", rate,
		"block_size", s.cfg.BlockSize,
	)

	return rate, nil
}

// Close stops the device and frees the miniaudio context.
func (s *MalgoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return nil
	}

	var errs []error
	if err := s.device.Stop(); err != nil {
		errs = append(errs, err)
	}
	s.blocks.detach()
	s.device.Uninit()
	if err := s.ctx.Uninit(); err != nil {
		errs = append(errs, err)
	}
	s.ctx.Free()

	s.device = nil
	s.ctx = nil
	s.blocks = nil

	s.logger.Info("malgo audio source closed")

	if len(errs) > 0 {
		return &DeviceError{Backend: s.Name(), Op: "close", Cause: errs[0]}
	}
	return nil
}

// Name returns "malgo".
func (s *MalgoSource) Name() string {
	return "malgo"
}

// Stats returns source statistics.
func (s *MalgoSource) Stats() SourceStats {
	s.mu.Lock()
	open := s.device != nil
	rate := s.nativeRate
	s.mu.Unlock()

	return SourceStats{
		Opens:            s.opens.Load(),
		ChunksDelivered:  s.chunksDelivered.Load(),
		SamplesDelivered: s.samplesDelivered.Load(),
		Open:             open,
		NativeRate:       rate,
		Backend:          "malgo",
	}
}

var _ SourceWithStats = (*MalgoSource)(nil)

func findCaptureDevice(ctx *malgo.AllocatedContext, name string) (malgo.DeviceID, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("list capture devices: %w", err)
	}
	for _, info := range infos {
		if info.Name() == name {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("capture device %q not found", name)
}

func decodeFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
