package audioio

import (
	"context"
	"time"
)

// AudioChunk is one block of captured audio.
type AudioChunk struct {
	// Samples contains normalized mono samples in [-1.0, 1.0].
	Samples []float32

	// SampleRate is the native rate the samples were captured at.
	SampleRate int
}

// Len returns the number of samples in the chunk.
func (c AudioChunk) Len() int {
	return len(c.Samples)
}

// Duration returns the duration of this audio chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// BlockSink receives captured blocks. It is invoked on the backend's own
// scheduling, once per block, and must not block for long.
type BlockSink func(chunk AudioChunk)

// CaptureSource acquires a microphone stream and pushes blocks to a sink.
type CaptureSource interface {
	// Open acquires the device at the requested rate and starts delivering
	// blocks to sink. It returns the rate actually granted by the platform,
	// which may differ from requestedRate. Failures to acquire the device
	// match ErrDeviceUnavailable. Resources acquired before a failure are
	// released before Open returns.
	Open(ctx context.Context, requestedRate int, sink BlockSink) (nativeRate int, err error)

	// Close releases the device and unregisters the sink.
	// It is safe to call Close multiple times.
	Close() error

	// Name returns the backend name (e.g., "malgo", "portaudio", "mock").
	Name() string
}

// SourceStats contains statistics about a capture source.
type SourceStats struct {
	// Opens is the total number of successful Open calls.
	Opens int64 `json:"opens"`

	// ChunksDelivered is the total number of blocks pushed to the sink.
	ChunksDelivered int64 `json:"chunks_delivered"`

	// SamplesDelivered is the total number of mono samples pushed to the sink.
	SamplesDelivered int64 `json:"samples_delivered"`

	// Open indicates if the device is currently held.
	Open bool `json:"open"`

	// NativeRate is the rate granted on the last Open.
	NativeRate int `json:"native_rate"`

	// Backend is the name of the capture backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends CaptureSource with statistics.
type SourceWithStats interface {
	CaptureSource
	Stats() SourceStats
}

// Downmix averages interleaved frames to mono. With one channel the input is
// returned as is.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	mono := make([]float32, len(interleaved)/channels)
	for i := range mono {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
