package recorder

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-avatar-audio/pkg/audioio"
)

// EncodedAudio is the result of a recording: mono signed 16-bit
// little-endian PCM at the target rate.
type EncodedAudio struct {
	// SessionID identifies the session that produced the audio. Empty for
	// audio encoded outside a session.
	SessionID string `json:"session_id,omitempty"`

	// Data is the PCM16LE payload. len(Data) == 2*Samples.
	Data []byte `json:"-"`

	// SampleRate is the rate of Data in Hz.
	SampleRate int `json:"sample_rate"`

	// SourceRate is the rate the samples were captured at in Hz.
	SourceRate int `json:"source_rate"`

	// Samples is the number of int16 samples in Data.
	Samples int `json:"samples"`

	// Duration is the playback length of Data.
	Duration time.Duration `json:"duration"`
}

// Bytes returns the length of the payload.
func (a *EncodedAudio) Bytes() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

// EncodeSamples resamples float samples from sourceRate to targetRate,
// quantizes them and packs them as PCM16LE. A nil resampler uses linear
// interpolation. Empty input yields (nil, nil).
func EncodeSamples(samples []float32, sourceRate, targetRate int, r audioio.Resampler) (*EncodedAudio, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	if targetRate <= 0 {
		return nil, ErrInvalidTargetRate
	}

	data, err := audioio.EncodePCM16(samples, sourceRate, targetRate, r)
	if err != nil {
		return nil, fmt.Errorf("recorder: encode: %w", err)
	}

	n := len(data) / 2
	return &EncodedAudio{
		Data:       data,
		SampleRate: targetRate,
		SourceRate: sourceRate,
		Samples:    n,
		Duration:   time.Duration(n) * time.Second / time.Duration(targetRate),
	}, nil
}

// Resample converts the payload to targetRate. The receiver is returned
// unchanged when it is already at that rate.
func (a *EncodedAudio) Resample(targetRate int, r audioio.Resampler) (*EncodedAudio, error) {
	if a == nil || targetRate <= 0 || targetRate == a.SampleRate {
		return a, nil
	}

	samples := audioio.Int16ToFloat(audioio.DecodeLittleEndian(a.Data))
	out, err := EncodeSamples(samples, a.SampleRate, targetRate, r)
	if err != nil || out == nil {
		return out, err
	}
	out.SessionID = a.SessionID
	if a.SourceRate > 0 {
		out.SourceRate = a.SourceRate
	}
	return out, nil
}
