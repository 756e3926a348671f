package audioio

import (
	"fmt"
	"log/slog"
	"math"

	resampler "github.com/tphakala/go-audio-resampler"
)

// Resample converts audio from one sample rate to another using linear interpolation.
// This is a simple resampler suitable for speech audio.
// For higher quality, use HighQualityResampler.
//
// When fromRate == toRate the input slice itself is returned.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate {
		return samples
	}

	if len(samples) == 0 || fromRate <= 0 || toRate <= 0 {
		return []float32{}
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(math.Round(float64(len(samples)) / ratio))

	if newLen == 0 {
		return []float32{}
	}

	result := make([]float32, newLen)
	last := len(samples) - 1

	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(math.Floor(srcPos))
		if srcIdx > last {
			srcIdx = last
		}
		next := srcIdx + 1
		if next > last {
			next = last
		}
		frac := srcPos - float64(srcIdx)

		s1 := float64(samples[srcIdx])
		s2 := float64(samples[next])
		result[i] = float32(s1 + frac*(s2-s1))
	}

	return result
}

// ResampledLength returns the number of samples Resample produces.
func ResampledLength(n, fromRate, toRate int) int {
	if fromRate == toRate {
		return n
	}
	if n == 0 || fromRate <= 0 || toRate <= 0 {
		return 0
	}
	return int(math.Round(float64(n) * float64(toRate) / float64(fromRate)))
}

// Resampler converts a mono float buffer between sample rates.
type Resampler interface {
	Resample(samples []float32, fromRate, toRate int) ([]float32, error)
	Name() string
}

// LinearResampler is the O(n) linear-interpolation resampler used on the
// capture path.
type LinearResampler struct{}

// Resample implements Resampler.
func (LinearResampler) Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidRate, fromRate, toRate)
	}
	return Resample(samples, fromRate, toRate), nil
}

// Name returns "linear".
func (LinearResampler) Name() string { return "linear" }

// Quality selects the polyphase filter preset of HighQualityResampler.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// HighQualityResampler wraps the polyphase FIR resampler from
// github.com/tphakala/go-audio-resampler. It is used for pre-recorded audio
// where latency does not matter. Output length is not guaranteed to match
// the linear resampler exactly.
type HighQualityResampler struct {
	quality  Quality
	fallback bool
	logger   *slog.Logger
}

// HighQualityOption configures a HighQualityResampler.
type HighQualityOption func(*HighQualityResampler)

// WithQuality selects the filter preset.
func WithQuality(q Quality) HighQualityOption {
	return func(r *HighQualityResampler) {
		r.quality = q
	}
}

// WithLinearFallback makes the resampler fall back to linear interpolation
// instead of returning an error when the filter cannot be built.
func WithLinearFallback() HighQualityOption {
	return func(r *HighQualityResampler) {
		r.fallback = true
	}
}

// NewHighQualityResampler creates a polyphase resampler.
func NewHighQualityResampler(logger *slog.Logger, opts ...HighQualityOption) *HighQualityResampler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &HighQualityResampler{
		quality: QualityMedium,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resample implements Resampler.
func (r *HighQualityResampler) Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidRate, fromRate, toRate)
	}
	if fromRate == toRate {
		return samples, nil
	}
	if len(samples) == 0 {
		return []float32{}, nil
	}

	out, err := resampler.ResampleMonoFloat32(samples, float64(fromRate), float64(toRate), r.preset())
	if err != nil {
		if !r.fallback {
			return nil, fmt.Errorf("high quality resample %d -> %d: %w", fromRate, toRate, err)
		}
		r.logger.Warn("high quality resample failed, using linear",
			"from_rate", fromRate,
			"to_rate", toRate,
			"error", err,
		)
		return Resample(samples, fromRate, toRate), nil
	}
	return out, nil
}

// Name returns "polyphase-<quality>".
func (r *HighQualityResampler) Name() string {
	return "polyphase-" + string(r.quality)
}

func (r *HighQualityResampler) preset() resampler.QualityPreset {
	switch r.quality {
	case QualityLow:
		return resampler.QualityLow
	case QualityHigh:
		return resampler.QualityHigh
	default:
		return resampler.QualityMedium
	}
}

// NewResampler returns the resampler registered under name: "linear" or
// "polyphase-low|medium|high".
func NewResampler(name string, logger *slog.Logger) (Resampler, error) {
	switch name {
	case "", "linear":
		return LinearResampler{}, nil
	case "polyphase", "polyphase-medium":
		return NewHighQualityResampler(logger, WithQuality(QualityMedium), WithLinearFallback()), nil
	case "polyphase-low":
		return NewHighQualityResampler(logger, WithQuality(QualityLow), WithLinearFallback()), nil
	case "polyphase-high":
		return NewHighQualityResampler(logger, WithQuality(QualityHigh), WithLinearFallback()), nil
	default:
		return nil, fmt.Errorf("unknown resampler: %s", name)
	}
}
