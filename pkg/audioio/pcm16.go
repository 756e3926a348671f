package audioio

import (
	"encoding/binary"
	"math"
)

// QuantizeToInt16 converts normalized samples to signed 16-bit PCM.
// Each sample is clamped to [-1.0, 1.0] before scaling by 32768 and rounding;
// +1.0 saturates to 32767.
func QuantizeToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = quantize(s)
	}
	return out
}

func quantize(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	q := math.Round(v * 32768)
	if q > math.MaxInt16 {
		return math.MaxInt16
	}
	if q < math.MinInt16 {
		return math.MinInt16
	}
	return int16(q)
}

// EncodeLittleEndian converts int16 samples to raw PCM16 little-endian bytes.
func EncodeLittleEndian(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// DecodeLittleEndian converts raw PCM16 little-endian bytes to int16 samples.
// A trailing odd byte is ignored.
func DecodeLittleEndian(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// Int16ToFloat converts PCM16 samples back to normalized floats.
func Int16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// EncodePCM16 resamples, quantizes and serializes samples in one pass.
// A nil resampler uses linear interpolation.
func EncodePCM16(samples []float32, fromRate, toRate int, r Resampler) ([]byte, error) {
	if r == nil {
		r = LinearResampler{}
	}
	resampled, err := r.Resample(samples, fromRate, toRate)
	if err != nil {
		return nil, err
	}
	return EncodeLittleEndian(QuantizeToInt16(resampled)), nil
}

// RMS calculates the root mean square of normalized samples.
// Returns a value between 0.0 and 1.0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
