// Package codec converts PCM16LE mono audio into the payload formats an
// avatar controller accepts.
package codec

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors for the codec package.
var (
	// ErrUnknownCodec indicates the requested codec name is not registered.
	ErrUnknownCodec = errors.New("codec: unknown codec")

	// ErrOddLength indicates a PCM16 buffer with a trailing half sample.
	ErrOddLength = errors.New("codec: PCM16 data length must be even")

	// ErrUnsupportedRate indicates the codec cannot run at the sample rate.
	ErrUnsupportedRate = errors.New("codec: unsupported sample rate")

	// ErrCorruptStream indicates a framed stream could not be parsed.
	ErrCorruptStream = errors.New("codec: corrupt stream")
)

// Codec encodes PCM16LE mono audio to a wire payload and back.
type Codec interface {
	// Name returns the registered codec name.
	Name() string

	// Encode converts PCM16LE bytes to the codec payload.
	Encode(pcm []byte) ([]byte, error)

	// Decode converts a payload produced by Encode back to PCM16LE.
	Decode(data []byte) ([]byte, error)
}

// StreamEncoder is implemented by frame-based codecs that must see an
// utterance as one continuous stream. EncodeStream holds back any partial
// frame until the next call and pads it only when final is set. Reset drops
// held samples.
type StreamEncoder interface {
	EncodeStream(pcm []byte, final bool) ([]byte, error)
	Reset()
}

// Codec names.
const (
	PCM16 = "pcm16"
	ULaw  = "ulaw"
	ALaw  = "alaw"
	Opus  = "opus"
)

type factory func(sampleRate int) (Codec, error)

var registry = map[string]factory{
	PCM16: func(int) (Codec, error) { return pcm16{}, nil },
	ULaw:  func(int) (Codec, error) { return ulaw{}, nil },
	ALaw:  func(int) (Codec, error) { return alaw{}, nil },
	Opus:  func(rate int) (Codec, error) { return NewOpus(rate) },
}

// New returns the codec registered under name for audio at sampleRate.
func New(name string, sampleRate int) (Codec, error) {
	if name == "" {
		name = PCM16
	}
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
	return f(sampleRate)
}

// Names returns the registered codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkPCM(pcm []byte) error {
	if len(pcm)%2 != 0 {
		return ErrOddLength
	}
	return nil
}

// pcm16 passes PCM16LE through unchanged.
type pcm16 struct{}

func (pcm16) Name() string { return PCM16 }

func (pcm16) Encode(pcm []byte) ([]byte, error) {
	if err := checkPCM(pcm); err != nil {
		return nil, err
	}
	return pcm, nil
}

func (pcm16) Decode(data []byte) ([]byte, error) {
	if err := checkPCM(data); err != nil {
		return nil, err
	}
	return data, nil
}
