package codec

import (
	"encoding/binary"
	"fmt"
	"sync"

	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-avatar-audio/pkg/audioio"
)

const (
	// OpusFrameDuration is the frame length in milliseconds.
	OpusFrameDuration = 20

	// opusMaxPacket is the largest packet libopus produces for one frame.
	opusMaxPacket = 4000
)

// OpusCodec encodes PCM16LE mono into a stream of 20ms Opus packets, each
// preceded by its length as a little-endian uint16. Encode pads the final
// partial frame with silence; EncodeStream carries it into the next call.
type OpusCodec struct {
	sampleRate int
	frameSize  int

	mu      sync.Mutex
	enc     *opus.Encoder
	dec     *opus.Decoder
	pending []int16
}

// NewOpus creates an Opus codec. sampleRate must be one of 8000, 12000,
// 16000, 24000 or 48000.
func NewOpus(sampleRate int) (*OpusCodec, error) {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("%w: opus at %d Hz", ErrUnsupportedRate, sampleRate)
	}

	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("codec: create opus encoder: %w", err)
	}
	dec, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("codec: create opus decoder: %w", err)
	}

	return &OpusCodec{
		sampleRate: sampleRate,
		frameSize:  sampleRate * OpusFrameDuration / 1000,
		enc:        enc,
		dec:        dec,
	}, nil
}

// Name returns "opus".
func (c *OpusCodec) Name() string { return Opus }

var _ StreamEncoder = (*OpusCodec)(nil)

// FrameSize returns the number of samples per frame.
func (c *OpusCodec) FrameSize() int { return c.frameSize }

// Encode implements Codec. It encodes pcm as a complete utterance and
// does not touch samples held by EncodeStream.
func (c *OpusCodec) Encode(pcm []byte) ([]byte, error) {
	if err := checkPCM(pcm); err != nil {
		return nil, err
	}
	samples := audioio.DecodeLittleEndian(pcm)

	c.mu.Lock()
	defer c.mu.Unlock()

	out, _, err := c.encodeFrames(samples, true)
	return out, err
}

// EncodeStream implements StreamEncoder. Only whole frames are encoded
// until final is set, so chunk boundaries never insert silence.
func (c *OpusCodec) EncodeStream(pcm []byte, final bool) ([]byte, error) {
	if err := checkPCM(pcm); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	samples := append(c.pending, audioio.DecodeLittleEndian(pcm)...)
	out, rest, err := c.encodeFrames(samples, final)
	if err != nil {
		c.pending = nil
		return nil, err
	}
	c.pending = append([]int16(nil), rest...)
	return out, nil
}

// Reset implements StreamEncoder.
func (c *OpusCodec) Reset() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

// Pending returns the number of samples held for the next EncodeStream.
func (c *OpusCodec) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// encodeFrames encodes whole frames of samples. With pad set the trailing
// partial frame is zero-filled and encoded; otherwise it is returned.
// Must be called with mu held.
func (c *OpusCodec) encodeFrames(samples []int16, pad bool) ([]byte, []int16, error) {
	var out []byte
	frame := make([]int16, c.frameSize)
	packet := make([]byte, opusMaxPacket)

	off := 0
	for ; off < len(samples); off += c.frameSize {
		if !pad && len(samples)-off < c.frameSize {
			break
		}
		n := copy(frame, samples[off:])
		clear(frame[n:])

		size, err := c.enc.Encode(frame, packet)
		if err != nil {
			return nil, nil, fmt.Errorf("codec: opus encode: %w", err)
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(size))
		out = append(out, packet[:size]...)
	}
	if off >= len(samples) {
		return out, nil, nil
	}
	return out, samples[off:], nil
}

// Decode implements Codec.
func (c *OpusCodec) Decode(data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var samples []int16
	frame := make([]int16, c.frameSize)

	for len(data) > 0 {
		if len(data) < 2 {
			return nil, ErrCorruptStream
		}
		size := int(binary.LittleEndian.Uint16(data))
		data = data[2:]
		if size > len(data) {
			return nil, ErrCorruptStream
		}

		n, err := c.dec.Decode(data[:size], frame)
		if err != nil {
			return nil, fmt.Errorf("codec: opus decode: %w", err)
		}
		samples = append(samples, frame[:n]...)
		data = data[size:]
	}
	return audioio.EncodeLittleEndian(samples), nil
}
