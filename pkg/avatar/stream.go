package avatar

import (
	"context"
	"fmt"
)

// DefaultChunkBytes is 100ms of PCM16 mono at 16kHz.
const DefaultChunkBytes = 3200

// StreamAudio sends audio to sender in chunks of at most chunkBytes,
// marking the last chunk final. Chunks are aligned to whole 16-bit samples.
// It returns the number of chunks sent.
func StreamAudio(ctx context.Context, sender AudioSender, audio []byte, chunkBytes int) (int, error) {
	if sender == nil {
		return 0, ErrControllerNotLoaded
	}
	if len(audio) == 0 {
		return 0, ErrEmptyAudio
	}
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	chunkBytes &^= 1
	if chunkBytes == 0 {
		chunkBytes = 2
	}

	sent := 0
	for off := 0; off < len(audio); off += chunkBytes {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		end := min(off+chunkBytes, len(audio))
		final := end == len(audio)
		if err := sender.SendAudio(ctx, audio[off:end], final); err != nil {
			return sent, fmt.Errorf("avatar: send chunk %d: %w", sent, err)
		}
		sent++
	}
	return sent, nil
}
