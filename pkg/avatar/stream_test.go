package avatar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamAudio_Chunks(t *testing.T) {
	mock := NewMockController()
	audio := make([]byte, 10)
	for i := range audio {
		audio[i] = byte(i)
	}

	n, err := StreamAudio(context.Background(), mock, audio, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	calls := mock.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []byte{0, 1, 2, 3}, calls[0].Data)
	assert.Equal(t, []byte{8, 9}, calls[2].Data)
	assert.False(t, calls[0].IsFinal)
	assert.False(t, calls[1].IsFinal)
	assert.True(t, calls[2].IsFinal)
	assert.Equal(t, audio, mock.SentBytes())
}

func TestStreamAudio_OddChunkAligned(t *testing.T) {
	mock := NewMockController()

	_, err := StreamAudio(context.Background(), mock, make([]byte, 12), 5)
	require.NoError(t, err)

	for _, c := range mock.Calls() {
		assert.Zero(t, len(c.Data)%2, "chunk split a sample")
	}
	assert.Len(t, mock.Calls(), 3)
}

func TestStreamAudio_SingleChunk(t *testing.T) {
	mock := NewMockController()

	n, err := StreamAudio(context.Background(), mock, make([]byte, 100), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, mock.Calls()[0].IsFinal)
}

func TestStreamAudio_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := StreamAudio(ctx, nil, []byte{0, 0}, 2)
	assert.ErrorIs(t, err, ErrControllerNotLoaded)

	_, err = StreamAudio(ctx, NewMockController(), nil, 2)
	assert.ErrorIs(t, err, ErrEmptyAudio)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	mock := NewMockController()
	n, err := StreamAudio(cancelled, mock, make([]byte, 8), 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
	assert.Empty(t, mock.Calls())
}
