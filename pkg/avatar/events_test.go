package avatar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_OneHandlerPerKind(t *testing.T) {
	e := NewEvents()

	var got []ConnectionState
	unsubscribe, err := e.OnConnectionState(func(s ConnectionState) { got = append(got, s) })
	require.NoError(t, err)

	_, err = e.OnConnectionState(func(ConnectionState) {})
	assert.ErrorIs(t, err, ErrHandlerRegistered)

	// The other kind is independent.
	_, err = e.OnConversationState(func(ConversationState) {})
	assert.NoError(t, err)

	e.PublishConnectionState(ConnectionConnecting)
	e.PublishConnectionState(ConnectionConnected)
	assert.Equal(t, []ConnectionState{ConnectionConnecting, ConnectionConnected}, got)

	unsubscribe()
	e.PublishConnectionState(ConnectionDisconnected)
	assert.Len(t, got, 2)
	assert.Equal(t, ConnectionDisconnected, e.ConnectionState())

	_, err = e.OnConnectionState(func(ConnectionState) {})
	assert.NoError(t, err)
}

func TestEvents_StaleUnsubscribe(t *testing.T) {
	e := NewEvents()

	first, err := e.OnConversationState(func(ConversationState) {})
	require.NoError(t, err)
	first()

	var got []ConversationState
	_, err = e.OnConversationState(func(s ConversationState) { got = append(got, s) })
	require.NoError(t, err)

	// Removing the old subscription again must not drop the new one.
	first()
	e.PublishConversationState(ConversationSpeaking)
	assert.Equal(t, []ConversationState{ConversationSpeaking}, got)
}

func TestParseConversationState(t *testing.T) {
	for _, s := range []ConversationState{ConversationIdle, ConversationListening, ConversationThinking, ConversationSpeaking} {
		parsed, ok := ParseConversationState(s.String())
		assert.True(t, ok)
		assert.Equal(t, s, parsed)
	}

	_, ok := ParseConversationState("dancing")
	assert.False(t, ok)

	parsed, ok := ParseConversationState("SPEAKING")
	assert.True(t, ok)
	assert.Equal(t, ConversationSpeaking, parsed)
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "disconnected", ConnectionDisconnected.String())
	assert.Equal(t, "failed", ConnectionFailed.String())
	assert.Equal(t, "unknown", ConnectionState(42).String())
}
