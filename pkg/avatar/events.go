package avatar

import (
	"strings"
	"sync"
)

// ConnectionState is the controller transport state.
type ConnectionState int

const (
	// ConnectionDisconnected indicates no active connection.
	ConnectionDisconnected ConnectionState = iota
	// ConnectionConnecting indicates a connection is being established.
	ConnectionConnecting
	// ConnectionConnected indicates an active connection.
	ConnectionConnected
	// ConnectionFailed indicates the connection was lost or refused.
	ConnectionFailed
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConversationState is the avatar's turn-taking state as reported by the
// controller.
type ConversationState int

const (
	ConversationIdle ConversationState = iota
	ConversationListening
	ConversationThinking
	ConversationSpeaking
)

// String returns a human-readable conversation state.
func (s ConversationState) String() string {
	switch s {
	case ConversationIdle:
		return "idle"
	case ConversationListening:
		return "listening"
	case ConversationThinking:
		return "thinking"
	case ConversationSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ConversationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseConversationState parses the String form. ok is false for unknown
// names.
func ParseConversationState(name string) (ConversationState, bool) {
	switch strings.ToLower(name) {
	case "idle":
		return ConversationIdle, true
	case "listening":
		return ConversationListening, true
	case "thinking":
		return ConversationThinking, true
	case "speaking":
		return ConversationSpeaking, true
	default:
		return ConversationIdle, false
	}
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Events is the subscription point for controller state changes. Each event
// kind accepts one handler at a time; a second registration fails with
// ErrHandlerRegistered until the first is removed. Handlers are invoked one
// at a time, in publish order.
type Events struct {
	mu           sync.Mutex
	nextID       uint64
	connection   *subscription[ConnectionState]
	conversation *subscription[ConversationState]

	lastConnection   ConnectionState
	lastConversation ConversationState

	// dispatch serializes handler calls.
	dispatch sync.Mutex
}

// NewEvents creates an Events with no handlers.
func NewEvents() *Events {
	return &Events{}
}

// OnConnectionState registers the connection state handler.
func (e *Events) OnConnectionState(fn func(ConnectionState)) (unsubscribe func(), err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.connection != nil {
		return nil, ErrHandlerRegistered
	}
	e.nextID++
	id := e.nextID
	e.connection = &subscription[ConnectionState]{id: id, fn: fn}

	return func() {
		e.mu.Lock()
		if e.connection != nil && e.connection.id == id {
			e.connection = nil
		}
		e.mu.Unlock()
	}, nil
}

// OnConversationState registers the conversation state handler.
func (e *Events) OnConversationState(fn func(ConversationState)) (unsubscribe func(), err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conversation != nil {
		return nil, ErrHandlerRegistered
	}
	e.nextID++
	id := e.nextID
	e.conversation = &subscription[ConversationState]{id: id, fn: fn}

	return func() {
		e.mu.Lock()
		if e.conversation != nil && e.conversation.id == id {
			e.conversation = nil
		}
		e.mu.Unlock()
	}, nil
}

// PublishConnectionState records s and notifies the handler, if any.
func (e *Events) PublishConnectionState(s ConnectionState) {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()

	e.mu.Lock()
	e.lastConnection = s
	sub := e.connection
	e.mu.Unlock()

	if sub != nil {
		sub.fn(s)
	}
}

// PublishConversationState records s and notifies the handler, if any.
func (e *Events) PublishConversationState(s ConversationState) {
	e.dispatch.Lock()
	defer e.dispatch.Unlock()

	e.mu.Lock()
	e.lastConversation = s
	sub := e.conversation
	e.mu.Unlock()

	if sub != nil {
		sub.fn(s)
	}
}

// ConnectionState returns the last published connection state.
func (e *Events) ConnectionState() ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastConnection
}

// ConversationState returns the last published conversation state.
func (e *Events) ConversationState() ConversationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastConversation
}
