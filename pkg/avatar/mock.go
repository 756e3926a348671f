package avatar

import (
	"context"
	"sync"
)

// SentAudio is one SendAudio call captured by MockController.
type SentAudio struct {
	Data    []byte
	IsFinal bool
}

// MockController is an in-memory controller for testing.
type MockController struct {
	mu sync.Mutex

	// Configurable behavior
	SendAudioFunc func(ctx context.Context, data []byte, isFinal bool) error
	InterruptFunc func(ctx context.Context) error

	// Rate is reported by SampleRate; 0 accepts any rate.
	Rate int

	// Captured calls for assertions
	Sent           []SentAudio
	InterruptCalls int
}

// NewMockController creates a new MockController.
func NewMockController() *MockController {
	return &MockController{}
}

// SendAudio implements AudioSender.
func (m *MockController) SendAudio(ctx context.Context, data []byte, isFinal bool) error {
	if m.SendAudioFunc != nil {
		if err := m.SendAudioFunc(ctx, data, isFinal); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentAudio{Data: append([]byte(nil), data...), IsFinal: isFinal})
	return nil
}

// Interrupt implements Interrupter.
func (m *MockController) Interrupt(ctx context.Context) error {
	if m.InterruptFunc != nil {
		if err := m.InterruptFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InterruptCalls++
	return nil
}

// SampleRate implements RateReporter.
func (m *MockController) SampleRate() int {
	return m.Rate
}

// SentBytes returns the concatenation of every sent chunk.
func (m *MockController) SentBytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, s := range m.Sent {
		out = append(out, s.Data...)
	}
	return out
}

// Calls returns a copy of the captured SendAudio calls.
func (m *MockController) Calls() []SentAudio {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentAudio(nil), m.Sent...)
}

var (
	_ AudioSender  = (*MockController)(nil)
	_ Interrupter  = (*MockController)(nil)
	_ RateReporter = (*MockController)(nil)
)
