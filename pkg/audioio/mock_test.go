package audioio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMockSource_Open(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	source := NewMockSource(cfg, nil, WithManualDelivery())

	rate, err := source.Open(context.Background(), 16000, func(AudioChunk) {})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer source.Close()

	if rate != 16000 {
		t.Errorf("Expected native rate 16000, got %d", rate)
	}

	stats := source.Stats()
	if !stats.Open {
		t.Error("Expected source to be open")
	}
	if stats.Opens != 1 {
		t.Errorf("Expected 1 open, got %d", stats.Opens)
	}
	if source.LiveHandles() != 1 {
		t.Errorf("Expected 1 live handle, got %d", source.LiveHandles())
	}
}

func TestMockSource_GrantedRate(t *testing.T) {
	source := NewMockSource(DefaultConfig(), nil, WithManualDelivery(), WithGrantedRate(48000))

	rate, err := source.Open(context.Background(), 16000, func(AudioChunk) {})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer source.Close()

	if rate != 48000 {
		t.Errorf("Expected granted rate 48000, got %d", rate)
	}

	var got AudioChunk
	source.mu.Lock()
	source.sink = func(c AudioChunk) { got = c }
	source.mu.Unlock()

	source.Emit([]float32{0.1})
	if got.SampleRate != 48000 {
		t.Errorf("Expected chunk rate 48000, got %d", got.SampleRate)
	}
}

func TestMockSource_AlreadyOpen(t *testing.T) {
	source := NewMockSource(DefaultConfig(), nil, WithManualDelivery())

	if _, err := source.Open(context.Background(), 16000, func(AudioChunk) {}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer source.Close()

	_, err := source.Open(context.Background(), 16000, func(AudioChunk) {})
	if !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("Expected ErrAlreadyOpen, got %v", err)
	}
}

func TestMockSource_OpenError(t *testing.T) {
	source := NewMockSource(DefaultConfig(), nil, WithOpenError(errors.New("permission denied")))

	_, err := source.Open(context.Background(), 16000, func(AudioChunk) {})
	if err == nil {
		t.Fatal("Expected open error")
	}
	if !IsDeviceUnavailable(err) {
		t.Errorf("Expected device unavailable error, got %v", err)
	}

	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("Expected *DeviceError, got %T", err)
	}
	if devErr.Backend != "mock" || devErr.Op != "open" {
		t.Errorf("Unexpected device error fields: %+v", devErr)
	}
	if source.LiveHandles() != 0 {
		t.Errorf("Expected no live handles after failed open, got %d", source.LiveHandles())
	}
}

func TestMockSource_InvalidRate(t *testing.T) {
	source := NewMockSource(DefaultConfig(), nil)

	_, err := source.Open(context.Background(), 0, func(AudioChunk) {})
	if !errors.Is(err, ErrInvalidRate) {
		t.Errorf("Expected ErrInvalidRate, got %v", err)
	}
}

func TestMockSource_CloseIdempotent(t *testing.T) {
	source := NewMockSource(DefaultConfig(), nil, WithManualDelivery())

	if err := source.Close(); err != nil {
		t.Errorf("Close before open failed: %v", err)
	}

	if _, err := source.Open(context.Background(), 16000, func(AudioChunk) {}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := source.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := source.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}

	if source.LiveHandles() != 0 {
		t.Errorf("Expected 0 live handles, got %d", source.LiveHandles())
	}
	if source.Stats().Open {
		t.Error("Expected source to be closed")
	}
}

func TestMockSource_CloseError(t *testing.T) {
	source := NewMockSource(DefaultConfig(), nil, WithManualDelivery(), WithCloseError(errors.New("device busy")))

	if _, err := source.Open(context.Background(), 16000, func(AudioChunk) {}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	err := source.Close()
	if err == nil {
		t.Fatal("Expected close error")
	}
	if IsDeviceUnavailable(err) {
		t.Error("Close errors should not report the device as unavailable")
	}
	if source.LiveHandles() != 0 {
		t.Errorf("Expected device released despite error, got %d live handles", source.LiveHandles())
	}
}

func TestMockSource_EmitAfterClose(t *testing.T) {
	source := NewMockSource(DefaultConfig(), nil, WithManualDelivery())

	var calls atomic.Int64
	if _, err := source.Open(context.Background(), 16000, func(AudioChunk) { calls.Add(1) }); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if !source.Emit([]float32{0, 0}) {
		t.Error("Expected Emit to deliver while open")
	}
	source.Close()

	if source.Emit([]float32{0, 0}) {
		t.Error("Expected Emit to report no sink after close")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 sink call, got %d", calls.Load())
	}
}

func TestMockSource_CloseHookSeesSink(t *testing.T) {
	var source *MockSource
	delivered := false
	source = NewMockSource(DefaultConfig(), nil,
		WithManualDelivery(),
		WithCloseHook(func() { delivered = source.Emit([]float32{0.5}) }),
	)

	if _, err := source.Open(context.Background(), 16000, func(AudioChunk) {}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	source.Close()

	if !delivered {
		t.Error("Expected close hook to run while the sink is registered")
	}
}

func TestMockSource_Generator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockSize = 160
	source := NewMockSource(cfg, nil, WithSineWave(440, 0.5), WithInterval(time.Millisecond))

	var mu sync.Mutex
	var chunks []AudioChunk
	if _, err := source.Open(context.Background(), 16000, func(c AudioChunk) {
		mu.Lock()
		chunks = append(chunks, c)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(chunks)
		mu.Unlock()
		if n >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	source.Close()

	mu.Lock()
	defer mu.Unlock()

	if len(chunks) < 3 {
		t.Fatalf("Expected at least 3 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.Len() != 160 {
			t.Errorf("Expected 160 samples, got %d", c.Len())
		}
		if c.SampleRate != 16000 {
			t.Errorf("Expected rate 16000, got %d", c.SampleRate)
		}
	}
	if RMS(chunks[0].Samples) == 0 {
		t.Error("Expected non-silent sine output")
	}
}

func TestAudioChunk_Duration(t *testing.T) {
	chunk := AudioChunk{Samples: make([]float32, 1600), SampleRate: 16000}
	if chunk.Duration() != 100*time.Millisecond {
		t.Errorf("Expected 100ms, got %v", chunk.Duration())
	}

	empty := AudioChunk{}
	if empty.Duration() != 0 {
		t.Errorf("Expected zero duration for empty chunk, got %v", empty.Duration())
	}
}
