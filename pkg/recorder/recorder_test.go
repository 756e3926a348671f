package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-avatar-audio/pkg/audioio"
)

func newTestRecorder(t *testing.T, opts ...audioio.MockSourceOption) (*Recorder, *audioio.MockSource) {
	t.Helper()

	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	source := audioio.NewMockSource(cfg, nil, append([]audioio.MockSourceOption{audioio.WithManualDelivery()}, opts...)...)

	rec, err := New(source)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return rec, source
}

func TestNew_RequiresSource(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}
}

func TestRecorder_StartStop(t *testing.T) {
	rec, source := newTestRecorder(t, audioio.WithGrantedRate(48000))
	ctx := context.Background()

	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if rec.State() != StateRecording {
		t.Errorf("Expected recording, got %s", rec.State())
	}

	session := rec.Session()
	if session == nil {
		t.Fatal("Expected active session")
	}
	if session.NativeRate != 48000 || session.TargetRate != 16000 {
		t.Errorf("Unexpected session rates: native=%d target=%d", session.NativeRate, session.TargetRate)
	}

	source.Emit(make([]float32, 100))
	source.Emit(make([]float32, 200))
	source.Emit(make([]float32, 50))

	audio, err := rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if audio == nil {
		t.Fatal("Expected audio")
	}

	// round(350/3) = 117 samples
	if len(audio.Data) != 234 {
		t.Errorf("Expected 234 bytes, got %d", len(audio.Data))
	}
	if audio.SampleRate != 16000 {
		t.Errorf("Expected 16000 Hz, got %d", audio.SampleRate)
	}
	if audio.SessionID != session.ID {
		t.Errorf("Expected session %s, got %s", session.ID, audio.SessionID)
	}

	if rec.State() != StateIdle {
		t.Errorf("Expected idle, got %s", rec.State())
	}
	if rec.Session() != nil {
		t.Error("Expected no session after stop")
	}
	if source.LiveHandles() != 0 {
		t.Errorf("Expected device released, got %d live handles", source.LiveHandles())
	}
}

func TestRecorder_IdentityRate(t *testing.T) {
	rec, source := newTestRecorder(t)
	ctx := context.Background()

	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	x := []float32{-1, -0.5, 0, 0.25, 0.5, 0.999}
	source.Emit(x)

	audio, err := rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	decoded := audioio.DecodeLittleEndian(audio.Data)
	expected := audioio.QuantizeToInt16(x)
	for i := range expected {
		if decoded[i] != expected[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, expected[i], decoded[i])
		}
	}
}

func TestRecorder_CaptureRate(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	source := audioio.NewMockSource(cfg, nil, audioio.WithManualDelivery())

	rec, err := New(source, WithCaptureRate(48000))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := source.Stats().NativeRate; got != 48000 {
		t.Errorf("Expected device opened at 48000, got %d", got)
	}
	session := rec.Session()
	if session.NativeRate != 48000 || session.TargetRate != 16000 {
		t.Errorf("Unexpected session rates: native=%d target=%d", session.NativeRate, session.TargetRate)
	}

	source.Emit(make([]float32, 350))

	audio, err := rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if audio.SampleRate != 16000 {
		t.Errorf("Expected 16000 Hz, got %d", audio.SampleRate)
	}
	if audio.SourceRate != 48000 {
		t.Errorf("Expected source rate 48000, got %d", audio.SourceRate)
	}
	if len(audio.Data) != 234 {
		t.Errorf("Expected 234 bytes, got %d", len(audio.Data))
	}
}

func TestRecorder_EmptyStop(t *testing.T) {
	rec, _ := newTestRecorder(t)
	ctx := context.Background()

	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	audio, err := rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if audio != nil {
		t.Errorf("Expected nil audio for empty capture, got %d bytes", len(audio.Data))
	}
	if rec.State() != StateIdle {
		t.Errorf("Expected idle, got %s", rec.State())
	}
	if rec.Stats().EmptyStops != 1 {
		t.Errorf("Expected 1 empty stop, got %d", rec.Stats().EmptyStops)
	}
}

func TestRecorder_StopWhenIdle(t *testing.T) {
	rec, _ := newTestRecorder(t)

	audio, err := rec.Stop(context.Background())
	if audio != nil || err != nil {
		t.Errorf("Expected (nil, nil) when idle, got (%v, %v)", audio, err)
	}
}

func TestRecorder_DoubleStartSingleDevice(t *testing.T) {
	var mu sync.Mutex
	var interrupted []*EncodedAudio

	cfg := audioio.DefaultConfig()
	source := audioio.NewMockSource(cfg, nil, audioio.WithManualDelivery())
	rec, err := New(source, WithRestartHandler(func(audio *EncodedAudio, err error) {
		mu.Lock()
		interrupted = append(interrupted, audio)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("First start failed: %v", err)
	}
	first := rec.Session().ID
	source.Emit(make([]float32, 160))

	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Second start failed: %v", err)
	}

	if source.LiveHandles() != 1 {
		t.Errorf("Expected exactly 1 live handle, got %d", source.LiveHandles())
	}
	if source.Stats().Opens != 2 {
		t.Errorf("Expected 2 opens, got %d", source.Stats().Opens)
	}
	if rec.State() != StateRecording {
		t.Errorf("Expected recording, got %s", rec.State())
	}
	if rec.Session().ID == first {
		t.Error("Expected a new session after restart")
	}

	mu.Lock()
	if len(interrupted) != 1 || interrupted[0] == nil || interrupted[0].Samples != 160 {
		t.Errorf("Expected interrupted session audio with 160 samples, got %v", interrupted)
	}
	mu.Unlock()

	// The new session starts empty.
	audio, err := rec.Stop(ctx)
	if err != nil || audio != nil {
		t.Errorf("Expected empty second session, got (%v, %v)", audio, err)
	}
	if rec.Stats().Restarts != 1 {
		t.Errorf("Expected 1 restart, got %d", rec.Stats().Restarts)
	}
}

func TestRecorder_LateChunkDropped(t *testing.T) {
	var source *audioio.MockSource
	cfg := audioio.DefaultConfig()
	source = audioio.NewMockSource(cfg, nil,
		audioio.WithManualDelivery(),
		audioio.WithCloseHook(func() {
			// A block still in flight when the device is torn down.
			source.Emit([]float32{0.9, 0.9, 0.9})
		}),
	)
	rec, err := New(source)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	source.Emit([]float32{0.1, 0.1})

	audio, err := rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if audio.Samples != 2 {
		t.Errorf("Expected only the 2 on-time samples, got %d", audio.Samples)
	}
	if rec.Stats().DroppedChunks != 1 {
		t.Errorf("Expected 1 dropped chunk, got %d", rec.Stats().DroppedChunks)
	}

	// The late block must not leak into the next session either.
	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	rec.Cleanup()
	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if rec.Status().BufferedSamples != 0 {
		t.Errorf("Expected empty buffer, got %d samples", rec.Status().BufferedSamples)
	}
	rec.Cleanup()
}

func TestRecorder_DeviceUnavailable(t *testing.T) {
	rec, source := newTestRecorder(t, audioio.WithOpenError(errors.New("permission denied")))

	err := rec.Start(context.Background(), 16000)
	if err == nil {
		t.Fatal("Expected start error")
	}
	if !audioio.IsDeviceUnavailable(err) {
		t.Errorf("Expected device unavailable, got %v", err)
	}
	if rec.State() != StateIdle {
		t.Errorf("Expected idle after failed start, got %s", rec.State())
	}
	if source.LiveHandles() != 0 {
		t.Errorf("Expected no live handles, got %d", source.LiveHandles())
	}
}

func TestRecorder_CloseFailureReturnsAudio(t *testing.T) {
	rec, source := newTestRecorder(t, audioio.WithCloseError(errors.New("device busy")))
	ctx := context.Background()

	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	source.Emit(make([]float32, 320))

	audio, err := rec.Stop(ctx)
	if err == nil {
		t.Fatal("Expected close error")
	}
	if !IsCloseError(err) {
		t.Errorf("Expected *CloseError, got %T", err)
	}
	if audio == nil || audio.Samples != 320 {
		t.Errorf("Expected 320 samples despite close failure, got %v", audio)
	}
	if rec.State() != StateIdle {
		t.Errorf("Expected idle, got %s", rec.State())
	}
	if rec.Stats().CloseFailures != 1 {
		t.Errorf("Expected 1 close failure, got %d", rec.Stats().CloseFailures)
	}

	// The recorder is usable again.
	if err := rec.Start(ctx, 16000); err != nil {
		t.Errorf("Start after close failure failed: %v", err)
	}
	rec.Cleanup()
}

func TestRecorder_Cleanup(t *testing.T) {
	rec, source := newTestRecorder(t)
	ctx := context.Background()

	rec.Cleanup() // no-op when idle

	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	source.Emit(make([]float32, 100))

	rec.Cleanup()

	if rec.State() != StateIdle {
		t.Errorf("Expected idle, got %s", rec.State())
	}
	if source.LiveHandles() != 0 {
		t.Errorf("Expected device released, got %d live handles", source.LiveHandles())
	}

	audio, err := rec.Stop(ctx)
	if audio != nil || err != nil {
		t.Errorf("Expected nothing after cleanup, got (%v, %v)", audio, err)
	}
}

func TestRecorder_ConcurrentStart(t *testing.T) {
	rec, source := newTestRecorder(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.Start(ctx, 16000); err != nil {
				t.Errorf("Start failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if source.LiveHandles() != 1 {
		t.Errorf("Expected exactly 1 live handle, got %d", source.LiveHandles())
	}
	if rec.State() != StateRecording {
		t.Errorf("Expected recording, got %s", rec.State())
	}
	rec.Cleanup()
}

func TestRecorder_ConcurrentStop(t *testing.T) {
	rec, source := newTestRecorder(t)
	ctx := context.Background()

	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	source.Emit(make([]float32, 480))

	var mu sync.Mutex
	var results []*EncodedAudio

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			audio, err := rec.Stop(ctx)
			if err != nil {
				t.Errorf("Stop failed: %v", err)
			}
			mu.Lock()
			results = append(results, audio)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Callers either shared the single stop or found the recorder idle.
	var produced *EncodedAudio
	for _, audio := range results {
		if audio == nil {
			continue
		}
		if produced != nil && produced != audio {
			t.Error("Expected at most one distinct result")
		}
		produced = audio
	}
	if produced == nil || produced.Samples != 480 {
		t.Errorf("Expected one result with 480 samples, got %v", produced)
	}
	if rec.Stats().Stops != 1 {
		t.Errorf("Expected 1 stop, got %d", rec.Stats().Stops)
	}
}

func TestRecorder_StateListener(t *testing.T) {
	rec, _ := newTestRecorder(t)
	ctx := context.Background()

	var mu sync.Mutex
	var transitions []State
	unsubscribe := rec.OnStateChange(func(from, to State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	})

	_ = rec.Start(ctx, 16000)
	_, _ = rec.Stop(ctx)

	expected := []State{StateStarting, StateRecording, StateStopping, StateIdle}
	mu.Lock()
	if len(transitions) != len(expected) {
		t.Fatalf("Expected %d transitions, got %v", len(expected), transitions)
	}
	for i, s := range expected {
		if transitions[i] != s {
			t.Errorf("Transition %d: expected %s, got %s", i, s, transitions[i])
		}
	}
	mu.Unlock()

	unsubscribe()
	_ = rec.Start(ctx, 16000)
	rec.Cleanup()

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != len(expected) {
		t.Errorf("Expected no transitions after unsubscribe, got %d", len(transitions))
	}
}

func TestRecorder_DefaultTargetRate(t *testing.T) {
	cfg := audioio.DefaultConfig()
	source := audioio.NewMockSource(cfg, nil, audioio.WithManualDelivery())
	rec, _ := New(source, WithDefaultTargetRate(24000))

	if err := rec.Start(context.Background(), 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer rec.Cleanup()

	if rate := rec.Session().TargetRate; rate != 24000 {
		t.Errorf("Expected default target 24000, got %d", rate)
	}
}

func TestRecorder_GeneratedAudio(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.BlockSize = 160
	source := audioio.NewMockSource(cfg, nil,
		audioio.WithSineWave(440, 0.5),
		audioio.WithInterval(time.Millisecond),
		audioio.WithGrantedRate(48000),
	)
	rec, _ := New(source, WithResampler(audioio.NewHighQualityResampler(nil, audioio.WithLinearFallback())))
	ctx := context.Background()

	if err := rec.Start(ctx, 16000); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rec.Status().BufferedSamples < 1600 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	audio, err := rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if audio == nil || audio.Samples == 0 {
		t.Fatal("Expected generated audio")
	}
	if audio.SourceRate != 48000 {
		t.Errorf("Expected source rate 48000, got %d", audio.SourceRate)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:      "idle",
		StateStarting:  "starting",
		StateRecording: "recording",
		StateStopping:  "stopping",
		State(99):      "unknown",
	}
	for state, want := range tests {
		if state.String() != want {
			t.Errorf("Expected %q, got %q", want, state.String())
		}
	}
}
