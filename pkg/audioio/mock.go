package audioio

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a mock capture source for testing.
// It generates synthetic audio (silence or sine wave) on a ticker, or only
// delivers blocks passed to Emit when manual delivery is enabled.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	open       bool
	closing    bool
	sink       BlockSink
	stopCh     chan struct{}
	wg         sync.WaitGroup
	nativeRate int

	// Stats
	opens            atomic.Int64
	liveHandles      atomic.Int64
	chunksDelivered  atomic.Int64
	samplesDelivered atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0

	// Behaviour overrides
	grantedRate int
	interval    time.Duration
	manual      bool
	openErr     error
	closeErr    error
	closeHook   func()
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithGrantedRate makes Open report rate instead of the requested rate,
// simulating a device that runs at its own native rate.
func WithGrantedRate(rate int) MockSourceOption {
	return func(m *MockSource) {
		m.grantedRate = rate
	}
}

// WithInterval sets the block cadence. Defaults to the real-time duration
// of one block.
func WithInterval(d time.Duration) MockSourceOption {
	return func(m *MockSource) {
		m.interval = d
	}
}

// WithManualDelivery disables the generator; blocks only arrive via Emit.
func WithManualDelivery() MockSourceOption {
	return func(m *MockSource) {
		m.manual = true
	}
}

// WithOpenError makes Open fail with err wrapped as a device error.
func WithOpenError(err error) MockSourceOption {
	return func(m *MockSource) {
		m.openErr = err
	}
}

// WithCloseError makes Close release the device but report err.
func WithCloseError(err error) MockSourceOption {
	return func(m *MockSource) {
		m.closeErr = err
	}
}

// WithCloseHook runs fn at the start of Close, while the sink is still
// registered. Tests use it to inject blocks that race the stop.
func WithCloseHook(fn func()) MockSourceOption {
	return func(m *MockSource) {
		m.closeHook = fn
	}
}

// NewMockSource creates a new mock capture source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		frequency: 0, // Silence by default
		amplitude: 0.5,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Open begins generating audio.
func (m *MockSource) Open(ctx context.Context, requestedRate int, sink BlockSink) (int, error) {
	if requestedRate <= 0 {
		return 0, ErrInvalidRate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return 0, ErrAlreadyOpen
	}
	if m.openErr != nil {
		return 0, unavailable(m.Name(), "open", m.openErr)
	}

	rate := requestedRate
	if m.grantedRate > 0 {
		rate = m.grantedRate
	}

	m.open = true
	m.sink = sink
	m.nativeRate = rate
	m.stopCh = make(chan struct{})
	m.opens.Add(1)
	m.liveHandles.Add(1)

	if !m.manual {
		m.wg.Add(1)
		go m.generateLoop(m.stopCh, rate)
	}

	m.logger.Info("mock audio source opened",
		"requested_rate", requestedRate,
		"native_rate", rate,
		"frequency", m.frequency,
	)

	return rate, nil
}

func (m *MockSource) generateLoop(stopCh chan struct{}, rate int) {
	defer m.wg.Done()

	interval := m.interval
	if interval <= 0 {
		interval = time.Duration(m.cfg.BlockDuration(rate) * float64(time.Second))
	}
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.deliver(m.generateChunk(rate))
		}
	}
}

func (m *MockSource) generateChunk(rate int) AudioChunk {
	blockSize := m.cfg.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	samples := make([]float32, blockSize)

	if m.frequency > 0 {
		for i := range samples {
			samples[i] = float32(m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(rate)))
			m.phase++
			if m.phase >= float64(rate) {
				m.phase = 0
			}
		}
	}
	// else: samples are already zero (silence)

	return AudioChunk{Samples: samples, SampleRate: rate}
}

// Emit pushes samples to the registered sink as if the device produced them.
// It returns false when no sink is registered.
func (m *MockSource) Emit(samples []float32) bool {
	m.mu.Lock()
	rate := m.nativeRate
	m.mu.Unlock()
	return m.deliver(AudioChunk{Samples: samples, SampleRate: rate})
}

func (m *MockSource) deliver(chunk AudioChunk) bool {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()

	if sink == nil {
		return false
	}
	sink(chunk)
	m.chunksDelivered.Add(1)
	m.samplesDelivered.Add(int64(len(chunk.Samples)))
	return true
}

// Close stops generation and unregisters the sink. No sink call is in
// flight once Close returns.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if !m.open || m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	hook := m.closeHook
	m.mu.Unlock()

	if hook != nil {
		hook()
	}

	m.mu.Lock()
	m.open = false
	m.closing = false
	m.sink = nil
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.liveHandles.Add(-1)

	m.logger.Info("mock audio source closed")

	if m.closeErr != nil {
		return &DeviceError{Backend: m.Name(), Op: "close", Cause: m.closeErr}
	}
	return nil
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// LiveHandles returns the number of device handles currently held (0 or 1).
func (m *MockSource) LiveHandles() int64 {
	return m.liveHandles.Load()
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	open := m.open
	rate := m.nativeRate
	m.mu.Unlock()

	return SourceStats{
		Opens:            m.opens.Load(),
		ChunksDelivered:  m.chunksDelivered.Load(),
		SamplesDelivered: m.samplesDelivered.Load(),
		Open:             open,
		NativeRate:       rate,
		Backend:          "mock",
	}
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)
