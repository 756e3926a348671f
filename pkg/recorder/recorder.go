// Package recorder coordinates microphone capture sessions.
//
// A Recorder owns one capture source and moves between Idle and Recording.
// Start opens the device and begins accumulating blocks; Stop releases the
// device and returns the captured audio resampled to the requested rate and
// encoded as PCM16LE; Cleanup releases the device without producing audio.
//
// Example usage:
//
//	source, _ := audioio.NewSource(audioio.DefaultConfig(), logger)
//	rec, _ := recorder.New(source, recorder.WithLogger(logger))
//
//	if err := rec.Start(ctx, 16000); err != nil {
//	    // audioio.IsDeviceUnavailable(err) when the microphone is denied
//	}
//	...
//	audio, err := rec.Stop(ctx)
//	if audio == nil {
//	    // nothing was captured
//	}
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/teslashibe/go-avatar-audio/pkg/audioio"
)

// DefaultTargetRate is used when Start is called with a non-positive rate.
const DefaultTargetRate = 16000

// RestartHandler receives the audio of a session that was stopped because
// Start was called while it was still recording.
type RestartHandler func(audio *EncodedAudio, err error)

// StateListener is called on every state transition. It runs on the
// goroutine performing the transition and must not call Start, Stop or
// Cleanup.
type StateListener func(from, to State)

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResampler sets the resampler used by Stop. Defaults to linear
// interpolation.
func WithResampler(res audioio.Resampler) Option {
	return func(r *Recorder) {
		if res != nil {
			r.resampler = res
		}
	}
}

// WithRestartHandler makes a Start-while-recording hand the interrupted
// session's audio to fn instead of discarding it.
func WithRestartHandler(fn RestartHandler) Option {
	return func(r *Recorder) {
		r.onRestart = fn
	}
}

// WithDefaultTargetRate sets the rate used when Start gets rate <= 0.
func WithDefaultTargetRate(rate int) Option {
	return func(r *Recorder) {
		if rate > 0 {
			r.defaultRate = rate
		}
	}
}

// WithCaptureRate sets the rate requested from the device. Stop resamples
// from the granted rate to each session's target. Zero requests the target
// rate directly.
func WithCaptureRate(rate int) Option {
	return func(r *Recorder) {
		if rate > 0 {
			r.captureRate = rate
		}
	}
}

// Recorder is the capture state machine. It is safe for concurrent use.
type Recorder struct {
	source      audioio.CaptureSource
	logger      *slog.Logger
	resampler   audioio.Resampler
	defaultRate int
	captureRate int
	onRestart   RestartHandler

	acc    *Accumulator
	flight singleflight.Group

	// lifecycle serializes device transitions.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	state     State
	session   *Session
	listeners map[int]StateListener
	nextID    int

	// Stats
	starts        atomic.Int64
	stops         atomic.Int64
	emptyStops    atomic.Int64
	restarts      atomic.Int64
	cleanups      atomic.Int64
	closeFailures atomic.Int64
}

// New creates a Recorder around source.
func New(source audioio.CaptureSource, opts ...Option) (*Recorder, error) {
	if source == nil {
		return nil, ErrNoSource
	}

	r := &Recorder{
		source:      source,
		logger:      slog.Default(),
		resampler:   audioio.LinearResampler{},
		defaultRate: DefaultTargetRate,
		acc:         NewAccumulator(),
		listeners:   make(map[int]StateListener),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "recorder", "source", source.Name())

	return r, nil
}

// Start opens the capture device and begins a new session producing audio
// at targetRate. If a session is already recording it is stopped first and
// its audio is handed to the restart handler, or discarded when none is
// configured. Concurrent calls share one in-flight start.
func (r *Recorder) Start(ctx context.Context, targetRate int) error {
	if targetRate <= 0 {
		targetRate = r.defaultRate
	}

	_, err, shared := r.flight.Do("start", func() (any, error) {
		return nil, r.start(ctx, targetRate)
	})
	if shared {
		r.logger.DebugContext(ctx, "start coalesced with in-flight call")
	}
	return err
}

func (r *Recorder) start(ctx context.Context, targetRate int) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.State() == StateRecording {
		r.restarts.Add(1)
		r.logger.InfoContext(ctx, "start while recording, stopping current session")

		audio, err := r.stopLocked(ctx)
		if r.onRestart != nil {
			r.onRestart(audio, err)
		} else if audio != nil {
			r.logger.WarnContext(ctx, "discarding audio from interrupted session",
				"session_id", audio.SessionID,
				"samples", audio.Samples,
			)
		}
	}

	r.setState(StateStarting)

	requested := targetRate
	if r.captureRate > 0 {
		requested = r.captureRate
	}

	sink := r.acc.Activate()
	nativeRate, err := r.source.Open(ctx, requested, sink)
	if err != nil {
		r.acc.Deactivate()
		r.acc.DrainAndReset()
		r.setState(StateIdle)
		r.logger.ErrorContext(ctx, "failed to open capture device",
			"target_rate", targetRate,
			"requested_rate", requested,
			"error", err,
		)
		return fmt.Errorf("recorder: start: %w", err)
	}

	session := &Session{
		ID:         uuid.New().String(),
		TargetRate: targetRate,
		NativeRate: nativeRate,
		StartedAt:  time.Now(),
	}

	r.mu.Lock()
	r.session = session
	r.mu.Unlock()
	r.starts.Add(1)

	r.setState(StateRecording)

	r.logger.InfoContext(ctx, "recording started",
		"session_id", session.ID,
		"target_rate", targetRate,
		"requested_rate", requested,
		"native_rate", nativeRate,
	)
	return nil
}

// Stop ends the session and returns its audio. It returns (nil, nil) when
// nothing was captured or no session is active. The recorder is Idle when
// Stop returns, even if releasing the device failed; that failure is
// reported as a *CloseError together with the captured audio. Concurrent
// calls share one in-flight stop and receive the same result.
func (r *Recorder) Stop(ctx context.Context) (*EncodedAudio, error) {
	v, err, shared := r.flight.Do("stop", func() (any, error) {
		r.lifecycle.Lock()
		defer r.lifecycle.Unlock()
		return r.stopLocked(ctx)
	})
	if shared {
		r.logger.DebugContext(ctx, "stop coalesced with in-flight call")
	}

	audio, _ := v.(*EncodedAudio)
	return audio, err
}

// stopLocked must be called with lifecycle held.
func (r *Recorder) stopLocked(ctx context.Context) (*EncodedAudio, error) {
	r.mu.RLock()
	state := r.state
	session := r.session
	r.mu.RUnlock()

	if state != StateRecording || session == nil {
		return nil, nil
	}

	r.setState(StateStopping)
	defer r.setState(StateIdle)

	// Late blocks must be dropped before the sink goes away.
	r.acc.Deactivate()

	var closeErr error
	if err := r.source.Close(); err != nil {
		r.closeFailures.Add(1)
		closeErr = &CloseError{SessionID: session.ID, Cause: err}
		r.logger.ErrorContext(ctx, "failed to close capture device",
			"session_id", session.ID,
			"error", err,
		)
	}

	samples, ok := r.acc.DrainAndReset()

	r.mu.Lock()
	r.session = nil
	r.mu.Unlock()
	r.stops.Add(1)

	if !ok {
		r.emptyStops.Add(1)
		r.logger.InfoContext(ctx, "recording stopped with no audio", "session_id", session.ID)
		return nil, closeErr
	}

	audio, err := EncodeSamples(samples, session.NativeRate, session.TargetRate, r.resampler)
	if err != nil {
		return nil, errors.Join(err, closeErr)
	}
	audio.SessionID = session.ID

	r.logger.InfoContext(ctx, "recording stopped",
		"session_id", session.ID,
		"captured_samples", len(samples),
		"native_rate", session.NativeRate,
		"target_rate", session.TargetRate,
		"bytes", len(audio.Data),
		"duration", audio.Duration,
		"resampler", r.resampler.Name(),
	)

	return audio, closeErr
}

// Cleanup releases the device and discards any buffered audio without
// encoding it. It is meant for owner teardown and is safe to call in any
// state.
func (r *Recorder) Cleanup() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.RLock()
	state := r.state
	session := r.session
	r.mu.RUnlock()

	if state != StateRecording {
		return
	}

	r.setState(StateStopping)
	r.acc.Deactivate()
	if err := r.source.Close(); err != nil {
		r.closeFailures.Add(1)
		r.logger.Warn("capture device close failed during cleanup", "error", err)
	}
	r.acc.DrainAndReset()

	r.mu.Lock()
	r.session = nil
	r.mu.Unlock()
	r.cleanups.Add(1)

	r.setState(StateIdle)

	if session != nil {
		r.logger.Info("recording cleaned up", "session_id", session.ID)
	}
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// IsRecording returns true while a session is active.
func (r *Recorder) IsRecording() bool {
	return r.State() == StateRecording
}

// Session returns a copy of the active session, or nil when Idle.
func (r *Recorder) Session() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.session == nil {
		return nil
	}
	s := *r.session
	return &s
}

// OnStateChange registers a listener for state transitions and returns a
// function that removes it.
func (r *Recorder) OnStateChange(fn StateListener) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Recorder) setState(to State) {
	r.mu.Lock()
	from := r.state
	r.state = to
	listeners := make([]StateListener, 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	if from == to {
		return
	}

	r.logger.Debug("state changed", "from", from, "to", to)
	for _, fn := range listeners {
		fn(from, to)
	}
}

// Stats returns recorder counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Starts:        r.starts.Load(),
		Stops:         r.stops.Load(),
		EmptyStops:    r.emptyStops.Load(),
		Restarts:      r.restarts.Load(),
		Cleanups:      r.cleanups.Load(),
		CloseFailures: r.closeFailures.Load(),
		DroppedChunks: r.acc.Dropped(),
	}
}

// Status returns a snapshot of state, session and counters.
func (r *Recorder) Status() Status {
	return Status{
		State:           r.State(),
		Session:         r.Session(),
		BufferedSamples: r.acc.Len(),
		Stats:           r.Stats(),
	}
}

// Resampler returns the resampler used by Stop.
func (r *Recorder) Resampler() audioio.Resampler {
	return r.resampler
}

// Source returns the capture source.
func (r *Recorder) Source() audioio.CaptureSource {
	return r.source
}
