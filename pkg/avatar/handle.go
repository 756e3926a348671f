// Package avatar abstracts the external avatar controller that consumes
// captured audio.
//
// The controller is reached only through narrow capability interfaces:
// AudioSender for audio and the optional Interrupter. A Handle carries the
// controller, if one is loaded, together with a one-shot readiness signal
// and the state event subscriptions.
package avatar

import (
	"context"
	"log/slog"
	"sync"
)

// AudioSender accepts PCM16LE audio. isFinal marks the end of an utterance.
type AudioSender interface {
	SendAudio(ctx context.Context, data []byte, isFinal bool) error
}

// RateReporter is implemented by controllers that expect audio at a fixed
// sample rate.
type RateReporter interface {
	SampleRate() int
}

// Interrupter is implemented by controllers that can cut off the avatar's
// current response.
type Interrupter interface {
	Interrupt(ctx context.Context) error
}

// Handle is the owner-side reference to the avatar controller. The zero
// value is not usable; call NewHandle.
type Handle struct {
	logger *slog.Logger
	events *Events

	mu         sync.RWMutex
	controller AudioSender

	ready     chan struct{}
	readyOnce sync.Once
}

// NewHandle creates a handle with no controller loaded.
func NewHandle(events *Events, logger *slog.Logger) *Handle {
	if events == nil {
		events = NewEvents()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		logger: logger.With("component", "avatar"),
		events: events,
		ready:  make(chan struct{}),
	}
}

// Load attaches a controller and fires the readiness signal the first time
// one is loaded. Loading nil unloads.
func (h *Handle) Load(controller AudioSender) {
	h.mu.Lock()
	h.controller = controller
	h.mu.Unlock()

	if controller == nil {
		h.logger.Info("controller unloaded")
		return
	}

	h.readyOnce.Do(func() { close(h.ready) })
	h.logger.Info("controller loaded")
}

// Unload detaches the controller.
func (h *Handle) Unload() {
	h.Load(nil)
}

// Controller returns the loaded controller or nil.
func (h *Handle) Controller() AudioSender {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.controller
}

// SampleRate returns the rate the loaded controller expects, or 0 when no
// controller is loaded or it accepts any rate.
func (h *Handle) SampleRate() int {
	if r, ok := h.Controller().(RateReporter); ok {
		return r.SampleRate()
	}
	return 0
}

// Loaded reports whether a controller is attached.
func (h *Handle) Loaded() bool {
	return h.Controller() != nil
}

// Ready is closed once a controller has been loaded for the first time.
func (h *Handle) Ready() <-chan struct{} {
	return h.ready
}

// Wait blocks until a controller has been loaded or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the state subscriptions.
func (h *Handle) Events() *Events {
	return h.events
}

// SendAudio forwards to the loaded controller.
func (h *Handle) SendAudio(ctx context.Context, data []byte, isFinal bool) error {
	c := h.Controller()
	if c == nil {
		return ErrControllerNotLoaded
	}
	return c.SendAudio(ctx, data, isFinal)
}

// Stream sends audio to the loaded controller in chunks. See StreamAudio.
func (h *Handle) Stream(ctx context.Context, audio []byte, chunkBytes int) (int, error) {
	c := h.Controller()
	if c == nil {
		return 0, ErrControllerNotLoaded
	}
	n, err := StreamAudio(ctx, c, audio, chunkBytes)
	if err != nil {
		h.logger.Warn("audio stream failed", "chunks_sent", n, "error", err)
		return n, err
	}
	h.logger.Debug("audio streamed", "bytes", len(audio), "chunks", n)
	return n, nil
}

// Interrupt asks the controller to stop its current response.
func (h *Handle) Interrupt(ctx context.Context) error {
	c := h.Controller()
	if c == nil {
		return ErrControllerNotLoaded
	}
	i, ok := c.(Interrupter)
	if !ok {
		return ErrInterruptUnsupported
	}
	return i.Interrupt(ctx)
}
