package recorder

import (
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-avatar-audio/pkg/audioio"
)

// Accumulator collects the blocks captured during one session.
//
// There is one producer (the capture callback) and one consumer (Stop). The
// active flag decides whether a block is kept; it must be cleared before the
// capture sink is unregistered so that a block still in flight is dropped.
type Accumulator struct {
	active  atomic.Bool
	dropped atomic.Int64

	mu     sync.Mutex
	epoch  uint64
	chunks [][]float32
	total  int
}

// NewAccumulator creates an inactive accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Activate discards anything buffered, starts a new session and returns a
// sink bound to it. Blocks delivered through a sink from an earlier session
// are dropped.
func (a *Accumulator) Activate() audioio.BlockSink {
	a.mu.Lock()
	a.epoch++
	epoch := a.epoch
	a.chunks = nil
	a.total = 0
	a.active.Store(true)
	a.mu.Unlock()

	return func(chunk audioio.AudioChunk) {
		a.append(epoch, chunk)
	}
}

// Deactivate clears the active flag. Subsequent appends are no-ops.
func (a *Accumulator) Deactivate() {
	a.active.Store(false)
}

// Active reports whether blocks are currently being kept.
func (a *Accumulator) Active() bool {
	return a.active.Load()
}

// Append adds a block to the current session. It returns false when the
// block was dropped because the session is no longer active.
func (a *Accumulator) Append(chunk audioio.AudioChunk) bool {
	a.mu.Lock()
	epoch := a.epoch
	a.mu.Unlock()
	return a.append(epoch, chunk)
}

func (a *Accumulator) append(epoch uint64, chunk audioio.AudioChunk) bool {
	if len(chunk.Samples) == 0 {
		return false
	}
	if !a.active.Load() {
		a.dropped.Add(1)
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Re-check under the lock: a drain may have run since the fast path.
	if !a.active.Load() || epoch != a.epoch {
		a.dropped.Add(1)
		return false
	}

	a.chunks = append(a.chunks, chunk.Samples)
	a.total += len(chunk.Samples)
	return true
}

// DrainAndReset concatenates every buffered block in capture order and
// clears the buffer. ok is false when nothing was captured, which callers
// must treat as "no audio" rather than silence.
func (a *Accumulator) DrainAndReset() (samples []float32, ok bool) {
	a.mu.Lock()
	chunks := a.chunks
	total := a.total
	a.chunks = nil
	a.total = 0
	a.mu.Unlock()

	if total == 0 {
		return nil, false
	}

	samples = make([]float32, 0, total)
	for _, c := range chunks {
		samples = append(samples, c...)
	}
	return samples, true
}

// Len returns the number of buffered samples.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Chunks returns the number of buffered blocks.
func (a *Accumulator) Chunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.chunks)
}

// Dropped returns the number of blocks discarded because they arrived
// after the session ended.
func (a *Accumulator) Dropped() int64 {
	return a.dropped.Load()
}
