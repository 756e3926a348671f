package audioio

import "sync"

// blocker re-chunks variable-sized device callbacks into fixed-size mono
// blocks. Backends whose driver does not honour the requested period size
// feed every callback through it.
type blocker struct {
	mu      sync.Mutex
	size    int
	rate    int
	pending []float32
	sink    BlockSink
}

func newBlocker(size, rate int, sink BlockSink) *blocker {
	if size <= 0 {
		size = DefaultBlockSize
	}
	return &blocker{
		size:    size,
		rate:    rate,
		pending: make([]float32, 0, size),
		sink:    sink,
	}
}

// push appends mono samples and emits every complete block. It returns the
// number of blocks emitted.
func (b *blocker) push(mono []float32) int {
	b.mu.Lock()
	b.pending = append(b.pending, mono...)
	var ready [][]float32
	for len(b.pending) >= b.size {
		block := make([]float32, b.size)
		copy(block, b.pending[:b.size])
		ready = append(ready, block)
		b.pending = b.pending[b.size:]
	}
	// Compact so the backing array does not grow without bound.
	if len(b.pending) > 0 && cap(b.pending) > 4*b.size {
		b.pending = append(make([]float32, 0, b.size), b.pending...)
	}
	sink := b.sink
	b.mu.Unlock()

	if sink == nil {
		return 0
	}
	for _, block := range ready {
		sink(AudioChunk{Samples: block, SampleRate: b.rate})
	}
	return len(ready)
}

// detach unregisters the sink and drops any partial block.
func (b *blocker) detach() {
	b.mu.Lock()
	b.sink = nil
	b.pending = b.pending[:0]
	b.mu.Unlock()
}
