package audioio

import "testing"

func TestBlocker_FixedBlocks(t *testing.T) {
	var blocks []AudioChunk
	b := newBlocker(4, 16000, func(c AudioChunk) { blocks = append(blocks, c) })

	if n := b.push([]float32{1, 2, 3}); n != 0 {
		t.Errorf("Expected no block from partial push, got %d", n)
	}
	if n := b.push([]float32{4, 5, 6, 7, 8, 9}); n != 2 {
		t.Errorf("Expected 2 blocks, got %d", n)
	}

	if len(blocks) != 2 {
		t.Fatalf("Expected 2 blocks delivered, got %d", len(blocks))
	}
	for i, block := range blocks {
		if block.Len() != 4 {
			t.Errorf("Block %d: expected 4 samples, got %d", i, block.Len())
		}
		if block.SampleRate != 16000 {
			t.Errorf("Block %d: expected rate 16000, got %d", i, block.SampleRate)
		}
	}
	if blocks[1].Samples[0] != 5 || blocks[1].Samples[3] != 8 {
		t.Errorf("Unexpected second block contents: %v", blocks[1].Samples)
	}
}

func TestBlocker_Detach(t *testing.T) {
	calls := 0
	b := newBlocker(2, 8000, func(AudioChunk) { calls++ })

	b.push([]float32{1})
	b.detach()

	if n := b.push([]float32{2, 3, 4}); n != 0 {
		t.Errorf("Expected no blocks after detach, got %d", n)
	}
	if calls != 0 {
		t.Errorf("Expected no sink calls after detach, got %d", calls)
	}
}

func TestBlocker_DefaultSize(t *testing.T) {
	b := newBlocker(0, 16000, nil)
	if b.size != DefaultBlockSize {
		t.Errorf("Expected default block size %d, got %d", DefaultBlockSize, b.size)
	}
}
