// ABOUTME: Fixed-size chunk assembly for captured PCM
// ABOUTME: Accumulates device callback frames and emits whole chunks
package capture

import "sync"

// Chunker accumulates raw capture bytes and emits fixed-size chunks to
// the installed sink. Whole chunks produced with no sink are discarded;
// only the sub-chunk remainder is carried over.
type Chunker struct {
	mu        sync.Mutex
	chunkSize int
	pending   []byte
	sink      func(chunk []byte)
	emitted   int64
	dropped   int64
}

// NewChunker creates a chunker emitting chunks of chunkSize bytes.
func NewChunker(chunkSize int) *Chunker {
	return &Chunker{
		chunkSize: chunkSize,
		pending:   make([]byte, 0, chunkSize*2),
	}
}

// SetSink installs or detaches (nil) the chunk consumer.
func (k *Chunker) SetSink(fn func(chunk []byte)) {
	k.mu.Lock()
	k.sink = fn
	k.mu.Unlock()
}

// Push appends captured bytes and emits every completed chunk.
func (k *Chunker) Push(data []byte) {
	k.mu.Lock()
	k.pending = append(k.pending, data...)

	var chunks [][]byte
	for len(k.pending) >= k.chunkSize {
		chunk := make([]byte, k.chunkSize)
		copy(chunk, k.pending[:k.chunkSize])
		k.pending = k.pending[k.chunkSize:]

		if k.sink == nil {
			k.dropped++
			continue
		}
		k.emitted++
		chunks = append(chunks, chunk)
	}
	sink := k.sink
	k.mu.Unlock()

	for _, chunk := range chunks {
		sink(chunk)
	}
}

// Counters returns how many chunks were emitted and dropped.
func (k *Chunker) Counters() (emitted, dropped int64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.emitted, k.dropped
}
