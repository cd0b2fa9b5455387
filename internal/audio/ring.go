// Package audio implements the single-producer/single-consumer ring buffer
// used to stage streaming PCM samples ahead of chunked processing.
// Grounded on the accumulate/drain discipline of session/chunk_buffer.go
// (teacher) and the mutex-guarded handoff between capture callback and
// consumer goroutine in audio/capture.go.
package audio

import (
	"sync"

	"voxstream/internal/errs"
)

// Ring is a fixed-capacity circular buffer of float32 PCM samples. Exactly
// one producer (Append) and one consumer (TakeChunk/TakePartial/PeekAll)
// are assumed; no ordering guarantees hold across multiple producers.
type Ring struct {
	mu       sync.Mutex
	buf      []float32
	capacity int
	// buf is logically a slice of length `len` holding the unread window;
	// we keep it simple (no wraparound indices) since the hot path is
	// append + drain, not random access — append-with-discard and drain
	// are O(remaining) which is fine at audio chunk sizes.
}

// NewRing constructs a ring with the given sample capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		buf:      make([]float32, 0, capacity),
		capacity: capacity,
	}
}

// Append writes samples into the ring. If the write would exceed capacity,
// the oldest samples are discarded first so the newest data is always
// preserved. Fails with errs.ErrOverflow only when a single write is larger
// than the entire buffer.
func (r *Ring) Append(samples []float32) error {
	if len(samples) > r.capacity {
		return errs.ErrOverflow
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	total := len(r.buf) + len(samples)
	if total > r.capacity {
		discard := total - r.capacity
		r.buf = r.buf[discard:]
	}
	r.buf = append(r.buf, samples...)
	return nil
}

// TakeChunk returns exactly n samples and advances the read cursor, or
// (nil, false) if fewer than n samples are currently available.
func (r *Ring) TakeChunk(n int) ([]float32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) < n {
		return nil, false
	}
	out := make([]float32, n)
	copy(out, r.buf[:n])
	r.buf = r.buf[n:]
	return out, true
}

// TakePartial behaves like TakeChunk but also drains whatever is available
// (fewer than n samples) instead of returning false.
func (r *Ring) TakePartial(n int) ([]float32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) == 0 {
		return nil, false
	}
	take := n
	if take > len(r.buf) {
		take = len(r.buf)
	}
	out := make([]float32, take)
	copy(out, r.buf[:take])
	r.buf = r.buf[take:]
	return out, true
}

// PeekAll returns a copy of everything currently buffered, without
// consuming it.
func (r *Ring) PeekAll() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]float32, len(r.buf))
	copy(out, r.buf)
	return out
}

// Len reports how many samples are currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}
