package record

// ring is a fixed-capacity circular buffer with drop-oldest overflow.
//
// Single-writer (the capture loop); drain happens only after the loop has
// exited, so no locking is needed beyond the recorder's own lifecycle mutex.
type ring[T any] struct {
	buf     []T
	head    int // index of oldest element
	size    int
	dropped uint64
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

// push appends v, evicting the oldest element when full.
func (r *ring[T]) push(v T) {
	if r.size == len(r.buf) {
		// Overflow: production outpaced flush capacity. Drop the oldest so
		// the capture loop never blocks.
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		r.dropped++
		return
	}
	r.buf[(r.head+r.size)%len(r.buf)] = v
	r.size++
}

// drain returns the buffered elements oldest-first and empties the ring.
func (r *ring[T]) drain() []T {
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	r.head = 0
	r.size = 0
	return out
}

func (r *ring[T]) len() int { return r.size }
