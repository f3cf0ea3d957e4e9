package logging

import (
	"os"
	"sync"
)

// RingBuffer is a thread-safe circular byte buffer that keeps the most recent
// writes. It implements io.Writer; old data is overwritten when full.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []byte
	start int // index of the oldest byte
	n     int // number of valid bytes
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 4 * 1024 * 1024
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer. Writes never fail; the oldest data is dropped
// once capacity is exceeded.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	total := len(p)
	size := len(rb.buf)
	if total >= size {
		// Only the tail of p survives.
		copy(rb.buf, p[total-size:])
		rb.start, rb.n = 0, size
		return total, nil
	}

	for len(p) > 0 {
		w := (rb.start + rb.n) % size
		c := copy(rb.buf[w:], p)
		p = p[c:]
		if rb.n+c > size {
			rb.start = (rb.start + rb.n + c - size) % size
			rb.n = size
		} else {
			rb.n += c
		}
	}
	return total, nil
}

// Bytes returns the buffer contents in chronological order.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.n)
	c := copy(out, rb.buf[rb.start:])
	if c < rb.n {
		copy(out[c:], rb.buf[:rb.n-c])
	}
	return out
}

// Dump writes the buffer contents to a file in chronological order.
// Log lines carry user file paths, so the dump is not world-readable.
func (rb *RingBuffer) Dump(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o600)
}
