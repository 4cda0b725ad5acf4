package remote

import "sync"

// Buffer accumulates shell output. A bounded buffer keeps the most recent
// bytes and drops the oldest; a zero size never drops anything.
type Buffer struct {
	mu      sync.RWMutex
	data    []byte
	size    int
	start   int
	length  int
	dropped int64
}

// NewBuffer creates a buffer holding at most size bytes, or an unbounded one for size <= 0.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		return &Buffer{}
	}
	return &Buffer{
		data: make([]byte, size),
		size: size,
	}
}

// Write appends p to the buffer.
func (b *Buffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		b.data = append(b.data, p...)
		b.length = len(b.data)
		return len(p), nil
	}

	for _, c := range p {
		end := (b.start + b.length) % b.size
		b.data[end] = c
		if b.length == b.size {
			// Full: overwrite the oldest byte
			b.start = (b.start + 1) % b.size
			b.dropped++
		} else {
			b.length++
		}
	}

	return len(p), nil
}

// Bytes returns a copy of the buffered output, oldest first.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]byte, b.length)
	if b.size == 0 {
		copy(result, b.data)
		return result
	}
	if b.start+b.length <= b.size {
		copy(result, b.data[b.start:b.start+b.length])
		return result
	}
	// Wrapped around
	n := copy(result, b.data[b.start:])
	copy(result[n:], b.data[:b.length-n])
	return result
}

// String returns the buffered output as text.
func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.length
}

// Dropped returns how many bytes were discarded to respect the bound.
func (b *Buffer) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
