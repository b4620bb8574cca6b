// Package pool provides reusable buffer management using sync.Pool.
// Record bytes and decoded sample buffers cycle through pools so a large
// run does not allocate per record.
package pool

import (
	"sync"
)

const (
	// DefaultBufferSize covers the largest common record length.
	DefaultBufferSize = 8 * 1024

	// DefaultSampleCapacity is the initial decoded-sample capacity.
	DefaultSampleCapacity = 4096
)

// ByteBuffer wraps a byte slice for pooled reuse.
type ByteBuffer struct {
	Data []byte
}

// Reset clears the buffer for reuse.
func (b *ByteBuffer) Reset() {
	b.Data = b.Data[:0]
}

// Grow ensures the buffer has at least n bytes of length.
func (b *ByteBuffer) Grow(n int) {
	if cap(b.Data) < n {
		b.Data = make([]byte, n)
		return
	}
	b.Data = b.Data[:n]
}

// Len returns the current length of data in the buffer.
func (b *ByteBuffer) Len() int {
	return len(b.Data)
}

// Bytes returns the underlying byte slice.
func (b *ByteBuffer) Bytes() []byte {
	return b.Data
}

// BufferPool manages reusable byte buffers.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a new buffer pool with the specified buffer size.
func NewBufferPool(bufferSize int) *BufferPool {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	bp := &BufferPool{size: bufferSize}
	bp.pool.New = func() any {
		return &ByteBuffer{
			Data: make([]byte, 0, bufferSize),
		}
	}
	return bp
}

// Get retrieves a buffer from the pool.
func (p *BufferPool) Get() *ByteBuffer {
	return p.pool.Get().(*ByteBuffer)
}

// Put returns a buffer to the pool.
func (p *BufferPool) Put(buf *ByteBuffer) {
	buf.Reset()
	p.pool.Put(buf)
}

// SampleBuffer holds decoded sample payloads for pooled reuse.
// Integer encodings decode into Ints, float encodings into Floats.
type SampleBuffer struct {
	Ints   []int32
	Floats []float64
}

// Reset clears the sample buffer for reuse.
func (s *SampleBuffer) Reset() {
	s.Ints = s.Ints[:0]
	s.Floats = s.Floats[:0]
}

// SamplePool manages reusable SampleBuffer structs.
type SamplePool struct {
	pool sync.Pool
}

// NewSamplePool creates a new sample buffer pool.
func NewSamplePool() *SamplePool {
	sp := &SamplePool{}
	sp.pool.New = func() any {
		return &SampleBuffer{
			Ints:   make([]int32, 0, DefaultSampleCapacity),
			Floats: make([]float64, 0, DefaultSampleCapacity),
		}
	}
	return sp
}

// Get retrieves a sample buffer from the pool.
func (p *SamplePool) Get() *SampleBuffer {
	return p.pool.Get().(*SampleBuffer)
}

// Put returns a sample buffer to the pool.
func (p *SamplePool) Put(s *SampleBuffer) {
	s.Reset()
	p.pool.Put(s)
}
