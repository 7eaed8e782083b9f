package buffer

import "github.com/burrowdb/burrow/storage/page"

// BufferID is the index of the buffer within the pool.
// the descriptor of the buffer lives at the same index.
type BufferID int32

const (
	// InvalidBufferID is invalid buffer id
	InvalidBufferID BufferID = -1
	// FirstBufferID is the id of the first buffer in the pool
	FirstBufferID BufferID = 0
)

// buffer is byte array. page is fetched from disk into this buffer.
type buffer *[bufferSize]byte

const (
	// the size of one buffer. this must be the same size with the page
	// because page is fetched into buffer.
	bufferSize = page.PageSize

	// defaultPoolSize is the default size of the whole pool in bytes (1MB)
	defaultPoolSize = 1 << 20
	// DefaultNumBuffers is the default number of buffers in the pool
	DefaultNumBuffers = defaultPoolSize / bufferSize
)

// newBuffers initializes the pool's buffers.
// the buffers are carved out of one contiguous arena so the pool is a single
// allocation, the way postgres allocates its shared buffers in one segment.
func newBuffers(n int) []buffer {
	arena := make([]byte, n*bufferSize)
	buffers := make([]buffer, n)
	for i := range buffers {
		buffers[i] = (*[bufferSize]byte)(arena[i*bufferSize : (i+1)*bufferSize])
	}
	return buffers
}
