package buffer

import "github.com/pkg/errors"

// errors returned from the buffer pool manager.
// callers compare these with errors.Is because the manager wraps them
// with more context before returning.
var (
	// ErrBufferExceeded is returned when every buffer is pinned and
	// clock sweep cannot find any victim
	ErrBufferExceeded = errors.New("all buffers are pinned")
	// ErrPagePinned is returned when the operation needs the page to be
	// unpinned but somebody still holds a pin
	ErrPagePinned = errors.New("page is pinned")
	// ErrPageNotPinned is returned when the released page is not pinned
	ErrPageNotPinned = errors.New("page is not pinned")
	// ErrPageNotFound is returned when the page is not in the buffer pool
	ErrPageNotFound = errors.New("page is not in the buffer pool")
	// ErrInvalidBuffer is returned when a buffer tagged with the file is not valid
	ErrInvalidBuffer = errors.New("buffer is not valid")
	// ErrClosed is returned from every operation after Close()
	ErrClosed = errors.New("buffer pool manager is closed")
)

// errors returned from the buffer table
var (
	// ErrNotFound is returned from Lookup()/Remove() when the tag has no entry
	ErrNotFound = errors.New("buffer tag not found in the buffer table")
	// ErrAlreadyExists is returned from Insert() when the tag already has an entry
	ErrAlreadyExists = errors.New("buffer tag already exists in the buffer table")
)
