/*
This file defines storage interface and its implementations.
We don't want to execute disk I/O in test, so it's better to use byte slice
instead of actual file in test. For this reason, storage interface is defined.
Possible operation with storage is read at/write at/sync/get size/close.
The implementations are:
- fileStorage: wrapper of os.File
- memStorage: byte slice which grows on write. this is intended to be used in test.

Page I/O is always positioned, so ReaderAt/WriterAt fits better than
Read/Write with Seek: no current-position state to get wrong, and concurrent
access does not race on the position.
*/
package disk

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// storage is the backing store of one data file
type storage interface {
	io.ReaderAt
	io.WriterAt
	Size() (int64, error)
	Sync() error
	Close() error
}

// fileStorage is file storage
type fileStorage struct {
	*os.File
}

// Size returns the storage's size
func (fs fileStorage) Size() (int64, error) {
	stat, err := fs.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "Stat failed")
	}
	return stat.Size(), nil
}

// memStorage is in-memory storage
type memStorage struct {
	mu sync.RWMutex
	// buf is actual contents
	buf []byte
}

// newMemStorage initializes memStorage
func newMemStorage() *memStorage {
	return &memStorage{}
}

// ReadAt reads len(p) bytes at offset off
func (ms *memStorage) ReadAt(p []byte, off int64) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if off >= int64(len(ms.buf)) {
		return 0, io.EOF
	}
	n := copy(p, ms.buf[off:])
	if n != len(p) {
		return n, errors.Errorf("cannot fully read: read %d, len %d", n, len(p))
	}
	return n, nil
}

// WriteAt writes p at offset off, extending the buffer when necessary
func (ms *memStorage) WriteAt(p []byte, off int64) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if need := off + int64(len(p)); need > int64(len(ms.buf)) {
		grown := make([]byte, need)
		copy(grown, ms.buf)
		ms.buf = grown
	}
	n := copy(ms.buf[off:], p)
	return n, nil
}

// Size returns the buffer size
func (ms *memStorage) Size() (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return int64(len(ms.buf)), nil
}

// Sync doesn't do anything
func (ms *memStorage) Sync() error {
	// on-memory byte slice doesn't need sync
	return nil
}

// Close doesn't do anything.
// the content is kept so the file can be reopened within the same opener.
func (ms *memStorage) Close() error {
	return nil
}
