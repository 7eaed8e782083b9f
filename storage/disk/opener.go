/*
This file defines opener interface and its implementations.
We don't want to execute disk I/O in test, so it's better to use byte slice
instead of actual file in test. For this reason, opener interface is defined.
Opener opens (and removes) its storage. The implementations are:
- fileOpener: open and return file.
- memOpener: open and return byte slice. this is intended to be used in test.
*/
package disk

import (
	"os"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// opener opens storage
type opener interface {
	// open opens the storage at path.
	// when create is true, the storage must not exist yet.
	// when create is false, the storage must already exist.
	open(path string, create bool) (storage, error)
	// remove removes the storage at path
	remove(path string) error
}

// fileOpener opens files
type fileOpener struct{}

// newFileOpener initializes fileOpener
func newFileOpener() *fileOpener {
	return &fileOpener{}
}

// open opens the file at path
func (fo *fileOpener) open(path string, create bool) (storage, error) {
	flag := os.O_RDWR
	if create {
		flag |= os.O_CREATE | os.O_EXCL
	}
	fd, err := os.OpenFile(path, flag, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "os.OpenFile failed")
	}
	return fileStorage{fd}, nil
}

// remove removes the file at path
func (fo *fileOpener) remove(path string) error {
	if err := os.Remove(path); err != nil {
		return errors.Wrap(err, "os.Remove failed")
	}
	return nil
}

// memOpener opens in-memory buffers.
// buffers survive close so a file can be reopened within the same opener,
// which lets tests check persistence without touching the filesystem.
type memOpener struct {
	st *xsync.MapOf[string, storage]
}

// newMemOpener initializes memOpener
func newMemOpener() *memOpener {
	return &memOpener{
		st: xsync.NewMapOf[string, storage](),
	}
}

// open returns the buffer stored at path
func (mo *memOpener) open(path string, create bool) (storage, error) {
	if create {
		if _, ok := mo.st.Load(path); ok {
			return nil, errors.Errorf("file already exists: %s", path)
		}
		st := newMemStorage()
		mo.st.Store(path, st)
		return st, nil
	}
	st, ok := mo.st.Load(path)
	if !ok {
		return nil, errors.Errorf("file does not exist: %s", path)
	}
	return st, nil
}

// remove removes the buffer stored at path
func (mo *memOpener) remove(path string) error {
	if _, ok := mo.st.Load(path); !ok {
		return errors.Errorf("file does not exist: %s", path)
	}
	mo.st.Delete(path)
	return nil
}
