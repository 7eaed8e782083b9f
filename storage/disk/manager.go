/*
Disk manager deals with the data files under one directory.
The buffer pool reads and writes pages only through this manager.

The implementation is loosely based on the smgr layer in postgres.
See smgr README https://github.com/postgres/postgres/blob/b0a55e43299c4ea2a9a8c757f9c26352407d0ccc/src/backend/storage/smgr/README#L1

Open files are tracked in two registries: by name, so reopening an already-open
file returns the same FileID instead of a second handle to the same pages, and
by FileID, which is the hot path every page operation goes through. Both are
concurrent maps so page I/O from many goroutines never serializes on a
manager-wide lock; the manager mutex is taken only when the set of open files
changes.

Postgres manages file descriptors by itself not to exceed system limits on the
number of open files (the `virtual file descriptor` layer). burrow keeps every
open file's descriptor until CloseFile, which is enough at this scale.
*/
package disk

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/burrowdb/burrow/common"
	"github.com/burrowdb/burrow/storage/page"
)

var (
	// ErrPageNotAllocated is returned when the page has never been allocated or has been deleted
	ErrPageNotAllocated = errors.New("page is not allocated")
	// ErrWrongPage is returned when the page read from disk carries a different page number
	ErrWrongPage = errors.New("unexpected page number")
	// ErrChecksumMismatch is returned when the page payload does not match its checksum
	ErrChecksumMismatch = errors.New("page checksum mismatch")
	// ErrFileNotOpen is returned when the FileID does not belong to an open file
	ErrFileNotOpen = errors.New("file is not open")
)

// Manager manages the data files under one directory
type Manager struct {
	op opener
	// dir is the directory the data files live under
	dir string

	// mu serializes changes to the set of open files (Open/Create/CloseFile/Remove)
	mu sync.Mutex
	// byName maps file name to the open file
	byName *xsync.MapOf[string, *file]
	// byID maps FileID to the open file. every page operation resolves
	// the file through this map.
	byID *xsync.MapOf[common.FileID, *file]
	// nextID is the last allocated FileID. ids start at 1 so that
	// common.InvalidFileID is never handed out.
	nextID atomic.Uint32
}

// NewManager initializes the disk manager with file storage under dir
func NewManager(dir string) (*Manager, error) {
	// check whether the directory already exists
	if _, err := os.Stat(dir); !os.IsExist(err) {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, errors.Wrap(err, "os.MkdirAll failed")
		}
	}
	return newManager(newFileOpener(), dir), nil
}

// NewMemManager initializes the disk manager with in-memory storage instead
// of file storage. pages do not survive the process.
func NewMemManager() *Manager {
	return newManager(newMemOpener(), "")
}

// newManager initializes the disk manager with the given opener
func newManager(op opener, dir string) *Manager {
	return &Manager{
		op:     op,
		dir:    dir,
		byName: xsync.NewMapOf[string, *file](),
		byID:   xsync.NewMapOf[common.FileID, *file](),
	}
}

// filePath returns the path of the file under the manager's directory
func (m *Manager) filePath(name string) string {
	return filepath.Join(m.dir, name)
}

// Create creates a new data file and opens it.
// creating a file which already exists is an error.
func (m *Manager) Create(name string) (common.FileID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName.Load(name); ok {
		return common.InvalidFileID, errors.Errorf("file is already open: %s", name)
	}
	st, err := m.op.open(m.filePath(name), true)
	if err != nil {
		return common.InvalidFileID, errors.Wrap(err, "op.open failed")
	}
	f := &file{
		id:   common.FileID(m.nextID.Add(1)),
		name: name,
		st:   st,
		refs: 1,
	}
	if err := f.initHeader(); err != nil {
		return common.InvalidFileID, errors.Wrap(err, "f.initHeader failed")
	}
	m.byName.Store(name, f)
	m.byID.Store(f.id, f)
	return f.id, nil
}

// Open opens an existing data file.
// when the file is already open, the existing FileID is returned.
func (m *Manager) Open(name string) (common.FileID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.byName.Load(name); ok {
		f.refs++
		return f.id, nil
	}
	st, err := m.op.open(m.filePath(name), false)
	if err != nil {
		return common.InvalidFileID, errors.Wrap(err, "op.open failed")
	}
	f := &file{
		id:   common.FileID(m.nextID.Add(1)),
		name: name,
		st:   st,
		refs: 1,
	}
	if err := f.loadHeader(); err != nil {
		return common.InvalidFileID, errors.Wrap(err, "f.loadHeader failed")
	}
	m.byName.Store(name, f)
	m.byID.Store(f.id, f)
	return f.id, nil
}

// CloseFile closes the file.
// the file stays open until every Open/Create of it has been matched by a
// CloseFile, then it is synced, closed and its FileID retired.
func (m *Manager) CloseFile(fileID common.FileID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID.Load(fileID)
	if !ok {
		return errors.Wrapf(ErrFileNotOpen, "file %d", fileID)
	}
	f.refs--
	if f.refs > 0 {
		return nil
	}
	m.byName.Delete(f.name)
	m.byID.Delete(fileID)
	if err := f.close(); err != nil {
		return errors.Wrap(err, "f.close failed")
	}
	return nil
}

// Remove removes the data file. the file must not be open.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName.Load(name); ok {
		return errors.Errorf("file is open: %s", name)
	}
	if err := m.op.remove(m.filePath(name)); err != nil {
		return errors.Wrap(err, "op.remove failed")
	}
	return nil
}

// Close closes every open file
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	m.byID.Range(func(fileID common.FileID, f *file) bool {
		if err := f.close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close file %s failed", f.name)
		}
		m.byName.Delete(f.name)
		m.byID.Delete(fileID)
		return true
	})
	return firstErr
}

// lookup resolves the open file from its id
func (m *Manager) lookup(fileID common.FileID) (*file, error) {
	f, ok := m.byID.Load(fileID)
	if !ok {
		return nil, errors.Wrapf(ErrFileNotOpen, "file %d", fileID)
	}
	return f, nil
}

// ReadPage reads the page of the file into p
func (m *Manager) ReadPage(fileID common.FileID, pageID page.PageID, p page.PagePtr) error {
	f, err := m.lookup(fileID)
	if err != nil {
		return err
	}
	return f.readPage(pageID, p)
}

// WritePage persists the page of the file, keyed by the page's own number
func (m *Manager) WritePage(fileID common.FileID, p page.PagePtr) error {
	f, err := m.lookup(fileID)
	if err != nil {
		return err
	}
	return f.writePage(p)
}

// AllocatePage allocates a fresh page of the file and initializes its image in p
func (m *Manager) AllocatePage(fileID common.FileID, p page.PagePtr) (page.PageID, error) {
	f, err := m.lookup(fileID)
	if err != nil {
		return page.InvalidPageID, err
	}
	return f.allocatePage(p)
}

// DeletePage deletes the page of the file so its id can be reused
func (m *Manager) DeletePage(fileID common.FileID, pageID page.PageID) error {
	f, err := m.lookup(fileID)
	if err != nil {
		return err
	}
	return f.deletePage(pageID)
}

// Sync flushes the file to its storage
func (m *Manager) Sync(fileID common.FileID) error {
	f, err := m.lookup(fileID)
	if err != nil {
		return err
	}
	return f.sync()
}

// Stat returns a snapshot of the file's counters
func (m *Manager) Stat(fileID common.FileID) (FileStat, error) {
	f, err := m.lookup(fileID)
	if err != nil {
		return FileStat{}, err
	}
	return f.stat(), nil
}
