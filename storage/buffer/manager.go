/*
Buffer pool manager manages a fixed set of page-sized buffers shared by all
callers. Disk IO is slow, so pages are cached in the pool and every access
goes through here instead of hitting the disk manager directly.

the protocol for using a page:
- pin the buffer (ReadBuffer/AllocatePage)
- use the page through the returned buffer id (GetPage)
- unpin the buffer (ReleaseBuffer)
A pinned buffer is never evicted, so the page pointer stays valid for exactly
as long as the pin is held. A caller which modified the page passes
markDirty=true on release. The write to disk does not happen at release time:
dirty pages are written back when the buffer is evicted, when the file is
flushed, when the manager is closed, or ahead of time by the background
writer (see bgwriter.go).

locking:
Postgres protects its pool with a bunch of locks: a spinlock in each buffer
header, partition locks on the mapping table and a strategy lock around the
clock hand, see
https://github.com/postgres/postgres/blob/d87251048a0f293ad20cc1fe26ce9f542de105e6/src/backend/storage/buffer/README#L100-L152
burrow's pool is small, so one mutex guards the table, the descriptors and
the clock hand together. That single lock makes the compound operations
atomic: a victim is selected, unmapped and reused as one unit, and pins taken
through ReadBuffer cannot interleave with FlushFile or DisposePage. What the
mutex does not guard is page content. The pin is what keeps the content
usable by the caller, and whoever needs to serialize writes to one page has
to do that above the pool.
*/
package buffer

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/burrowdb/burrow/common"
	"github.com/burrowdb/burrow/storage/disk"
	"github.com/burrowdb/burrow/storage/page"
)

// DiskManager is what the pool needs from the disk layer.
// *disk.Manager satisfies this. the indirection exists so the pool can be
// tested against any page store.
type DiskManager interface {
	// ReadPage reads the page of the file into p
	ReadPage(fileID common.FileID, pageID page.PageID, p page.PagePtr) error
	// WritePage writes p out to the file. the page id is taken from the
	// page header.
	WritePage(fileID common.FileID, p page.PagePtr) error
	// AllocatePage allocates one new page of the file, initializes its
	// image both on disk and in p, and returns the new page id
	AllocatePage(fileID common.FileID, p page.PagePtr) (page.PageID, error)
	// DeletePage deletes the page of the file
	DeletePage(fileID common.FileID, pageID page.PageID) error
}

var _ DiskManager = (*disk.Manager)(nil)

// Manager is buffer pool manager
type Manager struct {
	// dm reads and writes pages on behalf of the pool
	dm DiskManager
	// table is the mapping from buffer tag to buffer id
	table Table
	// buffers is the pool of shared buffers
	buffers []buffer
	// descriptors stores metadata of each buffer. the descriptor of
	// buffers[i] is descriptors[i].
	descriptors []descriptor
	// nextVictimBuffer is the clock hand: the buffer clock sweep
	// inspected last
	nextVictimBuffer BufferID

	// mu guards table, descriptors, nextVictimBuffer, stats and closed
	mu     sync.Mutex
	stats  Stats
	closed bool

	logger *slog.Logger
}

// NewManager initializes the buffer pool manager
func NewManager(dm DiskManager, conf Config) (*Manager, error) {
	if conf.NumBuffers < 1 {
		return nil, errors.Errorf("number of buffers must be at least 1, got %d", conf.NumBuffers)
	}
	table := conf.Table
	if table == nil {
		table = NewHashTable(conf.NumBuffers)
	}
	logger := conf.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dm:          dm,
		table:       table,
		buffers:     newBuffers(conf.NumBuffers),
		descriptors: newDescriptors(conf.NumBuffers),
		// the hand starts on the last buffer so that the first tick
		// lands on buffer 0
		nextVictimBuffer: BufferID(conf.NumBuffers - 1),
		logger:           logger,
	}, nil
}

/*
ReadBuffer returns the id of the buffer holding the page.
the returned buffer has been pinned, so the caller has to call
ReleaseBuffer() after completion of using the buffer.

when the page is already in the pool, its buffer is returned as is and the
referenced bit is turned on. when it is not, clock sweep reclaims a victim
buffer and the page is fetched from disk into it.
*/
func (m *Manager) ReadBuffer(fileID common.FileID, pageID page.PageID) (BufferID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return InvalidBufferID, ErrClosed
	}

	tg := newTag(fileID, pageID)
	bufID, err := m.table.Lookup(tg)
	if err == nil {
		desc := &m.descriptors[bufID]
		desc.referenced = true
		desc.pinCount++
		m.stats.Hits++
		return bufID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return InvalidBufferID, errors.Wrap(err, "table.Lookup failed")
	}

	bufID, err = m.allocateWithClockSweep()
	if err != nil {
		return InvalidBufferID, errors.Wrap(err, "m.allocateWithClockSweep failed")
	}
	if err := m.dm.ReadPage(fileID, pageID, page.PagePtr(m.buffers[bufID])); err != nil {
		return InvalidBufferID, errors.Wrap(err, "dm.ReadPage failed")
	}
	if err := m.table.Insert(tg, bufID); err != nil {
		return InvalidBufferID, errors.Wrap(err, "table.Insert failed")
	}
	m.descriptors[bufID].set(tg)
	m.stats.Misses++
	return bufID, nil
}

// ReleaseBuffer unpins the buffer holding the page.
// markDirty tells the pool the caller modified the page. the dirty bit is
// sticky: releasing the page again with markDirty=false does not undo it,
// only an actual write back does.
func (m *Manager) ReleaseBuffer(fileID common.FileID, pageID page.PageID, markDirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	bufID, err := m.table.Lookup(newTag(fileID, pageID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errors.Wrapf(ErrPageNotFound, "page %d of file %d", pageID, fileID)
		}
		return errors.Wrap(err, "table.Lookup failed")
	}
	desc := &m.descriptors[bufID]
	if desc.pinCount == 0 {
		return errors.Wrapf(ErrPageNotPinned, "page %d of file %d", pageID, fileID)
	}
	desc.pinCount--
	if markDirty {
		desc.dirty = true
	}
	return nil
}

// GetPage returns the page stored in the buffer.
// the pointer is valid while the caller holds a pin on the buffer.
func (m *Manager) GetPage(bufID BufferID) page.PagePtr {
	return page.PagePtr(m.buffers[bufID])
}

/*
FlushFile writes back every dirty page of the file and drops all of the
file's pages from the pool.

the buffers are validated before anything is modified: a pinned page fails
the flush with ErrPagePinned, and a buffer tagged with the file without being
valid fails it with ErrInvalidBuffer. so a failed flush leaves the pool
exactly as it was. flushing a file with no pages in the pool is a no-op,
which also makes the operation idempotent.
*/
func (m *Manager) FlushFile(fileID common.FileID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.flushFile(fileID)
}

// flushFile is FlushFile() without the lock. Close() calls this while
// already holding m.mu.
func (m *Manager) flushFile(fileID common.FileID) error {
	if fileID == common.InvalidFileID {
		return errors.Errorf("invalid file id %d", fileID)
	}

	for i := range m.descriptors {
		desc := &m.descriptors[i]
		if desc.tag.FileID != fileID {
			continue
		}
		if !desc.valid {
			return errors.Wrapf(ErrInvalidBuffer, "buffer %d tagged with file %d", i, fileID)
		}
		if desc.pinCount > 0 {
			return errors.Wrapf(ErrPagePinned, "page %d of file %d", desc.tag.PageID, fileID)
		}
	}

	for i := range m.descriptors {
		desc := &m.descriptors[i]
		if desc.tag.FileID != fileID {
			continue
		}
		if desc.dirty {
			if err := m.flushBuffer(BufferID(i)); err != nil {
				return errors.Wrap(err, "m.flushBuffer failed")
			}
			desc.dirty = false
		}
		if err := m.table.Remove(desc.tag); err != nil {
			return errors.Wrap(err, "table.Remove failed")
		}
		desc.clear()
	}
	return nil
}

// flushBuffer writes the page in the buffer back to its file.
// the caller must hold m.mu and is responsible for the dirty bit.
func (m *Manager) flushBuffer(bufID BufferID) error {
	desc := &m.descriptors[bufID]
	if err := m.dm.WritePage(desc.tag.FileID, page.PagePtr(m.buffers[bufID])); err != nil {
		return errors.Wrapf(err, "dm.WritePage failed for page %d of file %d", desc.tag.PageID, desc.tag.FileID)
	}
	m.stats.Writebacks++
	return nil
}

/*
AllocatePage allocates a brand-new page of the file and returns it already
placed in the pool and pinned, so the caller can build the page content
through GetPage() without any disk read. the caller has to call
ReleaseBuffer() like for any other page.

the file assigns the page id and initializes the page image on disk; the
same image is copied into the reclaimed buffer. when the pool cannot reclaim
any buffer the new page stays allocated in the file, and the caller can still
fetch it later through ReadBuffer().
*/
func (m *Manager) AllocatePage(fileID common.FileID) (page.PageID, BufferID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return page.InvalidPageID, InvalidBufferID, ErrClosed
	}

	scratch := page.NewPagePtr()
	pageID, err := m.dm.AllocatePage(fileID, scratch)
	if err != nil {
		return page.InvalidPageID, InvalidBufferID, errors.Wrap(err, "dm.AllocatePage failed")
	}

	bufID, err := m.allocateWithClockSweep()
	if err != nil {
		return page.InvalidPageID, InvalidBufferID, errors.Wrap(err, "m.allocateWithClockSweep failed")
	}
	*m.buffers[bufID] = *scratch

	tg := newTag(fileID, pageID)
	if err := m.table.Insert(tg, bufID); err != nil {
		return page.InvalidPageID, InvalidBufferID, errors.Wrap(err, "table.Insert failed")
	}
	m.descriptors[bufID].set(tg)
	m.stats.Allocations++
	return pageID, bufID, nil
}

/*
DisposePage drops the page from the pool and deletes it in the file.

a pinned page cannot be disposed. a dirty page being disposed is dropped
without being written back, its content is garbage from now on. the on-disk
delete happens whether or not the page was in the pool.
*/
func (m *Manager) DisposePage(fileID common.FileID, pageID page.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	tg := newTag(fileID, pageID)
	bufID, err := m.table.Lookup(tg)
	switch {
	case err == nil:
		desc := &m.descriptors[bufID]
		if desc.pinCount > 0 {
			return errors.Wrapf(ErrPagePinned, "page %d of file %d", pageID, fileID)
		}
		if err := m.table.Remove(tg); err != nil {
			return errors.Wrap(err, "table.Remove failed")
		}
		desc.clear()
	case !errors.Is(err, ErrNotFound):
		return errors.Wrap(err, "table.Lookup failed")
	}

	if err := m.dm.DeletePage(fileID, pageID); err != nil {
		return errors.Wrap(err, "dm.DeletePage failed")
	}
	m.stats.Disposals++
	return nil
}

/*
Close writes back every file which still has dirty pages and shuts the pool
down. all pages are expected to be unpinned at this point: a pinned page
fails the flush of its file, Close keeps flushing the remaining files and
returns the first error. Close is idempotent, and every operation after it
fails with ErrClosed.
*/
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}

	var firstErr error
	flushed := make(map[common.FileID]struct{})
	for i := range m.descriptors {
		desc := &m.descriptors[i]
		if !desc.valid || !desc.dirty {
			continue
		}
		if _, ok := flushed[desc.tag.FileID]; ok {
			continue
		}
		flushed[desc.tag.FileID] = struct{}{}
		if err := m.flushFile(desc.tag.FileID); err != nil {
			m.logger.Error("flush on close failed", "file", desc.tag.FileID, "error", err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "flush of file %d failed", desc.tag.FileID)
			}
		}
	}
	m.closed = true
	return firstErr
}

// Dump writes the state of every buffer to w, one line per buffer, followed
// by the count of valid buffers. the output is meant for humans debugging
// the pool, not for parsing.
func (m *Manager) Dump(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		fmt.Fprintln(w, "buffer pool manager is closed")
		return
	}

	valid := 0
	for i := range m.descriptors {
		desc := &m.descriptors[i]
		if !desc.valid {
			fmt.Fprintf(w, "buf %3d: invalid\n", i)
			continue
		}
		valid++
		fmt.Fprintf(w, "buf %3d: file %d page %d pin=%d dirty=%t referenced=%t\n",
			i, desc.tag.FileID, desc.tag.PageID, desc.pinCount, desc.dirty, desc.referenced)
	}
	fmt.Fprintf(w, "valid buffers: %d/%d\n", valid, len(m.descriptors))
}
