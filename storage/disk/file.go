/*
On-disk layout of one data file.

A data file starts with one header block followed by the pages:

  - +--------------+--------+--------+-----
  - | header block | page 0 | page 1 | ...
  - +--------------+--------+--------+-----

The header block occupies a full page.PageSize so every page id maps to the
offset (id+1) * page.PageSize. The header stores:

  - magic (4B) / version (2B) / reserved (2B)
  - page size (4B): verified on open so a file built with another page size
    is rejected instead of silently misread
  - npages (4B): the number of pages ever allocated, including freed ones
  - freeHead (4B): head of the free page list, page.InvalidPageID when empty
  - nfree (4B): the number of pages in the free page list

Deleted pages are linked into a free list rooted at freeHead: the page is
marked with page.FlagFree and its payload head stores the id of the next free
page. allocatePage pops this list before extending the file, so page ids get
reused. This is how burrow tracks free space; postgres solves the same problem
with the fsm fork instead.
*/
package disk

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/burrowdb/burrow/common"
	"github.com/burrowdb/burrow/storage/page"
)

const (
	// fileMagic marks a burrow data file ("brrw")
	fileMagic uint32 = 0x77727262
	// fileVersion is bumped when the layout changes
	fileVersion uint16 = 1
)

// byte offsets of the header block fields
const (
	magicOffset    = 0
	versionOffset  = 4
	pageSizeOffset = 8
	npagesOffset   = 12
	freeHeadOffset = 16
	nfreeOffset    = 20

	headerBlockSize = page.PageSize
)

// file is one open data file.
// the header fields are cached here and written back whenever they change.
type file struct {
	// id is allocated by the disk manager when the file is opened
	id common.FileID
	// name is the file name relative to the manager's directory
	name string
	st   storage

	// mu protects the header fields and orders page I/O against
	// allocate/delete which move pages between states
	mu sync.Mutex
	// the number of pages ever allocated, including freed ones
	npages uint32
	// head of the free page list
	freeHead page.PageID
	// the number of pages in the free page list
	nfree uint32

	// open count. the manager increments it when an already-open file is
	// opened again and closes the storage only when it drops to zero.
	refs int
}

// FileStat is a snapshot of the per-file counters
type FileStat struct {
	// NPages is the number of pages ever allocated, including freed ones
	NPages uint32
	// NFree is the number of pages in the free page list
	NFree uint32
}

// pageOffset returns the page's byte offset within the file.
// the first block is the file header, so every page is shifted by one block.
func pageOffset(pageID page.PageID) int64 {
	return (int64(pageID) + 1) * page.PageSize
}

// initHeader writes a fresh header block. called when the file is created.
func (f *file) initHeader() error {
	f.npages = 0
	f.freeHead = page.InvalidPageID
	f.nfree = 0
	if err := f.writeHeader(); err != nil {
		return errors.Wrap(err, "f.writeHeader failed")
	}
	if err := f.st.Sync(); err != nil {
		return errors.Wrap(err, "st.Sync failed")
	}
	return nil
}

// loadHeader reads and verifies the header block. called when the file is opened.
func (f *file) loadHeader() error {
	var block [headerBlockSize]byte
	if _, err := f.st.ReadAt(block[:], 0); err != nil {
		return errors.Wrap(err, "st.ReadAt failed")
	}
	if magic := binary.LittleEndian.Uint32(block[magicOffset:]); magic != fileMagic {
		return errors.Errorf("not a burrow data file: %s", f.name)
	}
	if version := binary.LittleEndian.Uint16(block[versionOffset:]); version != fileVersion {
		return errors.Errorf("unsupported data file version %d: %s", version, f.name)
	}
	if size := binary.LittleEndian.Uint32(block[pageSizeOffset:]); size != page.PageSize {
		return errors.Errorf("data file has page size %d, expected %d: %s", size, page.PageSize, f.name)
	}
	f.npages = binary.LittleEndian.Uint32(block[npagesOffset:])
	f.freeHead = page.PageID(binary.LittleEndian.Uint32(block[freeHeadOffset:]))
	f.nfree = binary.LittleEndian.Uint32(block[nfreeOffset:])
	return nil
}

// writeHeader writes the cached header fields into the header block
func (f *file) writeHeader() error {
	var block [headerBlockSize]byte
	binary.LittleEndian.PutUint32(block[magicOffset:], fileMagic)
	binary.LittleEndian.PutUint16(block[versionOffset:], fileVersion)
	binary.LittleEndian.PutUint32(block[pageSizeOffset:], page.PageSize)
	binary.LittleEndian.PutUint32(block[npagesOffset:], f.npages)
	binary.LittleEndian.PutUint32(block[freeHeadOffset:], uint32(f.freeHead))
	binary.LittleEndian.PutUint32(block[nfreeOffset:], f.nfree)
	if _, err := f.st.WriteAt(block[:], 0); err != nil {
		return errors.Wrap(err, "st.WriteAt failed")
	}
	return nil
}

// readPage reads the page into p.
// a page which has never been allocated, or which has been deleted, does not
// exist and cannot be read.
func (f *file) readPage(pageID page.PageID, p page.PagePtr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pageID >= page.PageID(f.npages) {
		return errors.Wrapf(ErrPageNotAllocated, "page %d of file %s", pageID, f.name)
	}
	if _, err := f.st.ReadAt(p[:], pageOffset(pageID)); err != nil {
		return errors.Wrap(err, "st.ReadAt failed")
	}
	if page.IsFree(p) {
		return errors.Wrapf(ErrPageNotAllocated, "page %d of file %s is free", pageID, f.name)
	}
	if got := page.Number(p); got != pageID {
		return errors.Wrapf(ErrWrongPage, "read page %d of file %s, got page %d", pageID, f.name, got)
	}
	if !page.VerifyChecksum(p) {
		return errors.Wrapf(ErrChecksumMismatch, "page %d of file %s", pageID, f.name)
	}
	return nil
}

// writePage persists the page at the offset of its own number.
// the payload checksum is stamped here, right before the write.
func (f *file) writePage(p page.PagePtr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pageID := page.Number(p)
	if pageID >= page.PageID(f.npages) {
		return errors.Wrapf(ErrPageNotAllocated, "page %d of file %s", pageID, f.name)
	}
	page.UpdateChecksum(p)
	if _, err := f.st.WriteAt(p[:], pageOffset(pageID)); err != nil {
		return errors.Wrap(err, "st.WriteAt failed")
	}
	return nil
}

// allocatePage assigns a fresh page id, initializes the page image in p and
// persists it. the free page list is popped before the file is extended.
func (f *file) allocatePage(p page.PagePtr) (page.PageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pageID page.PageID
	if f.freeHead != page.InvalidPageID {
		pageID = f.freeHead
		// the freed page stores the id of the next free page
		if _, err := f.st.ReadAt(p[:], pageOffset(pageID)); err != nil {
			return page.InvalidPageID, errors.Wrap(err, "st.ReadAt failed")
		}
		if !page.IsFree(p) {
			return page.InvalidPageID, errors.Errorf("free page list of file %s is broken: page %d is not free", f.name, pageID)
		}
		f.freeHead = page.NextFree(p)
		f.nfree--
	} else {
		if f.npages > uint32(page.MaxPageID) {
			return page.InvalidPageID, errors.Errorf("file %s is full", f.name)
		}
		pageID = page.PageID(f.npages)
		f.npages++
	}

	// fresh pages start zeroed, with only the number stamped
	*p = [page.PageSize]byte{}
	page.SetNumber(p, pageID)
	page.UpdateChecksum(p)
	if _, err := f.st.WriteAt(p[:], pageOffset(pageID)); err != nil {
		return page.InvalidPageID, errors.Wrap(err, "st.WriteAt failed")
	}
	if err := f.writeHeader(); err != nil {
		return page.InvalidPageID, errors.Wrap(err, "f.writeHeader failed")
	}
	return pageID, nil
}

// deletePage marks the page free and links it into the free page list.
// deleting a page which does not exist is an error, including double delete.
func (f *file) deletePage(pageID page.PageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pageID >= page.PageID(f.npages) {
		return errors.Wrapf(ErrPageNotAllocated, "page %d of file %s", pageID, f.name)
	}
	p := page.NewPagePtr()
	if _, err := f.st.ReadAt(p[:], pageOffset(pageID)); err != nil {
		return errors.Wrap(err, "st.ReadAt failed")
	}
	if page.IsFree(p) {
		return errors.Wrapf(ErrPageNotAllocated, "page %d of file %s is already free", pageID, f.name)
	}
	page.SetFlags(p, page.FlagFree)
	page.SetNextFree(p, f.freeHead)
	page.UpdateChecksum(p)
	if _, err := f.st.WriteAt(p[:], pageOffset(pageID)); err != nil {
		return errors.Wrap(err, "st.WriteAt failed")
	}
	f.freeHead = pageID
	f.nfree++
	if err := f.writeHeader(); err != nil {
		return errors.Wrap(err, "f.writeHeader failed")
	}
	return nil
}

// sync flushes the storage
func (f *file) sync() error {
	if err := f.st.Sync(); err != nil {
		return errors.Wrap(err, "st.Sync failed")
	}
	return nil
}

// stat returns a snapshot of the per-file counters
func (f *file) stat() FileStat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FileStat{NPages: f.npages, NFree: f.nfree}
}

// close syncs and closes the storage
func (f *file) close() error {
	if err := f.st.Sync(); err != nil {
		return errors.Wrap(err, "st.Sync failed")
	}
	if err := f.st.Close(); err != nil {
		return errors.Wrap(err, "st.Close failed")
	}
	return nil
}
