/*
Page is the unit of I/O in burrow.
The disk manager organizes each data file as a collection of fixed-size pages,
and the buffer pool caches whole pages in memory.

Every page starts with a small header (see /storage/page/header.go) which
stores the page's own number, flags and a checksum of the payload. The header
is maintained by the disk layer; the buffer pool treats the whole page as
opaque bytes.
*/
package page

import "math"

// PageSize is the byte size of page. 8KB is the default size in postgres.
// see block_size parameter in https://www.postgresql.org/docs/current/runtime-config-preset.html
const PageSize = 8192

// PageID is the unique identifier given to each page within a file,
// which is called blockNumber in postgres
// see https://github.com/postgres/postgres/blob/d63d957e330c611f7a8c0ed02e4407f40f975026/src/include/storage/block.h#L17-L31
type PageID uint32

const (
	// first page id in file
	FirstPageID PageID = 0
	// invalid page id. this is also used as the end mark of the free page list
	InvalidPageID PageID = math.MaxUint32
	// max page id
	MaxPageID PageID = math.MaxUint32 - 1
)

// PagePtr is pointer to page
// burrow defines page as pointer explicitly
// because page should not be passed by value in many cases (for concurrent access and space-efficiency)
type PagePtr *[PageSize]byte

// NewPagePtr returns 0-filled page pointer
func NewPagePtr() PagePtr {
	p := &[PageSize]byte{}
	return PagePtr(p)
}
