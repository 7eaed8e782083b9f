package buffer

import (
	"encoding/binary"

	"github.com/burrowdb/burrow/common"
	"github.com/burrowdb/burrow/storage/page"
)

// Tag identifies one page of one file. this is the key of the buffer table,
// and it has to be sufficient to locate the page on disk.
type Tag struct {
	// FileID is the id of the file the page belongs to
	FileID common.FileID
	// PageID is the id of the page within the file
	PageID page.PageID
}

// newTag initializes buffer tag
func newTag(fileID common.FileID, pageID page.PageID) Tag {
	return Tag{
		FileID: fileID,
		PageID: pageID,
	}
}

// bytes encodes the tag into fixed eight bytes for hashing
func (t Tag) bytes() [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(t.FileID))
	binary.LittleEndian.PutUint32(b[4:8], uint32(t.PageID))
	return b
}
