/*
Page header layout.

Every page carries a 16-byte header at the start of its content:

  - +--------------+---------+----------+------------+
  - | number (4B)  | flags   | reserved | checksum   |
  - |              | (2B)    | (2B)     | (8B)       |
  - +--------------+---------+----------+------------+
  - | payload (PageSize - 16 bytes)                  |
  - +------------------------------------------------+

The number is the page's own id within its file. The disk manager verifies it
on every read so a page read from the wrong offset is detected.

The checksum is the first 8 bytes of blake3 over the payload. It is stamped by
the disk manager right before the page is written out and verified on read.
Postgres has the same kind of optional page checksum (pd_checksum), burrow
just always keeps it on.

The reserved bytes and the unused flag bits are kept for later use.
*/
package page

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// byte offsets of the page header fields
const (
	numberOffset   = 0
	flagsOffset    = 4
	checksumOffset = 8

	// HeaderSize is the byte size of the page header
	HeaderSize = 16
	// PayloadSize is the byte size of the space usable by callers
	PayloadSize = PageSize - HeaderSize
)

// page flags
const (
	// FlagFree marks a page which has been deleted and linked into the
	// file's free page list. Free pages cannot be read.
	FlagFree uint16 = 1 << 0
)

// Number returns the page's own id stored in the header
func Number(p PagePtr) PageID {
	return PageID(binary.LittleEndian.Uint32(p[numberOffset : numberOffset+4]))
}

// SetNumber stores the page's own id into the header
func SetNumber(p PagePtr, pageID PageID) {
	binary.LittleEndian.PutUint32(p[numberOffset:numberOffset+4], uint32(pageID))
}

// Flags returns the page flags
func Flags(p PagePtr) uint16 {
	return binary.LittleEndian.Uint16(p[flagsOffset : flagsOffset+2])
}

// SetFlags stores the page flags
func SetFlags(p PagePtr, flags uint16) {
	binary.LittleEndian.PutUint16(p[flagsOffset:flagsOffset+2], flags)
}

// IsFree checks whether the page has been deleted and linked into the free page list
func IsFree(p PagePtr) bool {
	return Flags(p)&FlagFree != 0
}

// Checksum returns the stored payload checksum
func Checksum(p PagePtr) uint64 {
	return binary.LittleEndian.Uint64(p[checksumOffset : checksumOffset+8])
}

// SetChecksum stores the payload checksum
func SetChecksum(p PagePtr, sum uint64) {
	binary.LittleEndian.PutUint64(p[checksumOffset:checksumOffset+8], sum)
}

// CalculateChecksum calculates the checksum of the page payload.
// the header itself is not covered: the number is verified separately on read
// and the checksum field obviously cannot cover itself.
func CalculateChecksum(p PagePtr) uint64 {
	sum := blake3.Sum256(p[HeaderSize:])
	return binary.LittleEndian.Uint64(sum[:8])
}

// UpdateChecksum recalculates the payload checksum and stores it into the header
func UpdateChecksum(p PagePtr) {
	SetChecksum(p, CalculateChecksum(p))
}

// VerifyChecksum checks the stored checksum against the payload
func VerifyChecksum(p PagePtr) bool {
	return Checksum(p) == CalculateChecksum(p)
}

// Payload returns the space of the page usable by callers
func Payload(p PagePtr) []byte {
	return p[HeaderSize:]
}

// NextFree returns the id of the next page in the file's free page list.
// this is stored at the head of the payload and is meaningful only when
// FlagFree is set.
func NextFree(p PagePtr) PageID {
	return PageID(binary.LittleEndian.Uint32(p[HeaderSize : HeaderSize+4]))
}

// SetNextFree stores the id of the next page in the file's free page list
func SetNextFree(p PagePtr, pageID PageID) {
	binary.LittleEndian.PutUint32(p[HeaderSize:HeaderSize+4], uint32(pageID))
}
