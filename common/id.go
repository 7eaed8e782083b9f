package common

// FileID is the identifier of an open file.
// The disk manager allocates the id when the file is opened or created, and
// the id stays stable while the file is open. Reopening an already-open path
// returns the existing id, so one disk page can never be cached under two ids.
// The buffer pool uses (FileID, PageID) as the identity of a cached page.
type FileID uint32

// InvalidFileID is never allocated to a file.
// The zero value is invalid on purpose: a cleared buffer descriptor holds the
// zero tag and must not collide with any real file.
const InvalidFileID FileID = 0
