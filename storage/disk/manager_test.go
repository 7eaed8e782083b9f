package disk

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/burrowdb/burrow/common"
	"github.com/burrowdb/burrow/storage/page"
)

func TestCreate(t *testing.T) {
	t.Run("when the file does not exist", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)
		assert.NotEqual(t, common.InvalidFileID, fileID)

		stat, err := dm.Stat(fileID)
		assert.Nil(t, err)
		assert.Equal(t, uint32(0), stat.NPages)
		assert.Equal(t, uint32(0), stat.NFree)
	})
	t.Run("when the file already exists", func(t *testing.T) {
		dm := TestingNewMemManager()
		_, err := dm.Create("table1")
		assert.Nil(t, err)
		fileID, err := dm.Open("table1")
		assert.Nil(t, err)
		err = dm.CloseFile(fileID)
		assert.Nil(t, err)
		err = dm.CloseFile(fileID)
		assert.Nil(t, err)

		// the file is fully closed now, but creating it again must still fail
		_, err = dm.Create("table1")
		assert.NotNil(t, err)
	})
}

func TestOpen(t *testing.T) {
	t.Run("when the file is already open", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID1, err := dm.Create("table1")
		assert.Nil(t, err)
		fileID2, err := dm.Open("table1")
		assert.Nil(t, err)
		// the same file must not get two ids
		assert.Equal(t, fileID1, fileID2)
	})
	t.Run("when the file does not exist", func(t *testing.T) {
		dm := TestingNewMemManager()
		_, err := dm.Open("missing")
		assert.NotNil(t, err)
	})
	t.Run("when the file was closed and is reopened", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)

		p := page.NewPagePtr()
		pageID, err := dm.AllocatePage(fileID, p)
		assert.Nil(t, err)
		copy(page.Payload(p), []byte("persisted"))
		err = dm.WritePage(fileID, p)
		assert.Nil(t, err)

		err = dm.CloseFile(fileID)
		assert.Nil(t, err)
		// the old id must be retired
		err = dm.ReadPage(fileID, pageID, p)
		assert.True(t, errors.Is(err, ErrFileNotOpen))

		reopened, err := dm.Open("table1")
		assert.Nil(t, err)
		got := page.NewPagePtr()
		err = dm.ReadPage(reopened, pageID, got)
		assert.Nil(t, err)
		assert.True(t, bytes.HasPrefix(page.Payload(got), []byte("persisted")))
	})
}

func TestRemove(t *testing.T) {
	t.Run("when the file is open", func(t *testing.T) {
		dm := TestingNewMemManager()
		_, err := dm.Create("table1")
		assert.Nil(t, err)
		err = dm.Remove("table1")
		assert.NotNil(t, err)
	})
	t.Run("when the file is closed", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)
		err = dm.CloseFile(fileID)
		assert.Nil(t, err)
		err = dm.Remove("table1")
		assert.Nil(t, err)
		_, err = dm.Open("table1")
		assert.NotNil(t, err)
	})
}

func TestAllocatePage(t *testing.T) {
	t.Run("when the free page list is empty", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)

		p := page.NewPagePtr()
		for i := 0; i < 3; i++ {
			pageID, err := dm.AllocatePage(fileID, p)
			assert.Nil(t, err)
			// fresh pages are allocated sequentially from 0
			assert.Equal(t, page.PageID(i), pageID)
			assert.Equal(t, page.PageID(i), page.Number(p))
		}
		stat, err := dm.Stat(fileID)
		assert.Nil(t, err)
		assert.Equal(t, uint32(3), stat.NPages)
	})
	t.Run("when pages have been deleted", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)

		p := page.NewPagePtr()
		for i := 0; i < 3; i++ {
			_, err := dm.AllocatePage(fileID, p)
			assert.Nil(t, err)
		}
		err = dm.DeletePage(fileID, page.PageID(0))
		assert.Nil(t, err)
		err = dm.DeletePage(fileID, page.PageID(2))
		assert.Nil(t, err)

		stat, err := dm.Stat(fileID)
		assert.Nil(t, err)
		assert.Equal(t, uint32(2), stat.NFree)

		// the free page list is popped most recently deleted first
		pageID, err := dm.AllocatePage(fileID, p)
		assert.Nil(t, err)
		assert.Equal(t, page.PageID(2), pageID)
		pageID, err = dm.AllocatePage(fileID, p)
		assert.Nil(t, err)
		assert.Equal(t, page.PageID(0), pageID)
		// the list is empty again, so the file is extended
		pageID, err = dm.AllocatePage(fileID, p)
		assert.Nil(t, err)
		assert.Equal(t, page.PageID(3), pageID)
	})
}

func TestReadPage(t *testing.T) {
	t.Run("when the page was written before", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)

		p, err := page.TestingNewRandomPage()
		assert.Nil(t, err)
		pageID, err := dm.AllocatePage(fileID, page.NewPagePtr())
		assert.Nil(t, err)
		page.SetNumber(p, pageID)
		err = dm.WritePage(fileID, p)
		assert.Nil(t, err)

		got := page.NewPagePtr()
		err = dm.ReadPage(fileID, pageID, got)
		assert.Nil(t, err)
		assert.True(t, bytes.Equal(got[:], p[:]))
	})
	t.Run("when the page has never been allocated", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)
		err = dm.ReadPage(fileID, page.PageID(0), page.NewPagePtr())
		assert.True(t, errors.Is(err, ErrPageNotAllocated))
	})
	t.Run("when the page has been deleted", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)
		pageID, err := dm.AllocatePage(fileID, page.NewPagePtr())
		assert.Nil(t, err)
		err = dm.DeletePage(fileID, pageID)
		assert.Nil(t, err)
		err = dm.ReadPage(fileID, pageID, page.NewPagePtr())
		assert.True(t, errors.Is(err, ErrPageNotAllocated))
	})
	t.Run("when the payload is damaged on disk", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)
		pageID, err := dm.AllocatePage(fileID, page.NewPagePtr())
		assert.Nil(t, err)

		// flip one payload byte directly in the backing storage
		f, err := dm.lookup(fileID)
		assert.Nil(t, err)
		ms := f.st.(*memStorage)
		ms.buf[pageOffset(pageID)+page.HeaderSize+1] ^= 0xff

		err = dm.ReadPage(fileID, pageID, page.NewPagePtr())
		assert.True(t, errors.Is(err, ErrChecksumMismatch))
	})
	t.Run("when the stored page number is damaged on disk", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)
		pageID, err := dm.AllocatePage(fileID, page.NewPagePtr())
		assert.Nil(t, err)

		f, err := dm.lookup(fileID)
		assert.Nil(t, err)
		ms := f.st.(*memStorage)
		// the number is not covered by the checksum, so this must be
		// caught by the number verification instead
		ms.buf[pageOffset(pageID)] = 9

		err = dm.ReadPage(fileID, pageID, page.NewPagePtr())
		assert.True(t, errors.Is(err, ErrWrongPage))
	})
}

func TestWritePage(t *testing.T) {
	t.Run("when the page is allocated", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)
		pageID, err := dm.AllocatePage(fileID, page.NewPagePtr())
		assert.Nil(t, err)

		p, err := page.TestingNewRandomPage()
		assert.Nil(t, err)
		page.SetNumber(p, pageID)
		err = dm.WritePage(fileID, p)
		assert.Nil(t, err)
		// the checksum is stamped by the write
		assert.True(t, page.VerifyChecksum(p))
	})
	t.Run("when the page is not allocated", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)
		p := page.NewPagePtr()
		page.SetNumber(p, page.PageID(5))
		err = dm.WritePage(fileID, p)
		assert.True(t, errors.Is(err, ErrPageNotAllocated))
	})
}

func TestDeletePage(t *testing.T) {
	t.Run("when the page is deleted twice", func(t *testing.T) {
		dm := TestingNewMemManager()
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)
		pageID, err := dm.AllocatePage(fileID, page.NewPagePtr())
		assert.Nil(t, err)
		err = dm.DeletePage(fileID, pageID)
		assert.Nil(t, err)
		err = dm.DeletePage(fileID, pageID)
		assert.True(t, errors.Is(err, ErrPageNotAllocated))
	})
}

func TestFileManager(t *testing.T) {
	t.Run("when the manager is recreated over the same directory", func(t *testing.T) {
		dir := t.TempDir()
		dm, err := NewManager(dir)
		assert.Nil(t, err)
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)

		p, err := page.TestingNewRandomPage()
		assert.Nil(t, err)
		pageID, err := dm.AllocatePage(fileID, page.NewPagePtr())
		assert.Nil(t, err)
		page.SetNumber(p, pageID)
		err = dm.WritePage(fileID, p)
		assert.Nil(t, err)
		err = dm.Close()
		assert.Nil(t, err)

		// a fresh manager over the same directory must see the same pages
		dm2, err := NewManager(dir)
		assert.Nil(t, err)
		fileID2, err := dm2.Open("table1")
		assert.Nil(t, err)
		got := page.NewPagePtr()
		err = dm2.ReadPage(fileID2, pageID, got)
		assert.Nil(t, err)
		assert.True(t, bytes.Equal(got[:], p[:]))
	})
	t.Run("when a page operation uses a retired id", func(t *testing.T) {
		dm, err := TestingNewFileManager(t)
		assert.Nil(t, err)
		fileID, err := dm.Create("table1")
		assert.Nil(t, err)
		err = dm.CloseFile(fileID)
		assert.Nil(t, err)
		_, err = dm.AllocatePage(fileID, page.NewPagePtr())
		assert.True(t, errors.Is(err, ErrFileNotOpen))
	})
}
