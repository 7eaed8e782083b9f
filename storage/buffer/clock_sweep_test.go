package buffer

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/burrowdb/burrow/common"
	"github.com/burrowdb/burrow/storage/disk"
	"github.com/burrowdb/burrow/storage/page"
)

// failingDiskManager is the in-memory disk manager with every WritePage
// call failing, as if the disk went away
type failingDiskManager struct {
	*disk.Manager
}

func (f *failingDiskManager) WritePage(fileID common.FileID, p page.PagePtr) error {
	return errors.New("disk is gone")
}

// testingPlacePage installs a page into the pool the way the manager does,
// except the pin count is left at zero so the buffer is evictable
func testingPlacePage(t *testing.T, m *Manager, bufID BufferID, tg Tag) {
	t.Helper()
	err := m.table.Insert(tg, bufID)
	assert.Nil(t, err)
	m.descriptors[bufID].set(tg)
	m.descriptors[bufID].pinCount = 0
}

func TestClockSweepTick(t *testing.T) {
	m, _, err := TestingNewManagerWithBuffers(4)
	assert.Nil(t, err)

	// the hand starts on the last buffer, so the first tick lands on buffer 0
	assert.Equal(t, FirstBufferID, m.clockSweepTick())
	assert.Equal(t, FirstBufferID+1, m.clockSweepTick())

	// the hand wraps around at the end of the pool
	m.nextVictimBuffer = BufferID(3)
	assert.Equal(t, FirstBufferID, m.clockSweepTick())
}

func TestAllocateWithClockSweep(t *testing.T) {
	t.Run("when the pool has invalid buffers", func(t *testing.T) {
		m, _, err := TestingNewManagerWithBuffers(4)
		assert.Nil(t, err)

		bufID, err := m.allocateWithClockSweep()
		assert.Nil(t, err)
		assert.Equal(t, FirstBufferID, bufID)

		// mimic the manager: the reclaimed buffer is now in use
		testingPlacePage(t, m, bufID, newTag(common.FileID(1), page.PageID(0)))

		bufID, err = m.allocateWithClockSweep()
		assert.Nil(t, err)
		assert.Equal(t, FirstBufferID+1, bufID)
	})
	t.Run("when every buffer is referenced", func(t *testing.T) {
		m, _, err := TestingNewManagerWithBuffers(2)
		assert.Nil(t, err)
		for i := 0; i < 2; i++ {
			testingPlacePage(t, m, BufferID(i), newTag(common.FileID(1), page.PageID(i)))
			m.descriptors[i].referenced = true
		}

		// the first revolution turns every bit off, the second takes buffer 0
		bufID, err := m.allocateWithClockSweep()
		assert.Nil(t, err)
		assert.Equal(t, FirstBufferID, bufID)
		assert.False(t, m.descriptors[1].referenced)
	})
	t.Run("when one buffer is referenced and another is not", func(t *testing.T) {
		m, _, err := TestingNewManagerWithBuffers(2)
		assert.Nil(t, err)
		for i := 0; i < 2; i++ {
			testingPlacePage(t, m, BufferID(i), newTag(common.FileID(1), page.PageID(i)))
		}
		m.descriptors[0].referenced = true

		// the referenced buffer gets its second chance, the other one is taken
		bufID, err := m.allocateWithClockSweep()
		assert.Nil(t, err)
		assert.Equal(t, FirstBufferID+1, bufID)
		assert.True(t, m.descriptors[0].valid)
		assert.False(t, m.descriptors[0].referenced)
	})
	t.Run("when a buffer is pinned", func(t *testing.T) {
		m, _, err := TestingNewManagerWithBuffers(2)
		assert.Nil(t, err)
		for i := 0; i < 2; i++ {
			testingPlacePage(t, m, BufferID(i), newTag(common.FileID(1), page.PageID(i)))
		}
		m.descriptors[0].pinCount = 1

		// the pinned buffer is skipped
		bufID, err := m.allocateWithClockSweep()
		assert.Nil(t, err)
		assert.Equal(t, FirstBufferID+1, bufID)
		// the pinned buffer is untouched
		assert.True(t, m.descriptors[0].valid)
	})
	t.Run("when every buffer is pinned", func(t *testing.T) {
		m, _, err := TestingNewManagerWithBuffers(2)
		assert.Nil(t, err)
		for i := 0; i < 2; i++ {
			testingPlacePage(t, m, BufferID(i), newTag(common.FileID(1), page.PageID(i)))
			m.descriptors[i].pinCount = 1
		}

		bufID, err := m.allocateWithClockSweep()
		assert.True(t, errors.Is(err, ErrBufferExceeded))
		assert.Equal(t, InvalidBufferID, bufID)
	})
	t.Run("when every buffer is pinned and referenced", func(t *testing.T) {
		// the first revolution turns bits off, which counts as progress,
		// so the sweep gives up only after the second fruitless revolution
		m, _, err := TestingNewManagerWithBuffers(2)
		assert.Nil(t, err)
		for i := 0; i < 2; i++ {
			testingPlacePage(t, m, BufferID(i), newTag(common.FileID(1), page.PageID(i)))
			m.descriptors[i].pinCount = 1
			m.descriptors[i].referenced = true
		}

		bufID, err := m.allocateWithClockSweep()
		assert.True(t, errors.Is(err, ErrBufferExceeded))
		assert.Equal(t, InvalidBufferID, bufID)
	})
	t.Run("when the write back of the victim fails", func(t *testing.T) {
		dm := &failingDiskManager{disk.TestingNewMemManager()}
		m, err := NewManager(dm, Config{NumBuffers: 1})
		assert.Nil(t, err)

		tg := newTag(common.FileID(1), page.PageID(0))
		testingPlacePage(t, m, FirstBufferID, tg)
		m.descriptors[0].dirty = true

		_, err = m.allocateWithClockSweep()
		assert.NotNil(t, err)

		// the failed write back must leave the pool untouched: the page
		// is still mapped, valid and dirty, so the update is not lost and
		// a later sweep retries the write
		bufID, err := m.table.Lookup(tg)
		assert.Nil(t, err)
		assert.Equal(t, FirstBufferID, bufID)
		assert.True(t, m.descriptors[0].valid)
		assert.True(t, m.descriptors[0].dirty)
		assert.Equal(t, uint64(0), m.Stats().Evictions)
	})
	t.Run("when the victim is dirty", func(t *testing.T) {
		m, dm, err := TestingNewManagerWithBuffers(1)
		assert.Nil(t, err)
		fileID, err := dm.Create("sweep")
		assert.Nil(t, err)

		// allocate the page in the file and place it into the only buffer
		scratch := page.NewPagePtr()
		pageID, err := dm.AllocatePage(fileID, scratch)
		assert.Nil(t, err)
		*m.buffers[0] = *scratch
		m.buffers[0][page.HeaderSize] = 0xAB
		testingPlacePage(t, m, FirstBufferID, newTag(fileID, pageID))
		m.descriptors[0].dirty = true

		bufID, err := m.allocateWithClockSweep()
		assert.Nil(t, err)
		assert.Equal(t, FirstBufferID, bufID)

		// the page must have been written back before the eviction
		flushed := page.NewPagePtr()
		err = dm.ReadPage(fileID, pageID, flushed)
		assert.Nil(t, err)
		assert.Equal(t, byte(0xAB), flushed[page.HeaderSize])

		// the buffer is free now
		assert.False(t, m.descriptors[0].valid)
		_, err = m.table.Lookup(newTag(fileID, pageID))
		assert.True(t, errors.Is(err, ErrNotFound))

		stats := m.Stats()
		assert.Equal(t, uint64(1), stats.Evictions)
		assert.Equal(t, uint64(1), stats.Writebacks)
	})
}
