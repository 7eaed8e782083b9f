/*
Postgres adopts clock sweep as cache replacement policy on its shared buffers,
so does burrow. Clock sweep approximates LRU without any timestamp: a clock
hand revolves over the buffers and each buffer carries one referenced bit.
When the hand lands on a referenced buffer, the bit is turned off and the
hand moves on, so every referenced buffer survives one more revolution.

for more details, see
https://github.com/postgres/postgres/blob/master/src/backend/storage/buffer/README#L155-L246
*/
package buffer

import "github.com/pkg/errors"

// clockSweepTick moves the clock hand ahead by one buffer, wrapping around
// at the end of the pool, and returns the buffer the hand landed on.
// the caller must hold m.mu.
func (m *Manager) clockSweepTick() BufferID {
	m.nextVictimBuffer = (m.nextVictimBuffer + 1) % BufferID(len(m.descriptors))
	return m.nextVictimBuffer
}

/*
allocateWithClockSweep reclaims a buffer a new page can be placed into.
the caller must hold m.mu.

The hand moves first and the buffer it lands on is inspected:
  - an invalid buffer is free, so it is taken immediately
  - a referenced buffer loses its bit and the sweep moves on
  - a pinned buffer is skipped
  - otherwise the buffer is evicted and taken

The sweep fails with ErrBufferExceeded only when it stands on a pinned buffer
back at the position it started from, with nothing achieved over the whole
revolution behind it: no victim found and no referenced bit turned off. So a
pool where every buffer is referenced but unpinned succeeds on the next
revolution, while a fully pinned pool fails after exactly one.
*/
func (m *Manager) allocateWithClockSweep() (BufferID, error) {
	start := m.nextVictimBuffer
	progressed := false
	for {
		bufID := m.clockSweepTick()
		desc := &m.descriptors[bufID]
		if !desc.valid {
			return bufID, nil
		}
		if desc.referenced {
			desc.referenced = false
			progressed = true
			continue
		}
		if desc.pinCount > 0 {
			if bufID == start {
				if !progressed {
					return InvalidBufferID, ErrBufferExceeded
				}
				// a new revolution starts here
				progressed = false
			}
			continue
		}
		if err := m.evictBuffer(bufID); err != nil {
			return InvalidBufferID, errors.Wrap(err, "m.evictBuffer failed")
		}
		return bufID, nil
	}
}

// evictBuffer pushes the page out of the pool: the page is written back when
// dirty, then the mapping is removed and the descriptor cleared. the write
// comes first so a failed write back leaves the page mapped, valid and dirty,
// and a later sweep gets to retry it.
// the caller must hold m.mu, and the buffer must be valid and unpinned.
func (m *Manager) evictBuffer(bufID BufferID) error {
	desc := &m.descriptors[bufID]
	if desc.dirty {
		if err := m.flushBuffer(bufID); err != nil {
			return errors.Wrap(err, "m.flushBuffer failed")
		}
		desc.dirty = false
	}
	if err := m.table.Remove(desc.tag); err != nil {
		return errors.Wrap(err, "table.Remove failed")
	}
	desc.clear()
	m.stats.Evictions++
	return nil
}
