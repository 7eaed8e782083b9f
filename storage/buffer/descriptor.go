/*
Buffer descriptor stores metadata of each buffer.

The descriptor has three fields the cache replacement policy cares about:

1. pin count
- pin count is the number of callers currently using the buffer.
- a pinned buffer is never evicted, so the page pointer the caller holds
  stays valid while the pin is held.
- the flow is: pin the buffer (ReadBuffer/AllocatePage) -> use the page
  (GetPage) -> unpin (ReleaseBuffer).
- IMPORTANT: the caller is responsible for calling ReleaseBuffer() after
  completion of using the buffer. a forgotten release keeps the buffer
  pinned forever and eventually the pool runs out of victims.

2. referenced bit
- this is the second chance bit of clock sweep: it is turned on when the
  page is found in the pool, and clock sweep turns it off instead of
  evicting the buffer. so a buffer is evicted only when it was not
  referenced for one whole revolution of the clock hand.
- postgres keeps a usage count up to 5 here. one bit is the plain form of
  the algorithm.
  https://github.com/postgres/postgres/blob/master/src/backend/storage/buffer/README#L155-L246

3. dirty bit
- the page was updated in memory and the update has not reached disk yet.
- a dirty page must be written back before its buffer is reused. the bit is
  sticky: once set through ReleaseBuffer(markDirty=true), it stays set until
  the page is actually written back by eviction, FlushFile(), Close() or the
  background writer.

every field is protected by the manager's mutex, so plain fields are enough
here. postgres packs the equivalent fields into one atomic state word because
it has no such single lock.
*/
package buffer

// descriptor stores metadata of one buffer
type descriptor struct {
	// tag identifies the page stored in the buffer.
	// meaningful only when valid is true.
	tag Tag
	// valid indicates whether the buffer holds a page
	valid bool
	// dirty indicates whether the page has updates not written to disk yet
	dirty bool
	// referenced is the second chance bit inspected by clock sweep
	referenced bool
	// pinCount is the number of callers currently using the buffer
	pinCount uint32
}

// newDescriptors initializes the descriptors of the pool.
// the zero value is an invalid (empty) descriptor.
func newDescriptors(n int) []descriptor {
	return make([]descriptor, n)
}

// set installs the tag right after a page is placed into the buffer.
// the new entry starts unreferenced and pinned once by the caller.
func (d *descriptor) set(tg Tag) {
	d.tag = tg
	d.valid = true
	d.dirty = false
	d.referenced = false
	d.pinCount = 1
}

// clear resets the descriptor to its initial state
func (d *descriptor) clear() {
	*d = descriptor{}
}
