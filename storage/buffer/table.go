/*
Buffer table is the mapping from buffer tag to buffer id.
When the caller asks for a page, the manager looks up this table first, and
only when the tag has no entry the page is fetched from disk.

In postgres the buffer table is a partitioned hash table (see buf_table.c).
burrow keeps the same shape in miniature: the default implementation is a
chained hash table whose nodes are preallocated, because a pool of n buffers
can never hold more than n mappings. A map-backed implementation also exists
and can be swapped in through Config.

Implementations do not lock anything themselves. The manager serializes all
table access under its own mutex.
*/
package buffer

import (
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// Table is the buffer table: the mapping from buffer tag to buffer id.
// implementations are not safe for concurrent use, the manager serializes
// all access.
type Table interface {
	// Lookup returns the buffer id the tag maps to.
	// it fails with ErrNotFound when the tag has no entry.
	Lookup(tg Tag) (BufferID, error)
	// Insert adds the mapping from the tag to the buffer id.
	// it fails with ErrAlreadyExists when the tag already has an entry.
	Insert(tg Tag, bufID BufferID) error
	// Remove removes the mapping of the tag.
	// it fails with ErrNotFound when the tag has no entry.
	Remove(tg Tag) error
}

// tableSize returns the bucket count for a pool of n buffers.
// the count has about 20% headroom over n and is kept odd so tags spread
// over buckets even when file ids share factors with the count.
func tableSize(n int) int {
	size := n + n/5 + 1
	if size%2 == 0 {
		size++
	}
	return size
}

// tableNode is one entry of the hash table. nodes chain by index into the
// preallocated node pool, not by pointer.
type tableNode struct {
	tag   Tag
	bufID BufferID
	next  int32
}

// hashTable is the default buffer table
type hashTable struct {
	// buckets holds the node index of the head of each chain, -1 when empty
	buckets []int32
	// nodes is the preallocated node pool
	nodes []tableNode
	// freeNode is the head of the free node list, -1 when exhausted
	freeNode int32
}

// NewHashTable initializes the default buffer table for a pool of numBufs buffers
func NewHashTable(numBufs int) Table {
	buckets := make([]int32, tableSize(numBufs))
	for i := range buckets {
		buckets[i] = -1
	}
	nodes := make([]tableNode, numBufs)
	for i := range nodes {
		nodes[i].next = int32(i) + 1
	}
	freeNode := int32(0)
	if numBufs == 0 {
		freeNode = -1
	} else {
		nodes[numBufs-1].next = -1
	}
	return &hashTable{
		buckets:  buckets,
		nodes:    nodes,
		freeNode: freeNode,
	}
}

// bucket returns the bucket index of the tag
func (ht *hashTable) bucket(tg Tag) int {
	b := tg.bytes()
	return int(xxhash.Sum64(b[:]) % uint64(len(ht.buckets)))
}

func (ht *hashTable) Lookup(tg Tag) (BufferID, error) {
	for i := ht.buckets[ht.bucket(tg)]; i != -1; i = ht.nodes[i].next {
		if ht.nodes[i].tag == tg {
			return ht.nodes[i].bufID, nil
		}
	}
	return InvalidBufferID, ErrNotFound
}

func (ht *hashTable) Insert(tg Tag, bufID BufferID) error {
	b := ht.bucket(tg)
	for i := ht.buckets[b]; i != -1; i = ht.nodes[i].next {
		if ht.nodes[i].tag == tg {
			return ErrAlreadyExists
		}
	}
	// cannot happen while the manager removes a mapping before reusing
	// its buffer, but a broken caller should get an error, not a panic
	if ht.freeNode == -1 {
		return errors.New("buffer table is full")
	}
	i := ht.freeNode
	ht.freeNode = ht.nodes[i].next
	ht.nodes[i] = tableNode{tag: tg, bufID: bufID, next: ht.buckets[b]}
	ht.buckets[b] = i
	return nil
}

func (ht *hashTable) Remove(tg Tag) error {
	b := ht.bucket(tg)
	prev := int32(-1)
	for i := ht.buckets[b]; i != -1; i = ht.nodes[i].next {
		if ht.nodes[i].tag == tg {
			if prev == -1 {
				ht.buckets[b] = ht.nodes[i].next
			} else {
				ht.nodes[prev].next = ht.nodes[i].next
			}
			ht.nodes[i] = tableNode{next: ht.freeNode}
			ht.freeNode = i
			return nil
		}
		prev = i
	}
	return ErrNotFound
}

// mapTable is a buffer table backed by a plain map
type mapTable struct {
	table map[Tag]BufferID
}

// NewMapTable initializes a map-backed buffer table
func NewMapTable(numBufs int) Table {
	return &mapTable{table: make(map[Tag]BufferID, numBufs)}
}

func (mt *mapTable) Lookup(tg Tag) (BufferID, error) {
	bufID, ok := mt.table[tg]
	if !ok {
		return InvalidBufferID, ErrNotFound
	}
	return bufID, nil
}

func (mt *mapTable) Insert(tg Tag, bufID BufferID) error {
	if _, ok := mt.table[tg]; ok {
		return ErrAlreadyExists
	}
	mt.table[tg] = bufID
	return nil
}

func (mt *mapTable) Remove(tg Tag) error {
	if _, ok := mt.table[tg]; !ok {
		return ErrNotFound
	}
	delete(mt.table, tg)
	return nil
}
