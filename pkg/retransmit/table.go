// Package retransmit implements the receiver's outstanding-block
// request table and its periodic flush/prune cycle (spec.md §3, §4.4).
package retransmit

import "sort"

// MaxBuffer is the table size above which the receiver gives up on
// itemized retransmission requests and instead asks the sender to
// restart from the earliest outstanding block (spec.md §4.4).
const MaxBuffer = 2048

const initialCapacity = 4096

// Table is a sorted, deduplicated set of block numbers awaiting
// retransmission. It is owned by a single goroutine (the receive loop);
// it is not safe for concurrent use.
type Table struct {
	blocks []uint64
}

// New returns an empty table pre-sized for the common case.
func New() *Table {
	return &Table{blocks: make([]uint64, 0, initialCapacity)}
}

// Len reports the number of outstanding entries.
func (t *Table) Len() int {
	return len(t.blocks)
}

// Overflowed reports whether the table has grown past MaxBuffer.
func (t *Table) Overflowed() bool {
	return len(t.blocks) > MaxBuffer
}

// First returns the smallest outstanding block number. Only valid when
// Len() > 0.
func (t *Table) First() uint64 {
	return t.blocks[0]
}

// Last returns the largest outstanding block number. Only valid when
// Len() > 0.
func (t *Table) Last() uint64 {
	return t.blocks[len(t.blocks)-1]
}

// Insert adds block to the table, preserving ascending order. Duplicate
// inserts are no-ops (property 2). The backing slice grows by doubling,
// mirroring the capacity-doubling growth internal/fifo-style packages in
// the teacher use for their own buffers.
func (t *Table) Insert(block uint64) {
	i := sort.Search(len(t.blocks), func(i int) bool { return t.blocks[i] >= block })
	if i < len(t.blocks) && t.blocks[i] == block {
		return // duplicate, no-op
	}
	if len(t.blocks) == cap(t.blocks) {
		grown := make([]uint64, len(t.blocks), 2*cap(t.blocks)+1)
		copy(grown, t.blocks)
		t.blocks = grown
	}
	t.blocks = append(t.blocks, 0)
	copy(t.blocks[i+1:], t.blocks[i:len(t.blocks)-1])
	t.blocks[i] = block
}

// InsertRange inserts every block in [from, to) -- used when the
// receiver detects a gap (spec.md §4.9.6).
func (t *Table) InsertRange(from, to uint64) {
	for b := from; b < to; b++ {
		t.Insert(b)
	}
}

// Clear empties the table, e.g. after issuing a Restart.
func (t *Table) Clear() {
	t.blocks = t.blocks[:0]
}

// IsSetChecker reports whether a block has already been received; it is
// satisfied by *bitmap.Bitmap without this package importing it, keeping
// the dependency direction one-way.
type IsSetChecker interface {
	IsSet(block uint64) bool
}

// Prune walks the table dropping any entry the bitmap now reports as
// received, compacting the survivors to the front (spec.md §4.4 step 1-2).
// It returns the surviving entries in ascending order; the returned slice
// aliases the table's backing array and is only valid until the next
// mutating call.
func (t *Table) Prune(isSet IsSetChecker) []uint64 {
	write := 0
	for _, b := range t.blocks {
		if isSet.IsSet(b) {
			continue
		}
		t.blocks[write] = b
		write++
	}
	t.blocks = t.blocks[:write]
	return t.blocks
}
