// Package bitmap implements the receiver's compact bit-per-block record
// of which blocks of a transfer have been accepted (spec.md §3, §4.3).
package bitmap

import "math/bits"

// Bitmap is a bit-per-block presence record, 1-indexed: bit i-1 of the
// backing array corresponds to block i. It is not safe for concurrent
// use without external synchronization; pkg/receiver reads and writes
// it only from its accept-loop goroutine.
type Bitmap struct {
	bits       []byte
	blockCount uint64
}

// New allocates a bitmap large enough for blockCount blocks (1..blockCount).
func New(blockCount uint64) *Bitmap {
	return &Bitmap{
		bits:       make([]byte, (blockCount+7)/8),
		blockCount: blockCount,
	}
}

// Mark records block as received. Idempotent: marking twice has no
// additional effect (property 3).
func (b *Bitmap) Mark(block uint64) {
	if block == 0 || block > b.blockCount {
		return
	}
	idx := block - 1
	b.bits[idx/8] |= 1 << (idx % 8)
}

// IsSet reports whether block has already been received.
func (b *Bitmap) IsSet(block uint64) bool {
	if block == 0 || block > b.blockCount {
		return false
	}
	idx := block - 1
	return b.bits[idx/8]&(1<<(idx%8)) != 0
}

// Popcount returns the total number of blocks marked received.
func (b *Bitmap) Popcount() uint64 {
	var n uint64
	for _, by := range b.bits {
		n += uint64(bits.OnesCount8(by))
	}
	return n
}

// BlockCount returns the capacity the bitmap was created with.
func (b *Bitmap) BlockCount() uint64 {
	return b.blockCount
}

// Raw exposes the backing byte slice, e.g. for the optional .blockmap
// dump described in spec.md §9.3. Callers must not retain or mutate it
// beyond read-only inspection.
func (b *Bitmap) Raw() []byte {
	return b.bits
}

// DumpSize returns the byte count used by the optional .blockmap dump
// format. spec.md §9.3 specifies this is block_count/8 + 1, not
// ceil(block_count/8) -- intentionally preserved for bit-compatibility
// with the original dump format even though it wastes a byte when
// block_count is a multiple of 8.
func (b *Bitmap) DumpSize() uint64 {
	return b.blockCount/8 + 1
}

// Dump returns a byte slice of exactly DumpSize bytes suitable for
// writing to a .blockmap file: the block count header format is left to
// the caller, this only returns the bitmap payload.
func (b *Bitmap) Dump() []byte {
	out := make([]byte, b.DumpSize())
	copy(out, b.bits)
	return out
}
