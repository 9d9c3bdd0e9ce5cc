package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkIdempotent(t *testing.T) {
	b := New(26)
	b.Mark(7)
	assert.True(t, b.IsSet(7))
	assert.Equal(t, uint64(1), b.Popcount())
	b.Mark(7)
	assert.Equal(t, uint64(1), b.Popcount())
}

func TestBlocksLeftConsistency(t *testing.T) {
	const blockCount = 26
	b := New(blockCount)
	for _, blk := range []uint64{1, 2, 3, 7, 12, 13, 19, 26} {
		b.Mark(blk)
	}
	blocksLeft := blockCount - b.Popcount()
	assert.Equal(t, uint64(blockCount-8), blocksLeft)
}

func TestIsSetOutOfRange(t *testing.T) {
	b := New(10)
	assert.False(t, b.IsSet(0))
	assert.False(t, b.IsSet(11))
}

func TestDumpSizeMatchesSpecExactly(t *testing.T) {
	// 16 blocks -> ceil(16/8) == 2, but spec §9.3 wants 16/8+1 == 3.
	b := New(16)
	assert.EqualValues(t, 3, b.DumpSize())
	assert.Len(t, b.Dump(), 3)
}
