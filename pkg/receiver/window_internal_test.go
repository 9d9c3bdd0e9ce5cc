package receiver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidwed/TsunamiUDP/pkg/stats"
	"github.com/davidwed/TsunamiUDP/pkg/transfer"
)

// TestWindowBlockCountMatchesSemiLossyScenario reproduces the
// losswindow=100ms/tx_rate=100Mb/s/block_size=1KiB case: the receiver
// should insert only the most recent ~1024 blocks of a much larger gap
// into the retransmit table, permanently skipping the rest.
func TestWindowBlockCountMatchesSemiLossyScenario(t *testing.T) {
	control := &fakeSender{}
	params := transfer.Parameters{
		BlockSize:      1024,
		TargetRate:     100_000_000,
		ErrorRateLimit: 10000,
		SlowerNum:      11,
		SlowerDen:      10,
		FasterNum:      9,
		FasterDen:      10,
		LossWindowMs:   100,
		Lossless:       false,
	}
	xfer := transfer.New("x.bin", "x.bin", params, 20000*1024, 20000)
	r := New(xfer, control, nil)
	r.lastSnap = stats.Snapshot{TransmitRate: 100_000_000}

	assert.EqualValues(t, 1024, r.windowBlockCount())

	r.xfer.NextBlock = 1
	require.NoError(t, r.queueGapRetransmits(10001)) // a gap of 10000 blocks

	assert.EqualValues(t, 8977, r.xfer.NextBlock) // earliest = 10001 - 1024
	survivors := r.xfer.Retransmits.Prune(r.xfer.Bitmap)
	assert.Len(t, survivors, 1024)
	assert.EqualValues(t, 8977, survivors[0])
	assert.EqualValues(t, 10000, survivors[len(survivors)-1])
}

// TestWindowBlockCountZeroBeforeFirstStatsTick matches the very first
// gap of a transfer, before refreshStats has ever run: no rate sample
// yet means no window, so nothing is inserted and the whole gap is
// skipped (falls back to fully-lossy-like behavior for that one gap).
func TestWindowBlockCountZeroBeforeFirstStatsTick(t *testing.T) {
	control := &fakeSender{}
	params := transfer.Parameters{
		BlockSize:      1024,
		TargetRate:     100_000_000,
		ErrorRateLimit: 10000,
		SlowerNum:      11,
		SlowerDen:      10,
		FasterNum:      9,
		FasterDen:      10,
		LossWindowMs:   100,
		Lossless:       false,
	}
	xfer := transfer.New("x.bin", "x.bin", params, 20000*1024, 20000)
	r := New(xfer, control, nil)

	assert.EqualValues(t, 0, r.windowBlockCount())
}
