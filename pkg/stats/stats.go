// Package stats computes the rolling, IIR-smoothed throughput and
// error-rate figures that feed both the periodic status line and the
// REQUEST_ERROR_RATE feedback sent back to the sender (spec.md §4.10).
package stats

import "time"

// Snapshot is a point-in-time copy of the rolling statistics, the
// hand-off type between the tracker and both the wire heartbeat encoder
// (pkg/receiver's error-rate report) and the Prometheus collector
// (pkg/metrics).
type Snapshot struct {
	ElapsedTotal      time.Duration
	TotalBlocks       uint64
	BlocksThisTick    uint64
	RetransmitsThis   uint64
	UDPErrors         uint64
	TransmitRate      float64 // bits/sec, smoothed
	RetransmitBitRate float64 // bits/sec of retransmitted data, smoothed (spec.md §4.9's retx_rate)
	RetransmitRate    float64 // error-rate units, 0..100000, smoothed (spec.md §4.10's error_rate feedback)
}

// Tracker accumulates the counters needed to produce a Snapshot on each
// update tick, mirroring the original statistics_t fields.
type Tracker struct {
	startTime time.Time
	lastTick  time.Time

	historyPercent int // weight given to the previous smoothed value, 0..100

	totalBlocks     uint64
	blocksAtLastTick uint64
}

// New creates a tracker that starts timing from now, weighting successive
// updates by historyPercent (higher means smoother, slower-reacting
// figures).
func New(now time.Time, historyPercent int) *Tracker {
	return &Tracker{
		startTime:      now,
		lastTick:       now,
		historyPercent: historyPercent,
	}
}

// Update folds in the blocks transferred and retransmitted since the
// last tick and returns the refreshed snapshot. blockSize is in bytes;
// ringCount/ringCapacity describe the disk-side queue's current fill.
func (t *Tracker) Update(now time.Time, prev Snapshot, totalBlocksSoFar uint64, thisRetransmits uint64, blockSize uint32, ringCount, ringCapacity int, udpErrors uint64) Snapshot {
	delta := now.Sub(t.lastTick)
	if delta <= 0 {
		delta = time.Microsecond
	}
	deltaUsec := float64(delta.Microseconds())

	blocksThisTick := totalBlocksSoFar - t.blocksAtLastTick
	dataLast := float64(blockSize) * float64(blocksThisTick)
	dataLast -= float64(blockSize) * float64(thisRetransmits)
	if dataLast < 0 {
		dataLast = 0
	}

	history := float64(t.historyPercent)

	// bytes*8/usec is bits per microsecond; scale by 1e6 for bits/sec.
	transmitRate := 0.01 * (history*prev.TransmitRate + (100-history)*dataLast*8.0/deltaUsec*1e6)

	// retx_rate: same IIR shape as tx_rate, but over retransmitted bytes
	// only (spec.md §4.9: "Retransmit rate analogous"), feeding the
	// semi-lossy window-size formula rather than the error_rate signal.
	retxData := float64(blockSize) * float64(thisRetransmits)
	retransmitBitRate := 0.01 * (history*prev.RetransmitBitRate + (100-history)*retxData*8.0/deltaUsec*1e6)

	lossRatio := float64(thisRetransmits) / (1.0 + float64(thisRetransmits) + float64(blocksThisTick))
	var fillRatio float64
	if ringCapacity > 0 {
		fillRatio = float64(ringCount) / float64(ringCapacity)
	}
	retransmitRate := history*(0.01*prev.RetransmitRate) + (100-history)*(0.5*1000*lossRatio+0.5*1000*fillRatio)

	snap := Snapshot{
		ElapsedTotal:      now.Sub(t.startTime),
		TotalBlocks:       totalBlocksSoFar,
		BlocksThisTick:    blocksThisTick,
		RetransmitsThis:   thisRetransmits,
		UDPErrors:         udpErrors,
		TransmitRate:      transmitRate,
		RetransmitBitRate: retransmitBitRate,
		RetransmitRate:    retransmitRate,
	}

	t.lastTick = now
	t.blocksAtLastTick = totalBlocksSoFar
	t.totalBlocks = totalBlocksSoFar

	return snap
}
