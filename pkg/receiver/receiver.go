// Package receiver implements the UDP data-channel accept loop: datagram
// validation, duplicate/gap detection, retransmission-table maintenance,
// and the disk-writer goroutine draining the ring buffer (spec.md §4.3,
// §4.4, §4.9), grounded on the teacher's NodeProcessor Start/Stop/Wait
// goroutine lifecycle (one context-scoped goroutine per concurrent duty,
// joined with a sync.WaitGroup).
package receiver

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/davidwed/TsunamiUDP/pkg/stats"
	"github.com/davidwed/TsunamiUDP/pkg/transfer"
	"github.com/davidwed/TsunamiUDP/pkg/ttperr"
	"github.com/davidwed/TsunamiUDP/pkg/wire"
)

// UpdatePeriod is the interval at which outstanding retransmit requests
// are repeated and statistics are refreshed (spec.md §4.10).
const UpdatePeriod = 350 * time.Millisecond

// RepeatEveryIterations is the receive-loop iteration count spec.md
// §4.4 ties the periodic repeat to, alongside the UpdatePeriod elapsed
// check: both conditions must hold before a repeat fires.
const RepeatEveryIterations = 50

// Receiver drives one inbound transfer: accepting datagrams into
// xfer.Ring, maintaining xfer.Retransmits, and feeding a disk-writer
// goroutine that drains the ring into xfer.File.
type Receiver struct {
	xfer    *transfer.Transfer
	control wire.RetransmitSender
	log     *log.Entry
	tracker *stats.Tracker

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	complete bool
	lastSnap stats.Snapshot
}

// New creates a Receiver for an already-negotiated transfer. control is
// used to send retransmission-channel records back to the sender.
func New(xfer *transfer.Transfer, control wire.RetransmitSender, logger *log.Entry) *Receiver {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Receiver{
		xfer:    xfer,
		control: control,
		log:     logger.WithField("xfer", xfer.ID.String()),
		tracker: stats.New(time.Now(), xfer.Params.HistoryPercent),
	}
}

// Run starts the disk-writer goroutine, then drives the network accept
// loop -- including the periodic retransmit repeat and statistics
// refresh -- on the calling goroutine until the transfer completes, ctx
// is cancelled, or an unrecoverable error occurs. The repeat/stats cycle
// deliberately stays on the accept-loop goroutine rather than its own
// ticker: it reads and mutates xfer.Retransmits, xfer.NextBlock and
// xfer.RestartPending, the same fields the datagram-processing code
// below touches, and those are only safe single-threaded.
func (r *Receiver) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	defer cancel()

	if r.xfer.NextBlock == 0 {
		r.xfer.NextBlock = 1 // we start by expecting block #1
	}

	var diskErr error
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		diskErr = r.diskWriter()
	}()

	netErr := r.acceptLoop(ctx)

	if netErr == nil && r.isComplete() {
		// spec.md §7's cancellation path: the receiver, not the sender,
		// decides when a transfer is over and tells the other side.
		if err := r.control.SendRetransmission(wire.RetransmissionRecord{Type: wire.RequestStop}); err != nil {
			r.log.WithError(err).Warn("[RECV] failed to send stop request")
		}
	}

	cancel()
	r.xfer.Ring.Close()
	r.wg.Wait()

	if netErr != nil {
		return netErr
	}
	return diskErr
}

func (r *Receiver) setComplete() {
	r.mu.Lock()
	r.complete = true
	r.mu.Unlock()
}

func (r *Receiver) isComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// LastSnapshot returns the most recent statistics snapshot folded in by
// refreshStats, for a driver to push into pkg/metrics. Safe to call from
// any goroutine while Run is in progress.
func (r *Receiver) LastSnapshot() stats.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSnap
}

// acceptLoop is the network thread: reads one datagram at a time and
// updates the transfer's bitmap, retransmit table, and ring buffer.
func (r *Receiver) acceptLoop(ctx context.Context) error {
	buf := make([]byte, wire.DatagramHeaderSize+int(r.xfer.BlockSize))
	iterations := 0
	lastRepeat := time.Now()

	for !r.isComplete() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := r.xfer.UDPConn.Read(buf)
		if err != nil {
			// recvfrom errors still provoke an immediate repeat so a
			// transient wedge doesn't go unnoticed (spec.md §4.9 step 1).
			if rerr := r.repeatRetransmit(); rerr != nil {
				return rerr
			}
			continue
		}
		if n < wire.DatagramHeaderSize {
			continue
		}

		header, err := wire.DecodeDatagramHeader(buf)
		if err != nil {
			continue
		}
		block, blockType := header.Block, header.Type

		if r.xfer.RestartPending && block > r.xfer.RestartLastIdx {
			continue // discard, stale relative to the restart point
		}

		alreadySet := r.xfer.Bitmap.IsSet(block)
		if alreadySet && blockType != wire.BlockTerminate && !r.xfer.RestartPending {
			continue // duplicate, already accepted (property 3)
		}

		slot, ok := r.xfer.Ring.Reserve()
		if !ok {
			return ttperr.ErrRingClosed
		}
		slot.Block = block
		slot.Type = uint16(blockType)
		copy(slot.Data, buf[wire.DatagramHeaderSize:n])
		r.xfer.Ring.Confirm()
		r.xfer.Bitmap.Mark(block)
		// Bitmap and BlocksLeft are both owned exclusively by this
		// goroutine (the disk thread only ever writes to xfer.File and
		// drains xfer.Ring), so this decrement needs no lock: it fires
		// exactly once per distinct block, the instant it is newly set.
		if !alreadySet && block >= 1 && block <= r.xfer.BlockCount && r.xfer.BlocksLeft > 0 {
			r.xfer.BlocksLeft--
		}

		if block > r.xfer.NextBlock {
			if err := r.queueGapRetransmits(block); err != nil {
				return err
			}
		}

		if block >= r.xfer.BlockCount || blockType == wire.BlockTerminate {
			if r.xfer.BlocksLeft == 0 || !r.xfer.Params.Lossless {
				r.setComplete()
			} else if err := r.repeatRetransmit(); err != nil {
				return err
			}
		}

		if blockType == wire.BlockOriginal {
			r.xfer.NextBlock = block + 1
		}

		if r.xfer.RestartPending && r.xfer.NextBlock >= r.xfer.RestartLastIdx {
			r.xfer.RestartPending = false
		}

		iterations++
		if iterations >= RepeatEveryIterations && time.Since(lastRepeat) >= UpdatePeriod {
			iterations = 0
			lastRepeat = time.Now()
			if err := r.repeatRetransmit(); err != nil {
				return err
			}
			if err := r.refreshStats(); err != nil {
				return err
			}
		}
	}
	return nil
}

// refreshStats folds the latest window into the statistics tracker and
// reports the resulting error rate back to the sender as a heartbeat
// (spec.md §4.10). Runs on the accept-loop goroutine, same as
// repeatRetransmit, for the same single-writer reason.
func (r *Receiver) refreshStats() error {
	snap := r.tracker.Update(time.Now(), r.LastSnapshot(), r.xfer.BlockCount-r.xfer.BlocksLeft,
		uint64(r.xfer.Retransmits.Len()), r.xfer.BlockSize, r.xfer.Ring.Len(), r.xfer.Ring.Capacity(), 0)
	r.mu.Lock()
	r.lastSnap = snap
	r.mu.Unlock()
	if err := r.control.SendRetransmission(wire.RetransmissionRecord{
		Type:      wire.RequestErrorRate,
		ErrorRate: uint32(snap.RetransmitRate),
	}); err != nil {
		return ttperr.ErrNetworkIO
	}
	return nil
}

// queueGapRetransmits implements spec.md §4.9's lossless/semi-lossy/fully
// -lossy branches when a gap opens up ahead of next_block.
func (r *Receiver) queueGapRetransmits(block uint64) error {
	from := r.xfer.NextBlock

	if !r.xfer.Params.Lossless {
		if r.xfer.Params.LossWindowMs == 0 {
			// fully lossy: never request retransmits for gaps.
			if block > 0 {
				r.xfer.BlocksLeft -= min64(r.xfer.BlocksLeft, block-from)
			}
			r.xfer.NextBlock = block
			return nil
		}
		// semi-lossy: only request blocks within the trailing window.
		windowBlocks := r.windowBlockCount()
		missing := block - from
		earliest := block - min64(windowBlocks, missing)
		r.xfer.Retransmits.InsertRange(earliest, block)
		r.xfer.BlocksLeft -= min64(r.xfer.BlocksLeft, earliest-from)
		r.xfer.NextBlock = earliest
		return nil
	}

	// lossless: request every missing block in the gap.
	r.xfer.Retransmits.InsertRange(from, block)
	return nil
}

// windowBlockCount computes the semi-lossy trailing window in blocks
// from the live measured path throughput (spec.md §4.9):
//
//	window_blocks = 1024*1024 * (0.8*(tx_rate+retx_rate) * losswindow_ms*0.001) / (8*block_size)
//
// where tx_rate/retx_rate are the latest smoothed transmit/retransmit
// bit rates in Mb/s. Early in a transfer, before refreshStats has run
// once, both rates are zero and the window collapses to 0 blocks, so
// that first gap is skipped entirely with no retransmit requested.
func (r *Receiver) windowBlockCount() uint64 {
	if r.xfer.Params.LossWindowMs <= 0 {
		return 0
	}
	snap := r.LastSnapshot()
	txMbps := snap.TransmitRate / 1_000_000
	retxMbps := snap.RetransmitBitRate / 1_000_000

	windowBlocks := 1024.0 * 1024.0 * (0.8 * (txMbps + retxMbps) * float64(r.xfer.Params.LossWindowMs) * 0.001) /
		(8.0 * float64(r.xfer.BlockSize))
	if windowBlocks <= 0 {
		return 0
	}
	return uint64(windowBlocks)
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// repeatRetransmit prunes satisfied entries, then either asks for a full
// restart (table overflow) or re-requests each outstanding block
// individually (spec.md §4.4).
func (r *Receiver) repeatRetransmit() error {
	survivors := r.xfer.Retransmits.Prune(r.xfer.Bitmap)

	if r.xfer.Retransmits.Overflowed() {
		first := r.xfer.Retransmits.First()
		if err := r.control.SendRetransmission(wire.RetransmissionRecord{
			Type:  wire.RequestRestart,
			Block: first,
		}); err != nil {
			return ttperr.ErrNetworkIO
		}
		r.xfer.NextBlock = first
		r.xfer.RestartPending = true
		r.xfer.RestartLastIdx = r.xfer.Retransmits.Last()
		r.xfer.Retransmits.Clear()
		r.log.WithField("from", first).Warn("[RECV] retransmit table overflowed, requesting restart")
		return nil
	}

	for _, block := range survivors {
		if err := r.control.SendRetransmission(wire.RetransmissionRecord{
			Type:  wire.RequestRetransmit,
			Block: block,
		}); err != nil {
			return ttperr.ErrNetworkIO
		}
	}
	return nil
}

// diskWriter drains the ring buffer into the destination file until it
// runs dry after the accept loop has closed it (spec.md §4.5): Close
// only unblocks a Peek waiting on an *empty* ring, so every block
// already queued is still written before this returns.
func (r *Receiver) diskWriter() error {
	for {
		slot, ok := r.xfer.Ring.Peek()
		if !ok {
			return nil
		}
		block := slot.Block
		offset := int64(block-1) * int64(r.xfer.BlockSize)
		if _, err := r.xfer.File.WriteAt(slot.Data, offset); err != nil {
			r.xfer.Ring.Pop()
			r.log.WithError(err).WithField("block", block).Error("[RECV] disk write failed")
			return ttperr.ErrDiskWrite
		}
		r.xfer.Ring.Pop()
	}
}
