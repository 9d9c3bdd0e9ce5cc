// Package transfer holds the shared per-transfer state both pkg/sender
// and pkg/receiver operate on: the negotiated session parameters and the
// live bookkeeping (bitmap, retransmit table, ring buffer, IPD controller)
// that tracks one file moving across the UDP data channel.
package transfer

import (
	"net"
	"os"

	"github.com/rs/xid"

	"github.com/davidwed/TsunamiUDP/pkg/bitmap"
	"github.com/davidwed/TsunamiUDP/pkg/ipd"
	"github.com/davidwed/TsunamiUDP/pkg/retransmit"
	"github.com/davidwed/TsunamiUDP/pkg/ring"
)

// Parameters is the negotiated session configuration, grounded on the
// original ttp_parameter_t fields that survive per-transfer negotiation
// (spec.md §3's session parameters / §4.7.3.c).
type Parameters struct {
	BlockSize      uint32
	TargetRate     uint32 // bits/sec
	ErrorRateLimit uint32 // threshold, percent x1000 (0..100000)
	SlowerNum      uint16
	SlowerDen      uint16
	FasterNum      uint16
	FasterDen      uint16

	HeartbeatTimeoutMs int
	LossWindowMs       int
	HistoryPercent     int
	Lossless           bool
	Verbose            bool
	Transcript         bool
	IPv6               bool
}

func (p Parameters) ipdRatios() (slower, faster ipd.Ratio) {
	return ipd.Ratio{Num: p.SlowerNum, Den: p.SlowerDen}, ipd.Ratio{Num: p.FasterNum, Den: p.FasterDen}
}

// Transfer is the mutable state of one file moving in either direction.
// It is not safe for concurrent use outside of the accessors its owning
// component (sender or receiver) explicitly synchronizes.
type Transfer struct {
	ID xid.ID

	RemoteName string
	LocalName  string
	File       *os.File

	UDPConn net.Conn

	FileSize   uint64
	BlockSize  uint32
	BlockCount uint64
	Epoch      uint64

	NextBlock  uint64 // sender: last block sent in sequence; receiver: next block expected in order
	BlocksLeft uint64 // receiver's outstanding count

	Bitmap      *bitmap.Bitmap
	Retransmits *retransmit.Table
	Ring        *ring.Ring
	IPD         *ipd.Controller

	RestartPending bool
	RestartLastIdx uint64

	Params Parameters
}

// New allocates a Transfer for a negotiated file of the given size and
// block layout, with a ring buffer sized per spec.md §4.5.
func New(remoteName, localName string, params Parameters, fileSize uint64, blockCount uint64) *Transfer {
	slower, faster := params.ipdRatios()
	return &Transfer{
		ID:          xid.New(),
		RemoteName:  remoteName,
		LocalName:   localName,
		FileSize:    fileSize,
		BlockSize:   params.BlockSize,
		BlockCount:  blockCount,
		BlocksLeft:  blockCount,
		Bitmap:      bitmap.New(blockCount),
		Retransmits: retransmit.New(),
		Ring:        ring.New(ring.DefaultCapacity, int(params.BlockSize)),
		IPD:         ipd.New(params.TargetRate, params.BlockSize, params.ErrorRateLimit, slower, faster, nil),
		Params:      params,
	}
}

// Done reports whether every block of the file has been accounted for.
func (t *Transfer) Done() bool {
	return t.BlocksLeft == 0
}

// Close releases the transfer's file handle and UDP socket, if open.
// Safe to call multiple times.
func (t *Transfer) Close() error {
	var fileErr, connErr error
	if t.File != nil {
		fileErr = t.File.Close()
		t.File = nil
	}
	if t.UDPConn != nil {
		connErr = t.UDPConn.Close()
		t.UDPConn = nil
	}
	if t.Ring != nil {
		t.Ring.Close()
	}
	if fileErr != nil {
		return fileErr
	}
	return connErr
}
