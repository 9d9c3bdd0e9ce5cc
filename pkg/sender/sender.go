// Package sender implements the UDP data-channel blast loop: pacing
// original block transmission by the negotiated IPD and servicing
// retransmission requests arriving on the TCP control channel
// (spec.md §4.1, §4.4, §4.6, §4.8), grounded on the teacher's
// downloadMain/upload client state machine shape (one explicit state
// enum, a single driving loop, errors surfaced instead of panicking).
//
// xfer.NextBlock and xfer.IPD are single-writer state, touched only by
// the blast loop: a separate goroutine does nothing but decode records
// off the control connection and hand them to that loop over a channel,
// matching spec.md §5's single-threaded, cooperatively scheduled sender.
package sender

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/davidwed/TsunamiUDP/pkg/stats"
	"github.com/davidwed/TsunamiUDP/pkg/transfer"
	"github.com/davidwed/TsunamiUDP/pkg/ttperr"
	"github.com/davidwed/TsunamiUDP/pkg/wire"
)

// controlPollInterval bounds how long the control-channel reader blocks
// between checks of ctx, so a heartbeat timeout or caller cancellation
// is noticed promptly instead of waiting on a read that may never come.
const controlPollInterval = 200 * time.Millisecond

// State is the sender's top-level transfer state.
type State uint8

const (
	StateIdle State = iota
	StateBlasting
	StateAborted
	StateDone
)

// Sender drives one outbound transfer: reading blocks from xfer.File and
// writing them to xfer.UDPConn at the pace xfer.IPD dictates, servicing
// retransmission/restart/error-rate requests as they arrive on the
// control connection. A second goroutine only decodes those records off
// the wire; applying them stays on the same goroutine that paces the
// blast.
type Sender struct {
	xfer    *transfer.Transfer
	control net.Conn
	log     *log.Entry

	mu       sync.Mutex
	state    State
	timedOut bool
}

// New creates a Sender for an already-negotiated transfer. control is
// the TCP connection the retransmission channel rides on.
func New(xfer *transfer.Transfer, control net.Conn, logger *log.Entry) *Sender {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Sender{xfer: xfer, control: control, log: logger.WithField("xfer", xfer.ID.String())}
}

// State reports the sender's current top-level state.
func (s *Sender) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sender) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run blasts the file to completion, services retransmission requests
// concurrently, and returns once the transfer finishes, is stopped by
// the receiver, or ctx is cancelled. A watchdog aborts the transfer if
// no control-channel message (the heartbeat, spec.md §4.8 step 4) is
// heard from the receiver within the negotiated timeout.
func (s *Sender) Run(ctx context.Context) error {
	s.setState(StateBlasting)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var watchdog *stats.Watchdog
	if s.xfer.Params.HeartbeatTimeoutMs > 0 {
		watchdog = stats.NewWatchdog(time.Duration(s.xfer.Params.HeartbeatTimeoutMs)*time.Millisecond, func() {
			s.mu.Lock()
			s.timedOut = true
			s.mu.Unlock()
			s.log.Warn("[SENDER] heartbeat timeout, aborting transfer")
			cancel()
		})
		watchdog.Kick()
		defer watchdog.Stop()
	}

	records := make(chan wire.RetransmissionRecord, 16)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		// readControl's own error is unused: it either means ctx is done
		// (blast will notice the same ctx and return) or a network error,
		// which blast discovers itself the moment it next tries to touch
		// the control channel's effects (a stalled heartbeat).
		_ = s.readControl(ctx, records)
	}()

	blastErr := s.blast(ctx, records, watchdog)
	cancel()
	<-readDone
	// control is a caller-owned connection that may be reused for the
	// next file in a multi-file session immediately after Run returns;
	// readRecord's polling deadlines must not outlive this call.
	_ = s.control.SetReadDeadline(time.Time{})

	s.mu.Lock()
	timedOut := s.timedOut
	s.mu.Unlock()
	if timedOut {
		s.setState(StateAborted)
		return ttperr.ErrHeartbeatTimeout
	}
	if blastErr != nil {
		s.setState(StateAborted)
		return blastErr
	}
	s.setState(StateDone)
	return nil
}

// blast is the sender's single driving loop: it owns xfer.NextBlock and
// xfer.IPD exclusively, interleaving paced original-block transmission
// with non-blocking servicing of whatever retransmission records have
// arrived on records. It keeps re-sending the terminate block (spec.md
// §4.8: `block = min(block+1, block_count)`, type Terminate) until the
// receiver says Stop, ctx is cancelled, or a write fails -- it never
// exits just because every block has gone out once.
func (s *Sender) blast(ctx context.Context, records <-chan wire.RetransmissionRecord, watchdog *stats.Watchdog) error {
	buf := make([]byte, wire.DatagramHeaderSize+int(s.xfer.BlockSize))
	retransmitBuf := make([]byte, wire.DatagramHeaderSize+int(s.xfer.BlockSize))

	for {
		select {
		case <-ctx.Done():
			return nil

		case rec := <-records:
			if watchdog != nil {
				watchdog.Kick()
			}
			switch rec.Type {
			case wire.RequestStop:
				return nil

			case wire.RequestRestart:
				if rec.Block == 0 || rec.Block > s.xfer.BlockCount {
					return ttperr.ErrBlockOutOfRange
				}
				s.xfer.NextBlock = rec.Block - 1

			case wire.RequestRetransmit:
				if err := s.sendBlock(retransmitBuf, rec.Block, wire.BlockRetransmission); err != nil {
					return err
				}

			case wire.RequestErrorRate:
				s.xfer.IPD.OnErrorRate(rec.ErrorRate)
				s.log.Debugf("[SENDER] error_rate=%d ipd=%.1fus", rec.ErrorRate, s.xfer.IPD.Current())

			default:
				return ttperr.ErrMalformedMessage
			}
			continue

		default:
		}

		next := s.xfer.NextBlock + 1
		if next > s.xfer.BlockCount {
			next = s.xfer.BlockCount
		}
		s.xfer.NextBlock = next
		blockType := wire.BlockOriginal
		if s.xfer.NextBlock >= s.xfer.BlockCount {
			blockType = wire.BlockTerminate
		}
		if err := s.sendBlock(buf, s.xfer.NextBlock, blockType); err != nil {
			return err
		}

		delay := time.Duration(s.xfer.IPD.Current() * float64(time.Microsecond))
		if delay > 0 {
			time.Sleep(delay)
		}
	}
}

func (s *Sender) sendBlock(buf []byte, block uint64, blockType wire.BlockType) error {
	payload := buf[wire.DatagramHeaderSize:]
	offset := int64(block-1) * int64(s.xfer.BlockSize)
	n, err := s.xfer.File.ReadAt(payload, offset)
	if err != nil && err != io.EOF {
		return ttperr.ErrNetworkIO
	}
	for i := n; i < len(payload); i++ {
		payload[i] = 0
	}

	if err := wire.EncodeDatagramHeader(buf, wire.DatagramHeader{Block: block, Type: blockType}); err != nil {
		return err
	}
	if _, err := s.xfer.UDPConn.Write(buf); err != nil {
		return ttperr.ErrNetworkIO
	}
	return nil
}

// readControl decodes fixed-size retransmission records off the control
// channel and hands each one to out, until ctx is cancelled or the
// connection errors out. It never touches transfer state itself -- that
// stays exclusively on the blast goroutine -- so this is purely an I/O
// pump. A read deadline is renewed every controlPollInterval so that
// ctx cancellation (a heartbeat timeout, or the caller giving up) is
// noticed instead of blocking forever on a receiver that has gone quiet.
func (s *Sender) readControl(ctx context.Context, out chan<- wire.RetransmissionRecord) error {
	for {
		rec, err := s.readRecord(ctx)
		if err != nil {
			return err
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readRecord reads one RetransmissionRecordSize-byte record, resuming
// across read-deadline timeouts without losing already-read bytes or
// re-reading them (a plain repeated io.ReadFull would restart at buf[0]
// each time and corrupt the framing on a partial read).
func (s *Sender) readRecord(ctx context.Context) (wire.RetransmissionRecord, error) {
	buf := make([]byte, wire.RetransmissionRecordSize)
	read := 0
	for read < len(buf) {
		select {
		case <-ctx.Done():
			return wire.RetransmissionRecord{}, ctx.Err()
		default:
		}

		_ = s.control.SetReadDeadline(time.Now().Add(controlPollInterval))
		n, err := s.control.Read(buf[read:])
		read += n
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return wire.RetransmissionRecord{}, ttperr.ErrNetworkIO
		}
	}
	return wire.DecodeRetransmissionRecord(buf)
}
