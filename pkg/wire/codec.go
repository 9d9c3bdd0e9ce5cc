// Package wire implements the fixed-layout, network-byte-order encoding
// used on both the UDP data channel and the TCP control channel.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/davidwed/TsunamiUDP/pkg/ttperr"
)

// ProtocolRevision is exchanged by both sides during the handshake
// (spec.md §4.7.1). A mismatch aborts the session.
const ProtocolRevision uint32 = 501

// BlockType tags a UDP datagram's payload kind.
type BlockType uint16

const (
	BlockOriginal       BlockType = 'O'
	BlockRetransmission BlockType = 'R'
	BlockTerminate      BlockType = 'X'
)

func (t BlockType) String() string {
	switch t {
	case BlockOriginal:
		return "original"
	case BlockRetransmission:
		return "retransmission"
	case BlockTerminate:
		return "terminate"
	default:
		return fmt.Sprintf("unknown(0x%x)", uint16(t))
	}
}

// RequestType tags a retransmission-channel record (spec.md §3, §4.4).
type RequestType uint16

const (
	RequestRetransmit RequestType = 1
	RequestRestart    RequestType = 2
	RequestStop       RequestType = 3
	RequestErrorRate  RequestType = 4
)

func (t RequestType) String() string {
	switch t {
	case RequestRetransmit:
		return "retransmit"
	case RequestRestart:
		return "restart"
	case RequestStop:
		return "stop"
	case RequestErrorRate:
		return "error_rate"
	default:
		return fmt.Sprintf("unknown(0x%x)", uint16(t))
	}
}

// DatagramHeaderSize is the fixed 10-byte header preceding every UDP
// payload: u64 block number + u16 block type, network byte order.
const DatagramHeaderSize = 10

// DatagramHeader is the decoded form of a UDP datagram's fixed header.
type DatagramHeader struct {
	Block uint64
	Type  BlockType
}

// EncodeDatagramHeader writes the 10-byte header to buf, which must be at
// least DatagramHeaderSize bytes long.
func EncodeDatagramHeader(buf []byte, h DatagramHeader) error {
	if len(buf) < DatagramHeaderSize {
		return ttperr.ErrMalformedMessage
	}
	binary.BigEndian.PutUint64(buf[0:8], h.Block)
	binary.BigEndian.PutUint16(buf[8:10], uint16(h.Type))
	return nil
}

// DecodeDatagramHeader parses the fixed header out of buf.
func DecodeDatagramHeader(buf []byte) (DatagramHeader, error) {
	if len(buf) < DatagramHeaderSize {
		return DatagramHeader{}, ttperr.ErrMalformedMessage
	}
	return DatagramHeader{
		Block: binary.BigEndian.Uint64(buf[0:8]),
		Type:  BlockType(binary.BigEndian.Uint16(buf[8:10])),
	}, nil
}

// RetransmissionRecordSize is the fixed 14-byte record sent back-to-back
// on the TCP control channel: u16 type + u64 block + u32 error rate.
const RetransmissionRecordSize = 14

// RetransmissionRecord is one entry of the retransmission channel.
type RetransmissionRecord struct {
	Type      RequestType
	Block     uint64
	ErrorRate uint32
}

// Encode writes the 14-byte packed record to buf.
func (r RetransmissionRecord) Encode(buf []byte) error {
	if len(buf) < RetransmissionRecordSize {
		return ttperr.ErrMalformedMessage
	}
	binary.BigEndian.PutUint16(buf[0:2], uint16(r.Type))
	binary.BigEndian.PutUint64(buf[2:10], r.Block)
	binary.BigEndian.PutUint32(buf[10:14], r.ErrorRate)
	return nil
}

// DecodeRetransmissionRecord parses one 14-byte record out of buf.
func DecodeRetransmissionRecord(buf []byte) (RetransmissionRecord, error) {
	if len(buf) < RetransmissionRecordSize {
		return RetransmissionRecord{}, ttperr.ErrMalformedMessage
	}
	return RetransmissionRecord{
		Type:      RequestType(binary.BigEndian.Uint16(buf[0:2])),
		Block:     binary.BigEndian.Uint64(buf[2:10]),
		ErrorRate: binary.BigEndian.Uint32(buf[10:14]),
	}, nil
}

// ClientParameters is what the receiver proposes during per-transfer
// negotiation (spec.md §4.7.3.c): 3 u32 fields then 4 u16 fields, all NBO.
type ClientParameters struct {
	BlockSize   uint32
	TargetRate  uint32
	ErrorRate   uint32
	SlowerNum   uint16
	SlowerDen   uint16
	FasterNum   uint16
	FasterDen   uint16
}

const ClientParametersSize = 4*3 + 2*4

func (p ClientParameters) Encode(buf []byte) error {
	if len(buf) < ClientParametersSize {
		return ttperr.ErrMalformedMessage
	}
	binary.BigEndian.PutUint32(buf[0:4], p.BlockSize)
	binary.BigEndian.PutUint32(buf[4:8], p.TargetRate)
	binary.BigEndian.PutUint32(buf[8:12], p.ErrorRate)
	binary.BigEndian.PutUint16(buf[12:14], p.SlowerNum)
	binary.BigEndian.PutUint16(buf[14:16], p.SlowerDen)
	binary.BigEndian.PutUint16(buf[16:18], p.FasterNum)
	binary.BigEndian.PutUint16(buf[18:20], p.FasterDen)
	return nil
}

func DecodeClientParameters(buf []byte) (ClientParameters, error) {
	if len(buf) < ClientParametersSize {
		return ClientParameters{}, ttperr.ErrMalformedMessage
	}
	return ClientParameters{
		BlockSize:  binary.BigEndian.Uint32(buf[0:4]),
		TargetRate: binary.BigEndian.Uint32(buf[4:8]),
		ErrorRate:  binary.BigEndian.Uint32(buf[8:12]),
		SlowerNum:  binary.BigEndian.Uint16(buf[12:14]),
		SlowerDen:  binary.BigEndian.Uint16(buf[14:16]),
		FasterNum:  binary.BigEndian.Uint16(buf[16:18]),
		FasterDen:  binary.BigEndian.Uint16(buf[18:20]),
	}, nil
}

// ServerParameters is the sender's echo back (spec.md §4.7.3.c):
// u64 file_size, u32 block_size, u64 block_count, u64 epoch.
type ServerParameters struct {
	FileSize   uint64
	BlockSize  uint32
	BlockCount uint64
	Epoch      uint64
}

const ServerParametersSize = 8 + 4 + 8 + 8

func (p ServerParameters) Encode(buf []byte) error {
	if len(buf) < ServerParametersSize {
		return ttperr.ErrMalformedMessage
	}
	binary.BigEndian.PutUint64(buf[0:8], p.FileSize)
	binary.BigEndian.PutUint32(buf[8:12], p.BlockSize)
	binary.BigEndian.PutUint64(buf[12:20], p.BlockCount)
	binary.BigEndian.PutUint64(buf[20:28], p.Epoch)
	return nil
}

func DecodeServerParameters(buf []byte) (ServerParameters, error) {
	if len(buf) < ServerParametersSize {
		return ServerParameters{}, ttperr.ErrMalformedMessage
	}
	return ServerParameters{
		FileSize:   binary.BigEndian.Uint64(buf[0:8]),
		BlockSize:  binary.BigEndian.Uint32(buf[8:12]),
		BlockCount: binary.BigEndian.Uint64(buf[12:20]),
		Epoch:      binary.BigEndian.Uint64(buf[20:28]),
	}, nil
}
