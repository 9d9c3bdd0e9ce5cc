package wire

import (
	"testing"

	"github.com/davidwed/TsunamiUDP/pkg/ttperr"
	"github.com/stretchr/testify/assert"
)

func TestDatagramHeaderRoundTrip(t *testing.T) {
	cases := []DatagramHeader{
		{Block: 0, Type: BlockOriginal},
		{Block: 1, Type: BlockOriginal},
		{Block: 1<<63 - 1, Type: BlockRetransmission},
		{Block: 42, Type: BlockTerminate},
	}
	for _, h := range cases {
		buf := make([]byte, DatagramHeaderSize)
		assert.Nil(t, EncodeDatagramHeader(buf, h))
		decoded, err := DecodeDatagramHeader(buf)
		assert.Nil(t, err)
		assert.Equal(t, h, decoded)
	}
}

func TestDatagramHeaderMalformed(t *testing.T) {
	_, err := DecodeDatagramHeader(make([]byte, 4))
	assert.ErrorIs(t, err, ttperr.ErrMalformedMessage)

	err = EncodeDatagramHeader(make([]byte, 4), DatagramHeader{})
	assert.ErrorIs(t, err, ttperr.ErrMalformedMessage)
}

func TestRetransmissionRecordRoundTrip(t *testing.T) {
	cases := []RetransmissionRecord{
		{Type: RequestRetransmit, Block: 7, ErrorRate: 0},
		{Type: RequestRestart, Block: 1000, ErrorRate: 50000},
		{Type: RequestStop, Block: 0, ErrorRate: 0},
		{Type: RequestErrorRate, Block: 0, ErrorRate: 100000},
	}
	for _, r := range cases {
		buf := make([]byte, RetransmissionRecordSize)
		assert.Nil(t, r.Encode(buf))
		decoded, err := DecodeRetransmissionRecord(buf)
		assert.Nil(t, err)
		assert.Equal(t, r, decoded)
	}
}

func TestClientParametersRoundTrip(t *testing.T) {
	p := ClientParameters{
		BlockSize:  1024,
		TargetRate: 1_000_000_000,
		ErrorRate:  5000,
		SlowerNum:  11,
		SlowerDen:  10,
		FasterNum:  9,
		FasterDen:  10,
	}
	buf := make([]byte, ClientParametersSize)
	assert.Nil(t, p.Encode(buf))
	decoded, err := DecodeClientParameters(buf)
	assert.Nil(t, err)
	assert.Equal(t, p, decoded)
}

func TestServerParametersRoundTrip(t *testing.T) {
	p := ServerParameters{
		FileSize:   102400,
		BlockSize:  4096,
		BlockCount: 26,
		Epoch:      1753800000,
	}
	buf := make([]byte, ServerParametersSize)
	assert.Nil(t, p.Encode(buf))
	decoded, err := DecodeServerParameters(buf)
	assert.Nil(t, err)
	assert.Equal(t, p, decoded)
}

func TestBlockTypeString(t *testing.T) {
	assert.Equal(t, "original", BlockOriginal.String())
	assert.Equal(t, "retransmission", BlockRetransmission.String())
	assert.Equal(t, "terminate", BlockTerminate.String())
}

func TestRequestTypeString(t *testing.T) {
	assert.Equal(t, "retransmit", RequestRetransmit.String())
	assert.Equal(t, "restart", RequestRestart.String())
	assert.Equal(t, "stop", RequestStop.String())
	assert.Equal(t, "error_rate", RequestErrorRate.String())
}
