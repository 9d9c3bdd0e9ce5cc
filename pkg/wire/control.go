package wire

import "net"

// RetransmitSender abstracts the control-channel write side so
// pkg/receiver doesn't need to depend on net.Conn directly, making it
// easy to substitute a test double (such as the fakeSender in
// pkg/receiver's tests) for the real TCP connection.
type RetransmitSender interface {
	SendRetransmission(rec RetransmissionRecord) error
}

// ConnRetransmitSender sends retransmission-channel records over a real
// net.Conn (the TCP control channel).
type ConnRetransmitSender struct {
	Conn net.Conn
}

func (c ConnRetransmitSender) SendRetransmission(rec RetransmissionRecord) error {
	buf := make([]byte, RetransmissionRecordSize)
	if err := rec.Encode(buf); err != nil {
		return err
	}
	_, err := c.Conn.Write(buf)
	return err
}
