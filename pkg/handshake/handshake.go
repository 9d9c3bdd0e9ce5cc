// Package handshake drives the TCP control-channel negotiation that
// precedes every transfer: protocol revision check, authentication,
// filename request, and per-transfer parameter exchange (spec.md §4.7).
package handshake

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/davidwed/TsunamiUDP/pkg/auth"
	"github.com/davidwed/TsunamiUDP/pkg/ttperr"
	"github.com/davidwed/TsunamiUDP/pkg/wire"
)

// MaxFilenameLength bounds a requested filename, matching the
// newline-terminated line the control channel exchanges.
const MaxFilenameLength = 1024

// DirListCommand is the filename sentinel the client sends to request a
// directory listing instead of a file.
const DirListCommand = "!#DIR??"

// MultiFileCommand is the filename sentinel requesting a batch transfer
// of every shared file in turn.
const MultiFileCommand = "*"

// NegotiateServer exchanges protocol revision numbers, returning
// ErrVersionMismatch if the client's revision doesn't match ours.
func NegotiateServer(conn net.Conn) error {
	if err := writeUint32(conn, wire.ProtocolRevision); err != nil {
		return err
	}
	clientRev, err := readUint32(conn)
	if err != nil {
		return err
	}
	if clientRev != wire.ProtocolRevision {
		return ttperr.ErrVersionMismatch
	}
	return nil
}

// NegotiateClient mirrors NegotiateServer from the client's side: read
// the server's revision, then echo ours back.
func NegotiateClient(conn net.Conn) error {
	serverRev, err := readUint32(conn)
	if err != nil {
		return err
	}
	if err := writeUint32(conn, wire.ProtocolRevision); err != nil {
		return err
	}
	if serverRev != wire.ProtocolRevision {
		return ttperr.ErrVersionMismatch
	}
	return nil
}

// AuthenticateServer runs the MD5 challenge/response handshake (spec.md §4.2).
func AuthenticateServer(conn net.Conn, secret []byte) error {
	return auth.ServerAuthenticate(conn, secret)
}

// AuthenticateClient is the client-side counterpart of AuthenticateServer.
func AuthenticateClient(conn net.Conn, secret []byte) error {
	return auth.ClientAuthenticate(conn, secret)
}

// RequestFile sends a newline-terminated filename to the server and
// reports whether the request was accepted (status byte 0).
func RequestFile(conn net.Conn, filename string) (accepted bool, err error) {
	if err := writeLine(conn, filename); err != nil {
		return false, err
	}
	status := make([]byte, 1)
	if _, err := io.ReadFull(conn, status); err != nil {
		return false, ttperr.ErrNetworkIO
	}
	return status[0] == 0, nil
}

// WriteFilename sends a newline-terminated filename line with no
// follow-up status byte, for the pkg/multifile sentinels
// (MultiFileCommand, DirListCommand) whose response shape isn't the
// plain accept/reject of a single-file RequestFile.
func WriteFilename(conn net.Conn, filename string) error {
	return writeLine(conn, filename)
}

// ReadFilename reads the newline-terminated filename line the client
// sent. It reads one byte at a time directly off conn rather than
// through a buffering reader: the bytes immediately following the
// filename belong to a different exchange (the file-open status byte,
// or the client parameters on TCP transports that coalesce consecutive
// writes), and a bufio.Reader would eagerly read ahead into them,
// losing bytes this function's caller needs from the raw conn
// afterward.
func ReadFilename(conn net.Conn) (string, error) {
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for {
		if _, err := io.ReadFull(conn, one); err != nil {
			return "", ttperr.ErrNetworkIO
		}
		if one[0] == '\n' {
			return string(buf), nil
		}
		buf = append(buf, one[0])
		if len(buf) > MaxFilenameLength {
			return "", ttperr.ErrIllegalArgument
		}
	}
}

// RespondFileStatus sends the single status byte that follows a file
// request: 0 for accepted, non-zero for FileOpenFailure.
func RespondFileStatus(conn net.Conn, ok bool) error {
	var status byte
	if !ok {
		status = 1
	}
	if _, err := conn.Write([]byte{status}); err != nil {
		return ttperr.ErrNetworkIO
	}
	return nil
}

// SendClientParameters writes the receiver's proposed session parameters.
func SendClientParameters(conn net.Conn, p wire.ClientParameters) error {
	buf := make([]byte, wire.ClientParametersSize)
	if err := p.Encode(buf); err != nil {
		return err
	}
	if _, err := conn.Write(buf); err != nil {
		return ttperr.ErrNetworkIO
	}
	return nil
}

// ReadClientParameters reads the receiver's proposed session parameters.
func ReadClientParameters(conn net.Conn) (wire.ClientParameters, error) {
	buf := make([]byte, wire.ClientParametersSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return wire.ClientParameters{}, ttperr.ErrNetworkIO
	}
	return wire.DecodeClientParameters(buf)
}

// SendServerParameters writes the sender's computed file/block layout.
func SendServerParameters(conn net.Conn, p wire.ServerParameters) error {
	buf := make([]byte, wire.ServerParametersSize)
	if err := p.Encode(buf); err != nil {
		return err
	}
	if _, err := conn.Write(buf); err != nil {
		return ttperr.ErrNetworkIO
	}
	return nil
}

// ReadServerParameters reads the sender's computed file/block layout.
func ReadServerParameters(conn net.Conn) (wire.ServerParameters, error) {
	buf := make([]byte, wire.ServerParametersSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return wire.ServerParameters{}, ttperr.ErrNetworkIO
	}
	return wire.DecodeServerParameters(buf)
}

// SendUDPPort tells the sender which UDP port the receiver is listening
// on, network byte order (spec.md §4.7.3.b). The port is encoded
// big-endian from a uint16, which puts the same two bytes on the wire as
// a raw network-order in_port_t (Open Question decision #1 in DESIGN.md).
func SendUDPPort(conn net.Conn, port uint16) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, port)
	if _, err := conn.Write(buf); err != nil {
		return ttperr.ErrNetworkIO
	}
	return nil
}

// ReadUDPPort reads the receiver's UDP listening port.
func ReadUDPPort(conn net.Conn) (uint16, error) {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return 0, ttperr.ErrNetworkIO
	}
	return binary.BigEndian.Uint16(buf), nil
}

func writeUint32(conn net.Conn, v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	if _, err := conn.Write(buf); err != nil {
		return ttperr.ErrNetworkIO
	}
	return nil
}

func readUint32(conn net.Conn) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return 0, ttperr.ErrNetworkIO
	}
	return binary.BigEndian.Uint32(buf), nil
}

func writeLine(conn net.Conn, s string) error {
	buf := append([]byte(s), '\n')
	if _, err := conn.Write(buf); err != nil {
		return ttperr.ErrNetworkIO
	}
	return nil
}
