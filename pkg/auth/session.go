package auth

import (
	"io"
	"net"

	"github.com/davidwed/TsunamiUDP/pkg/ttperr"
)

// ServerAuthenticate drives the server side of the handshake over conn:
// send a challenge, read back the client's digest, compare it against
// secret, and tell the client whether it passed.
func ServerAuthenticate(conn net.Conn, secret []byte) error {
	challenge, err := NewChallenge()
	if err != nil {
		return err
	}
	if _, err := conn.Write(challenge[:]); err != nil {
		return ttperr.ErrAuthWrite
	}

	response := make([]byte, DigestSize)
	if _, err := io.ReadFull(conn, response); err != nil {
		return ttperr.ErrAuthRead
	}

	if !Verify(challenge[:], response, secret) {
		_, _ = conn.Write([]byte{1})
		return ttperr.ErrAuthMismatch
	}
	if _, err := conn.Write([]byte{0}); err != nil {
		return ttperr.ErrAuthWrite
	}
	return nil
}

// ClientAuthenticate drives the client side: read the server's
// challenge, respond with the secret-mixed digest, and read back the
// one-byte status.
func ClientAuthenticate(conn net.Conn, secret []byte) error {
	challenge := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(conn, challenge); err != nil {
		return ttperr.ErrAuthRead
	}

	digest := Respond(challenge, secret)
	if _, err := conn.Write(digest[:]); err != nil {
		return ttperr.ErrAuthWrite
	}

	status := make([]byte, 1)
	if _, err := io.ReadFull(conn, status); err != nil {
		return ttperr.ErrAuthRead
	}
	if status[0] != 0 {
		return ttperr.ErrAuthMismatch
	}
	return nil
}
