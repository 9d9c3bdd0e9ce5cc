// Package auth implements the control-channel challenge/response
// authentication handshake: the server sends 512 bits of random data,
// the client XORs the shared secret onto it and returns the MD5 digest,
// and the server compares digests before admitting the client.
//
// MD5 and a fixed 64-byte challenge are wire-mandated, not a library
// choice -- crypto/md5 and crypto/rand are the standard library's own
// implementations of exactly those primitives, so there is no
// third-party alternative to reach for here.
package auth

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"io"

	"github.com/davidwed/TsunamiUDP/pkg/ttperr"
)

// ChallengeSize is the number of challenge bytes exchanged (512 bits).
const ChallengeSize = 64

// DigestSize is the length of an MD5 digest.
const DigestSize = md5.Size

// NewChallenge draws ChallengeSize bytes of cryptographically random data.
func NewChallenge() ([ChallengeSize]byte, error) {
	var challenge [ChallengeSize]byte
	if _, err := io.ReadFull(rand.Reader, challenge[:]); err != nil {
		return challenge, ttperr.ErrAuthRead
	}
	return challenge, nil
}

// Respond computes the proof for a given challenge and shared secret: the
// secret is XORed onto the challenge, repeating to fill ChallengeSize
// bytes, and the MD5 digest of the result is returned.
func Respond(challenge []byte, secret []byte) [DigestSize]byte {
	mixed := xorRepeat(challenge, secret)
	return md5.Sum(mixed)
}

// Verify reports whether response is the correct proof for challenge
// under secret, using a constant-time comparison so a timing side
// channel can't leak which prefix bytes matched.
func Verify(challenge []byte, response []byte, secret []byte) bool {
	expected := Respond(challenge, secret)
	if len(response) != DigestSize {
		return false
	}
	return subtle.ConstantTimeCompare(expected[:], response) == 1
}

func xorRepeat(data []byte, secret []byte) []byte {
	out := make([]byte, len(data))
	if len(secret) == 0 {
		copy(out, data)
		return out
	}
	for i, b := range data {
		out[i] = b ^ secret[i%len(secret)]
	}
	return out
}
