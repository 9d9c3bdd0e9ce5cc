// Package ttperr defines the error kinds shared across the Tsunami
// transfer engine.
package ttperr

import "errors"

var (
	ErrMalformedMessage  = errors.New("malformed control message")
	ErrVersionMismatch   = errors.New("protocol version mismatch")
	ErrAuthMismatch      = errors.New("authentication challenge mismatch")
	ErrAuthRead          = errors.New("failed reading authentication data")
	ErrAuthWrite         = errors.New("failed writing authentication data")
	ErrFileOpenFailure   = errors.New("remote failed to open requested file")
	ErrNetworkIO         = errors.New("network i/o error")
	ErrHeartbeatTimeout  = errors.New("no heartbeat received within timeout")
	ErrDiskWrite         = errors.New("disk write failed")
	ErrIllegalArgument   = errors.New("illegal argument")
	ErrRingClosed        = errors.New("ring buffer closed")
	ErrNoTransfer        = errors.New("no transfer in progress")
	ErrBlockOutOfRange   = errors.New("block number out of range")
	ErrAllocFailure      = errors.New("allocation size invariant violated")
)
