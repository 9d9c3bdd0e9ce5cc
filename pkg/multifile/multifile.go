// Package multifile implements the control-channel add-ons that drive a
// batch of files through the single-file transfer cycle one after
// another: the "*" wildcard listing, the "!#DIR??" directory listing,
// and the sequential open/transfer/close loop that walks the resulting
// name list (spec.md §4.11, SPEC_FULL.md §4.15).
//
// Grounded on pkg/network.Network.Scan's "gather results into a map,
// keep going past individual failures" shape, simplified from Scan's
// parallel goroutine fan-out to sequential iteration: a multi-file
// transfer is an ordered batch over one TCP control channel and one UDP
// socket, not an independent probe per node.
package multifile

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/davidwed/TsunamiUDP/pkg/handshake"
	"github.com/davidwed/TsunamiUDP/pkg/ttperr"
)

// lengthFieldWidth is the fixed width of the zero-padded ASCII integer
// fields that prefix a listing batch (spec.md §4.11: "two zero-padded
// 10-byte ASCII integers").
const lengthFieldWidth = 10

// FileEntry is one row of a directory listing: a name and its size in
// bytes. The plain "*" listing only needs names; ServeDirList/
// RequestDirList carry the size too, since a directory listing's whole
// purpose is to let the receiver pick without opening anything.
type FileEntry struct {
	Name string
	Size uint64
}

// ServeFileList writes the sender's reply to a "*" request: the total
// byte count of the newline-terminated name list, the file count, then
// each name in turn (spec.md §4.11).
func ServeFileList(conn net.Conn, names []string) error {
	total := 0
	for _, name := range names {
		total += len(name) + 1 // +1 for the newline terminator
	}
	if err := writeASCIIField(conn, uint64(total)); err != nil {
		return err
	}
	if err := writeASCIIField(conn, uint64(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := conn.Write([]byte(name + "\n")); err != nil {
			return ttperr.ErrNetworkIO
		}
	}
	return nil
}

// RequestFileList sends the "*" sentinel and reads back the resulting
// name list.
func RequestFileList(conn net.Conn) ([]string, error) {
	if err := handshake.WriteFilename(conn, handshake.MultiFileCommand); err != nil {
		return nil, err
	}
	if _, err := readASCIIField(conn); err != nil { // total bytes, informational only
		return nil, err
	}
	count, err := readASCIIField(conn)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		line, err := readLine(conn)
		if err != nil {
			return nil, err
		}
		names = append(names, line)
	}
	return names, nil
}

// ServeDirList writes the sender's reply to a directory-list request:
// same length-prefixed batch shape as ServeFileList, but each line also
// carries the file's size so the receiver can decide what to pull
// without opening anything (spec.md §4.11's "similar listing but with
// file sizes").
func ServeDirList(conn net.Conn, entries []FileEntry) error {
	total := 0
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%s\t%d", e.Name, e.Size)
		total += len(lines[i]) + 1
	}
	if err := writeASCIIField(conn, uint64(total)); err != nil {
		return err
	}
	if err := writeASCIIField(conn, uint64(len(entries))); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			return ttperr.ErrNetworkIO
		}
	}
	return nil
}

// RequestDirList sends the directory-list sentinel and reads back the
// resulting entries.
func RequestDirList(conn net.Conn) ([]FileEntry, error) {
	if err := handshake.WriteFilename(conn, handshake.DirListCommand); err != nil {
		return nil, err
	}
	if _, err := readASCIIField(conn); err != nil {
		return nil, err
	}
	count, err := readASCIIField(conn)
	if err != nil {
		return nil, err
	}
	entries := make([]FileEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		line, err := readLine(conn)
		if err != nil {
			return nil, err
		}
		name, sizeStr, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, ttperr.ErrMalformedMessage
		}
		size, err := strconv.ParseUint(sizeStr, 10, 64)
		if err != nil {
			return nil, ttperr.ErrMalformedMessage
		}
		entries = append(entries, FileEntry{Name: name, Size: size})
	}
	return entries, nil
}

func writeASCIIField(conn net.Conn, v uint64) error {
	s := fmt.Sprintf("%0*d", lengthFieldWidth, v)
	if len(s) != lengthFieldWidth {
		return ttperr.ErrIllegalArgument // v overflowed the fixed field width
	}
	if _, err := conn.Write([]byte(s)); err != nil {
		return ttperr.ErrNetworkIO
	}
	return nil
}

func readASCIIField(conn net.Conn) (uint64, error) {
	buf := make([]byte, lengthFieldWidth)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return 0, ttperr.ErrNetworkIO
	}
	v, err := strconv.ParseUint(strings.TrimLeft(string(buf), "0 "), 10, 64)
	if err != nil {
		if strings.TrimLeft(string(buf), "0") == "" {
			return 0, nil
		}
		return 0, ttperr.ErrMalformedMessage
	}
	return v, nil
}

// readLine reads one newline-terminated line directly off conn, one
// byte at a time: see handshake.ReadFilename's doc comment for why this
// package avoids wrapping conn in a buffering reader mid-protocol.
func readLine(conn net.Conn) (string, error) {
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
	}
}

// Result is the outcome of one file's turn through the batch.
type Result struct {
	Name string
	Err  error
}

// Driver sequences a batch of named files through a caller-supplied
// transfer function, one file at a time, continuing past individual
// failures the way the original REPL's filename-wait state recovers
// after a single FileOpenFailure (spec.md §7's per-transfer error
// policy, generalized across a whole batch instead of one prompt).
type Driver struct {
	log *slog.Logger
}

// NewDriver creates a batch driver. A nil logger falls back to
// slog.Default().
func NewDriver(logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{log: logger.With("service", "multifile")}
}

// TransferOneFunc runs the open/transfer/close cycle for a single named
// file. It owns negotiating parameters, opening the UDP socket, and
// running the sender or receiver loop to completion.
type TransferOneFunc func(name string) error

// TransferAll drives transferOne once per name, in order, recording
// each outcome. A failing file does not stop the batch.
func (d *Driver) TransferAll(names []string, transferOne TransferOneFunc) []Result {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		err := transferOne(name)
		if err != nil {
			d.log.Warn("file transfer failed, continuing batch", "file", name, "error", err)
		} else {
			d.log.Info("file transfer complete", "file", name)
		}
		results = append(results, Result{Name: name, Err: err})
	}
	return results
}
