// Package netstat reaches past net.UDPConn's portable API to tune the
// receive buffer and to read the OS's own UDP receive-error count,
// grounded on the exporter pack's use of netfd.GetFdFromConn to recover
// a raw fd from a net.Conn for socket options the stdlib doesn't expose.
package netstat

import (
	"bufio"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

// TuneReceiveBuffer raises conn's SO_RCVBUF to at least sizeBytes, best
// effort (the kernel may cap it below what's requested).
func TuneReceiveBuffer(conn *net.UDPConn, sizeBytes int) error {
	fd := netfd.GetFdFromConn(conn)
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, sizeBytes)
}

const snmpPath = "/proc/net/snmp"

// ReadUDPInErrors parses /proc/net/snmp's "Udp:" line for InErrors,
// returning 0 without error when the file is unavailable (non-Linux, or
// sandboxed environments that don't expose it).
func ReadUDPInErrors() (uint64, error) {
	f, err := os.Open(snmpPath)
	if err != nil {
		return 0, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var header, values []string
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Udp:") {
			continue
		}
		fields := strings.Fields(line)
		if header == nil {
			header = fields
			continue
		}
		values = fields
		break
	}
	if header == nil || values == nil || len(header) != len(values) {
		return 0, nil
	}

	for i, name := range header {
		if name == "InErrors" {
			n, err := strconv.ParseUint(values[i], 10, 64)
			if err != nil {
				return 0, nil
			}
			return n, nil
		}
	}
	return 0, nil
}
