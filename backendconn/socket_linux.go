//go:build linux

package backendconn

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// dialNonBlocking resolves host:port and returns a non-blocking socket fd
// that is either already connected or has a connection in progress
// (EINPROGRESS) — the caller must watch the fd for writability and call
// checkConnectError once it fires, matching the reactor's readiness-based
// model rather than a blocking net.Dial.
func dialNonBlocking(host string, port int) (fd int, connected bool, err error) {
	ips, err := net.LookupIP(host)
	if err != nil {
		return -1, false, err
	}
	if len(ips) == 0 {
		return -1, false, fmt.Errorf("backendconn: no addresses for %q", host)
	}
	ip := ips[0]

	domain := unix.AF_INET
	if ip.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, false, err
	}

	var sa unix.Sockaddr
	if domain == unix.AF_INET {
		var addr [4]byte
		copy(addr[:], ip.To4())
		sa = &unix.SockaddrInet4{Port: port, Addr: addr}
	} else {
		var addr [16]byte
		copy(addr[:], ip.To16())
		sa = &unix.SockaddrInet6{Port: port, Addr: addr}
	}

	err = unix.Connect(fd, sa)
	if err == nil {
		return fd, true, nil
	}
	if err == unix.EINPROGRESS {
		return fd, false, nil
	}
	_ = unix.Close(fd)
	return -1, false, err
}

// checkConnectError reads SO_ERROR after a writability notification fires
// on a connecting socket. A nil return means the connection completed.
func checkConnectError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func readFD(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func writeFD(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func closeFD(fd int) error { return unix.Close(fd) }
