//go:build linux

package reactor

import "golang.org/x/sys/unix"

// pipeFDs returns (readFD, writeFD) of an OS pipe, for tests that need a
// real watchable file descriptor without opening a socket.
func pipeFDs() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

func closeFDs(fds ...int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}
