//go:build linux

package reactor

import "golang.org/x/sys/unix"

// wakeFD is a cross-thread wake-up primitive backed by eventfd(2), matching
// the teacher event loop's createWakeFd on Linux. A single fd serves as both
// read and write end.
type wakeFD struct {
	fd int
}

func newWakeFD() (*wakeFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &wakeFD{fd: fd}, nil
}

func (w *wakeFD) signal() error {
	var one [8]byte
	one[0] = 1
	_, err := unix.Write(w.fd, one[:])
	return err
}

func (w *wakeFD) drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(w.fd, buf[:]); err != nil {
			return
		}
	}
}

func (w *wakeFD) close() error {
	return unix.Close(w.fd)
}
