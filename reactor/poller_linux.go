//go:build linux

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Interest is a bitmask of readiness conditions a watch cares about.
type Interest uint32

const (
	// InterestRead fires when the fd has data ready to read (or a listening
	// socket has a pending connection).
	InterestRead Interest = 1 << iota
	// InterestWrite fires when the fd can accept a write without blocking.
	InterestWrite
)

func (i Interest) toEpoll() uint32 {
	var e uint32
	if i&InterestRead != 0 {
		e |= unix.EPOLLIN
	}
	if i&InterestWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpoll(e uint32) Interest {
	var i Interest
	if e&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		i |= InterestRead
	}
	if e&unix.EPOLLOUT != 0 {
		i |= InterestWrite
	}
	return i
}

// WatchHandle identifies one registered file descriptor.
type WatchHandle struct {
	fd int
}

type watchEntry struct {
	cb       func(Interest)
	interest Interest
	active   bool
}

// epollPoller wraps epoll(7). Registrations are kept in a map keyed by fd,
// unlike the teacher's FastPoller, which indexes a fixed-size array.
type epollPoller struct {
	mu       sync.RWMutex
	epfd     int
	watches  map[int]*watchEntry
	eventBuf []unix.EpollEvent

	// onPanic, if set, receives the recovered value of a panicking watch
	// callback instead of letting it unwind poll's caller (the loop
	// goroutine). Wired by reactor.New to Context.recordFatal so a
	// panicking watch callback terminates the loop the same way a
	// panicking timer or posted callback does.
	onPanic func(any)
}

func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:     epfd,
		watches:  make(map[int]*watchEntry),
		eventBuf: make([]unix.EpollEvent, 256),
	}, nil
}

func (p *epollPoller) add(fd int, interest Interest, cb func(Interest)) error {
	p.mu.Lock()
	if _, exists := p.watches[fd]; exists {
		p.mu.Unlock()
		return ErrUnsupportedFD
	}
	p.watches[fd] = &watchEntry{cb: cb, interest: interest, active: true}
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: interest.toEpoll(), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		p.mu.Lock()
		delete(p.watches, fd)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *epollPoller) update(fd int, interest Interest) error {
	p.mu.Lock()
	w, ok := p.watches[fd]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownWatch
	}
	w.interest = interest
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: interest.toEpoll(), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) remove(fd int) error {
	p.mu.Lock()
	if _, ok := p.watches[fd]; !ok {
		p.mu.Unlock()
		return ErrUnknownWatch
	}
	delete(p.watches, fd)
	p.mu.Unlock()
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// poll blocks for up to timeoutMs (negative blocks indefinitely) and
// dispatches ready callbacks inline, matching eventloop.FastPoller.PollIO.
func (p *epollPoller) poll(timeoutMs int) error {
	n, err := unix.EpollWait(p.epfd, p.eventBuf, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		p.mu.RLock()
		w, ok := p.watches[fd]
		p.mu.RUnlock()
		if ok && w.active && w.cb != nil {
			p.dispatch(w, fromEpoll(p.eventBuf[i].Events))
		}
	}
	return nil
}

func (p *epollPoller) dispatch(w *watchEntry, interest Interest) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	w.cb(interest)
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
