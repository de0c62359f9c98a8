//go:build linux

package pollnet

import "syscall"

// epollPoller is an epoll-based Poller for Linux.
type epollPoller struct {
	epfd   int
	events []syscall.EpollEvent
}

// New creates the platform Poller (epoll on Linux).
func New() (Poller, error) {
	epfd, err := syscall.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: epfd, events: make([]syscall.EpollEvent, 1024)}, nil
}

func (p *epollPoller) Add(fd int) error {
	ev := syscall.EpollEvent{
		// EPOLLIN for readability, 0x2000 (EPOLLRDHUP) to detect peer
		// shutdown promptly; level-triggered (no EPOLLET) for simplicity.
		Events: uint32(syscall.EPOLLIN) | uint32(0x2000),
		Fd:     int32(fd),
	}
	return syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	return syscall.EpollCtl(p.epfd, syscall.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeoutMillis int) ([]int, error) {
	n, err := syscall.EpollWait(p.epfd, p.events, timeoutMillis)
	if err != nil && err != syscall.EINTR {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	fds := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fds = append(fds, int(p.events[i].Fd))
	}
	return fds, nil
}

func (p *epollPoller) Close() error {
	return syscall.Close(p.epfd)
}
