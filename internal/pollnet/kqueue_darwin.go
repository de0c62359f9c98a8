//go:build darwin

package pollnet

import "syscall"

// kqueuePoller is a kqueue-based Poller for BSD/Darwin.
type kqueuePoller struct {
	kqfd   int
	events []syscall.Kevent_t
}

// New creates the platform Poller (kqueue on Darwin).
func New() (Poller, error) {
	kqfd, err := syscall.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{kqfd: kqfd, events: make([]syscall.Kevent_t, 1024)}, nil
}

func (p *kqueuePoller) Add(fd int) error {
	ev := syscall.Kevent_t{
		Ident:  uint64(fd),
		Filter: syscall.EVFILT_READ,
		Flags:  syscall.EV_ADD | syscall.EV_ENABLE,
	}
	_, err := syscall.Kevent(p.kqfd, []syscall.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) Remove(fd int) error {
	ev := syscall.Kevent_t{
		Ident:  uint64(fd),
		Filter: syscall.EVFILT_READ,
		Flags:  syscall.EV_DELETE,
	}
	_, err := syscall.Kevent(p.kqfd, []syscall.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) Wait(timeoutMillis int) ([]int, error) {
	var ts *syscall.Timespec
	if timeoutMillis >= 0 {
		ts = &syscall.Timespec{
			Sec:  int64(timeoutMillis / 1000),
			Nsec: int64((timeoutMillis % 1000) * 1000000),
		}
	}

	n, err := syscall.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil && err != syscall.EINTR {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	fds := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fds = append(fds, int(p.events[i].Ident))
	}
	return fds, nil
}

func (p *kqueuePoller) Close() error {
	return syscall.Close(p.kqfd)
}
