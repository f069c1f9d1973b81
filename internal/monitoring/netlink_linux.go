//go:build linux

package monitoring

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"
)

// Listener receives kernel uevents on a netlink socket.
type Listener struct {
	fd         int
	subsystems []string
}

// NewListener opens a uevent socket. Events are delivered only for the given
// subsystems, or for all of them when none are named.
func NewListener(subsystems ...string) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: 1,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}

	// Wake up once a second to notice cancellation.
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Listener{fd: fd, subsystems: subsystems}, nil
}

// Close releases the socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// Run delivers matching events until ctx is cancelled.
func (l *Listener) Run(ctx context.Context, handle func(*UEvent)) error {
	buf := make([]byte, 8192)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, _, err := unix.Recvfrom(l.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		ev := ParseUEvent(buf[:n])
		if ev == nil || !matchSubsystem(l.subsystems, ev.Subsystem) {
			continue
		}
		handle(ev)
	}
}
