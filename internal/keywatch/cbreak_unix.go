//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package keywatch

import (
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// enterCbreak turns off line buffering and echo but keeps signal keys, so
// Ctrl+C still raises SIGINT. The returned func restores the previous mode.
func enterCbreak(fd int) (func(), error) {
	state, err := term.GetState(fd)
	if err != nil {
		return nil, err
	}

	t, err := unix.IoctlGetTermios(fd, ioctlReadTermios)
	if err != nil {
		return nil, err
	}
	t.Lflag &^= unix.ICANON | unix.ECHO
	t.Lflag |= unix.ISIG
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, ioctlWriteTermios, t); err != nil {
		return nil, err
	}

	return func() { _ = term.Restore(fd, state) }, nil
}
