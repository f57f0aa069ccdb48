//go:build linux || darwin || freebsd || netbsd || openbsd

package lock

import (
	"os"

	"golang.org/x/sys/unix"
)

func flock(f *os.File, mode Mode) error {
	how := unix.LOCK_EX
	if mode == Shared {
		how = unix.LOCK_SH
	}
	return unix.Flock(int(f.Fd()), how)
}

func funlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
