//go:build linux || darwin || freebsd || netbsd || openbsd

package maildir

import (
	"os"

	"golang.org/x/sys/unix"
)

// effectiveMode computes the rwx bits of path that actually apply to
// this process: owner bits if the process's effective uid matches the
// file's owner, else group bits if the effective gid matches, else
// other bits.
func effectiveMode(path string) (uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	euid := uint32(os.Geteuid())
	egid := uint32(os.Getegid())
	mode := uint32(st.Mode)

	switch {
	case st.Uid == euid:
		return (mode >> 6) & 0o7, nil
	case st.Gid == egid:
		return (mode >> 3) & 0o7, nil
	default:
		return mode & 0o7, nil
	}
}
