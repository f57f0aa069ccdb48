//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package lock

import "os"

// flock/funlock on platforms without a unix flock(2) are no-ops: the
// design reserves locking as a placeholder where the OS doesn't offer
// advisory whole-file locks (see spec's concurrency model note).
func flock(f *os.File, mode Mode) error { return nil }

func funlock(f *os.File) error { return nil }
