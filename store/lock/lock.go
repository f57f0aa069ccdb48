// Package lock provides the advisory file locking mbox's shared
// single-file format needs for append/expunge (write lock) and
// get_message (read lock). Maildir needs no equivalent: its
// rename-based delivery is already safe across processes without a
// lock.
package lock

import "os"

// Lock is a held advisory lock on a file. The zero value is not valid;
// obtain one via Acquire.
type Lock struct {
	f        *os.File
	path     string
	ownsFile bool
}

// Mode selects the lock discipline.
type Mode int

const (
	// Shared allows concurrent readers, used for get_message.
	Shared Mode = iota
	// Exclusive excludes all other lockers, used for append/expunge.
	Exclusive
)

// Acquire takes an advisory lock on path (typically the mbox file),
// blocking until it is available.
func Acquire(path string, mode Mode) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsPermission(err) {
			f, err = os.Open(path)
		}
		if err != nil {
			return nil, err
		}
	}
	l := &Lock{f: f, path: path, ownsFile: true}
	if err := flock(l.f, mode); err != nil {
		_ = f.Close()
		return nil, err
	}
	return l, nil
}

// AcquireFile takes an advisory lock on an already-open file, which the
// caller continues to own (Release will not close it).
func AcquireFile(f *os.File, mode Mode) (*Lock, error) {
	l := &Lock{f: f, path: f.Name()}
	if err := flock(f, mode); err != nil {
		return nil, err
	}
	return l, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := funlock(l.f)
	if l.ownsFile {
		if cerr := l.f.Close(); err == nil {
			err = cerr
		}
	}
	l.f = nil
	return err
}
