package maildir

import (
	"path/filepath"

	"github.com/infodancer/sprucemail/errors"
)

// reservedSubdirs is the exact set of reserved Maildir subdirectory names.
var reservedSubdirs = []string{"cur", "new", "tmp"}

// checkAccess walks the folder directory plus each of cur/new/tmp and
// computes the effective permission bits for the current process on
// each. Open fails if any of them resolves to a zero effective mode.
func checkAccess(folderPath string) (writable bool, err error) {
	paths := make([]string, 0, len(reservedSubdirs)+1)
	paths = append(paths, folderPath)
	for _, sub := range reservedSubdirs {
		paths = append(paths, filepath.Join(folderPath, sub))
	}

	writable = true
	for _, p := range paths {
		mode, err := effectiveMode(p)
		if err != nil {
			return false, err
		}
		if mode == 0 {
			return false, errors.New(errors.KindServiceUnavailable, "maildir: no access to "+p)
		}
		if mode&0o2 == 0 {
			writable = false
		}
	}
	return writable, nil
}
