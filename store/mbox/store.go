// Package mbox implements store.Store and store.Folder for the
// single-file mbox on-disk format: one file per folder, with a
// ".sbd/" sibling directory for subfolders.
package mbox

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/infodancer/sprucemail/errors"
	"github.com/infodancer/sprucemail/metrics"
	"github.com/infodancer/sprucemail/store"
)

// reservedSuffixes is the set of name patterns a folder leaf name may
// never use, since they collide with the store's own bookkeeping
// files and directories.
var reservedSuffixes = []string{".summary", ".sbd", ".msf", "~"}

// IllegalName reports whether leaf is disallowed as a folder name.
func IllegalName(leaf string) bool {
	if leaf == "" {
		return false
	}
	for _, suf := range reservedSuffixes {
		if strings.HasSuffix(leaf, suf) || strings.HasPrefix(leaf, ".") {
			return true
		}
	}
	return false
}

// Store roots an mbox hierarchy at a base directory. Folder "a/b/c"
// maps to file "<base>/a.sbd/b.sbd/c"; the empty full name is the
// store root itself, displayed as Inbox, and lives at "<base>/.inbox"
// so it can coexist with a top-level ".sbd" subfolder directory.
type Store struct {
	base      string
	collector metrics.Collector

	mu      sync.Mutex
	folders map[string]*Folder
}

// NewStore creates a Store rooted at base. The directory is not
// created; use the root Folder's Create to initialize it.
func NewStore(base string) *Store {
	return &Store{base: filepath.Clean(base), folders: make(map[string]*Folder), collector: &metrics.NoopCollector{}}
}

// SetCollector installs collector as the metrics sink for folders this
// store produces from now on, as well as any already cached. A nil
// collector restores the no-op default.
func (s *Store) SetCollector(collector metrics.Collector) {
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector = collector
	for _, f := range s.folders {
		f.collector = collector
	}
}

// pathFor maps a full folder name to its on-disk mailbox file path.
func pathFor(base, fullName string) string {
	if fullName == "" {
		return filepath.Join(base, ".inbox")
	}
	parts := strings.Split(fullName, "/")
	dir := base
	for _, p := range parts[:len(parts)-1] {
		dir = filepath.Join(dir, p+".sbd")
	}
	return filepath.Join(dir, parts[len(parts)-1])
}

// summaryPathFor returns the sibling ".<name>.summary" path beside a
// mailbox file path.
func summaryPathFor(filePath string) string {
	dir := filepath.Dir(filePath)
	base := filepath.Base(filePath)
	return filepath.Join(dir, "."+base+".summary")
}

// sbdPathFor returns the sibling "<name>.sbd" subfolder directory
// beside a mailbox file path.
func sbdPathFor(filePath string) string {
	return filePath + ".sbd"
}

// Folder returns the (possibly newly constructed) Folder for fullName,
// caching it for subsequent lookups.
func (s *Store) Folder(fullName string) (store.Folder, error) {
	for _, leaf := range strings.Split(fullName, "/") {
		if IllegalName(leaf) {
			return nil, errors.New(errors.KindIllegalName, "mbox: illegal folder name component "+leaf)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.folders[fullName]; ok {
		return f, nil
	}

	path := pathFor(s.base, fullName)
	f := &Folder{
		store:     s,
		fullName:  fullName,
		path:      path,
		collector: s.collector,
	}
	s.folders[fullName] = f
	return f, nil
}

// Close is a no-op: file descriptors are owned by individual folders.
func (s *Store) Close() error { return nil }

func init() {
	var _ store.Store = (*Store)(nil)
}
