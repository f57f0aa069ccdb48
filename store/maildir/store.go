// Package maildir implements store.Store and store.Folder for the
// Maildir on-disk format: a slash-to-dot encoded directory layout
// with cur/new/tmp subdirectories per folder.
package maildir

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/infodancer/sprucemail/metrics"
	"github.com/infodancer/sprucemail/store"
)

// Store roots a Maildir hierarchy at a base directory. Each folder
// full name "a/b/c" maps to a directory "<base>/.a.b.c/"; the empty
// full name is the base directory itself (displayed as Inbox).
type Store struct {
	base      string
	collector metrics.Collector

	mu      sync.Mutex
	folders map[string]*Folder

	sieve *sieveCache
}

// NewStore creates a Store rooted at base. The directory is not
// created; use the root Folder's Create to initialize it.
func NewStore(base string) *Store {
	return &Store{
		base:      filepath.Clean(base),
		folders:   make(map[string]*Folder),
		collector: &metrics.NoopCollector{},
		sieve:     newSieveCache(),
	}
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

// pathFor maps a full folder name to its on-disk directory.
func pathFor(base, fullName string) string {
	if fullName == "" {
		return base
	}
	encoded := "." + strings.ReplaceAll(fullName, "/", ".")
	return filepath.Join(base, encoded)
}

// Folder returns the (possibly newly constructed) Folder for fullName,
// caching it for subsequent lookups.
func (s *Store) Folder(fullName string) (store.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.folders[fullName]; ok {
		return f, nil
	}

	f := &Folder{
		store:     s,
		fullName:  fullName,
		path:      pathFor(s.base, fullName),
		collector: s.collector,
	}
	s.folders[fullName] = f
	return f, nil
}

// Close is a no-op: Maildir folders hold no persistent descriptors
// between operations.
func (s *Store) Close() error { return nil }

func init() {
	var _ store.Store = (*Store)(nil)
}
