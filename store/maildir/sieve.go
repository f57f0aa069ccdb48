package maildir

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gosieve "git.sr.ht/~emersion/go-sieve"

	sprerrors "github.com/infodancer/sprucemail/errors"
)

// sieveCacheEntry holds the most recently parsed commands for one
// folder's script, along with the mtime they were parsed at.
type sieveCacheEntry struct {
	modTime time.Time
	cmds    []gosieve.Command
}

// sieveCache memoizes parsed Sieve scripts per folder full name,
// reparsing only when the script file's mtime has moved since the
// cached parse. Without it, a burst of deliveries into the same
// folder would re-read and re-parse the same ".sieve" file once per
// message.
type sieveCache struct {
	mu      sync.Mutex
	entries map[string]sieveCacheEntry
}

func newSieveCache() *sieveCache {
	return &sieveCache{entries: make(map[string]sieveCacheEntry)}
}

func (c *sieveCache) get(fullName string, modTime time.Time) ([]gosieve.Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fullName]
	if !ok || !entry.modTime.Equal(modTime) {
		return nil, false
	}
	return entry.cmds, true
}

func (c *sieveCache) put(fullName string, modTime time.Time, cmds []gosieve.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fullName] = sieveCacheEntry{modTime: modTime, cmds: cmds}
}

func (c *sieveCache) forget(fullName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fullName)
}

// sieveScriptPath returns the filesystem path for fullName's Sieve
// script, expected at ".sieve" inside the folder's own Maildir
// directory ("<base>/.sieve" for the Inbox).
func (s *Store) sieveScriptPath(fullName string) (string, error) {
	candidate := filepath.Join(pathFor(s.base, fullName), ".sieve")

	cleanBase := filepath.Clean(s.base)
	cleanCandidate := filepath.Clean(candidate)
	if !strings.HasPrefix(cleanCandidate+string(filepath.Separator), cleanBase+string(filepath.Separator)) {
		return "", sprerrors.ErrPathTraversal
	}

	return cleanCandidate, nil
}

// loadSieveScript loads and parses fullName's Sieve script, serving a
// cached parse if the file's mtime has not changed since the last
// load.
//
// Returns (nil, nil) if no script exists — delivery continues
// normally. Returns (nil, err) if the script exists but fails to
// parse — the caller logs and falls through to default placement
// (fail-safe).
func (s *Store) loadSieveScript(fullName string) ([]gosieve.Command, error) {
	path, err := s.sieveScriptPath(fullName)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		s.sieve.forget(fullName)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if cmds, ok := s.sieve.get(fullName, info.ModTime()); ok {
		return cmds, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	cmds, err := gosieve.Parse(f)
	if err != nil {
		return nil, err
	}

	s.sieve.put(fullName, info.ModTime(), cmds)
	slog.Debug("loaded sieve script", slog.String("folder", fullName), slog.Int("commands", len(cmds)))
	return cmds, nil
}
