// Package cache implements a content-addressed disk cache for opaque
// streams: a two-level hash-directory layout, atomic commit via
// temp-then-rename, and atime/cap-driven expiration.
package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/infodancer/sprucemail/errors"
	"github.com/infodancer/sprucemail/metrics"
)

// Cache is a content-addressed disk cache rooted at a directory.
type Cache struct {
	root      string
	maxBytes  int64
	collector metrics.Collector

	mu sync.Mutex
}

// New creates a Cache rooted at root with maxBytes as the total-size
// cap enforced by Expire. A maxBytes of 0 disables the cap.
func New(root string, maxBytes int64) *Cache {
	return &Cache{root: filepath.Clean(root), maxBytes: maxBytes, collector: &metrics.NoopCollector{}}
}

// SetCollector installs collector as the metrics sink for cache hits,
// misses, and expirations. A nil collector restores the no-op default.
func (c *Cache) SetCollector(collector metrics.Collector) {
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	c.collector = collector
}

// hashDir returns the two-hex-digit directory name for key: the low
// six bits of a simple multiplicative hash over its bytes.
func hashDir(key string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return fmt.Sprintf("%02x", h&0x3f)
}

func (c *Cache) keyPath(key string) string {
	return filepath.Join(c.root, hashDir(key), key)
}

func (c *Cache) tmpDir() string { return filepath.Join(c.root, "tmp") }

// Add creates a new temp file under tmp/ and returns a WriteStream
// for it. If the temp file cannot be created (e.g. tmp/ missing or
// unwritable), the returned stream is entirely memory-backed and
// Commit will always fail for it.
func (c *Cache) Add(key string) (*WriteStream, error) {
	if err := os.MkdirAll(c.tmpDir(), 0o777); err != nil {
		return newMemoryStream(c, key), nil
	}
	tmpPath := filepath.Join(c.tmpDir(), uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return newMemoryStream(c, key), nil
	}
	return newFileStream(c, key, tmpPath, f), nil
}

// Commit finalizes ws, renaming its temp file into the key's final
// hash-directory path. It fails if anything spilled into the memory
// overflow tail (the payload is not entirely on disk) or the flush
// failed; on failure it returns a read-only stream over whatever was
// successfully written.
func (c *Cache) Commit(ws *WriteStream) (*ReadStream, error) {
	if ws.spilled || ws.file == nil {
		return ws.readBack(), errors.New(errors.KindIO, "cache: commit failed, payload not entirely on disk")
	}
	if err := ws.file.Sync(); err != nil {
		return ws.readBack(), errors.Wrap(errors.KindIO, err)
	}
	if err := ws.file.Close(); err != nil {
		return ws.readBack(), errors.Wrap(errors.KindIO, err)
	}
	ws.file = nil

	dir := filepath.Dir(c.keyPath(ws.key))
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, errors.Wrap(errors.KindIO, err)
	}
	if err := os.Rename(ws.path, c.keyPath(ws.key)); err != nil {
		return nil, errors.Wrap(errors.KindIO, err)
	}
	ws.committed = true
	return c.Get(ws.key)
}

// Abort marks ws so its temp file is unlinked instead of committed.
func (c *Cache) Abort(ws *WriteStream) {
	ws.aborted = true
	if ws.file != nil {
		_ = ws.file.Close()
		ws.file = nil
	}
	if ws.path != "" {
		_ = os.Remove(ws.path)
	}
}

// Get opens a read-only stream on the committed file for key.
func (c *Cache) Get(key string) (*ReadStream, error) {
	f, err := os.Open(c.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			c.collector.CacheMiss()
			return nil, errors.New(errors.KindNoSuchMessage, "cache: no such key "+key)
		}
		return nil, errors.Wrap(errors.KindIO, err)
	}
	c.collector.CacheHit()
	return &ReadStream{file: f}, nil
}

// Rekey links (or, for symlinks, re-symlinks) old's committed file to
// new's path.
func (c *Cache) Rekey(oldKey, newKey string) error {
	oldPath := c.keyPath(oldKey)
	newPath := c.keyPath(newKey)
	if err := os.MkdirAll(filepath.Dir(newPath), 0o777); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}

	if target, err := os.Readlink(oldPath); err == nil {
		if err := os.Symlink(target, newPath); err != nil {
			return errors.Wrap(errors.KindIO, err)
		}
		return nil
	}
	if err := os.Link(oldPath, newPath); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	return nil
}

// ExpireKey removes a single committed key unconditionally.
func (c *Cache) ExpireKey(key string) error {
	if err := os.Remove(c.keyPath(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.KindIO, err)
	}
	return nil
}

// Delete removes the entire cache root.
func (c *Cache) Delete() error {
	if err := os.RemoveAll(c.root); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	return nil
}

// Rename moves the cache root to newRoot.
func (c *Cache) Rename(newRoot string) error {
	if err := os.Rename(c.root, newRoot); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	c.root = filepath.Clean(newRoot)
	return nil
}

type expireCandidate struct {
	path  string
	atime int64
	size  int64
}

// ExpireAll walks every hash directory and removes every non-symlink
// entry regardless of the size cap.
func (c *Cache) ExpireAll() error {
	candidates, err := c.collectCandidates()
	if err != nil {
		return err
	}
	var removed int
	for _, cand := range candidates {
		if err := os.Remove(cand.path); err != nil && !os.IsNotExist(err) {
			c.collector.CacheExpired(removed)
			return errors.Wrap(errors.KindIO, err)
		}
		removed++
	}
	c.collector.CacheExpired(removed)
	slog.Debug("cache expire-all", slog.String("dir", c.root), slog.Int("removed", removed))
	return nil
}

// Expire walks the hash directories and, if the total size of
// non-symlink entries exceeds the configured cap, unlinks oldest-atime
// files first until the total is under cap. Symlinks are exempt
// (user pinning).
func (c *Cache) Expire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxBytes <= 0 {
		return nil
	}
	candidates, err := c.collectCandidates()
	if err != nil {
		return err
	}

	var total int64
	for _, cand := range candidates {
		total += cand.size
	}
	if total <= c.maxBytes {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].atime < candidates[j].atime })
	var removed int
	for _, cand := range candidates {
		if total <= c.maxBytes {
			break
		}
		if err := os.Remove(cand.path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			c.collector.CacheExpired(removed)
			return errors.Wrap(errors.KindIO, err)
		}
		total -= cand.size
		removed++
	}
	c.collector.CacheExpired(removed)
	if removed > 0 {
		slog.Debug("cache expire", slog.String("dir", c.root), slog.Int("removed", removed), slog.Int64("total_bytes", total))
	}
	return nil
}

func (c *Cache) collectCandidates() ([]expireCandidate, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindIO, err)
	}

	var out []expireCandidate
	for _, dirEnt := range entries {
		if !dirEnt.IsDir() || dirEnt.Name() == "tmp" {
			continue
		}
		sub := filepath.Join(c.root, dirEnt.Name())
		files, err := os.ReadDir(sub)
		if err != nil {
			continue
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.Mode()&os.ModeSymlink != 0 {
				continue
			}
			path := filepath.Join(sub, f.Name())
			out = append(out, expireCandidate{path: path, atime: accessTime(info), size: info.Size()})
		}
	}
	return out, nil
}
