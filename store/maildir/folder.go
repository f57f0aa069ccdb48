package maildir

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/infodancer/sprucemail/errors"
	"github.com/infodancer/sprucemail/metrics"
	"github.com/infodancer/sprucemail/search"
	"github.com/infodancer/sprucemail/store"
	"github.com/infodancer/sprucemail/summary"
)

// Folder is a single Maildir directory: <path>/{cur,new,tmp}.
type Folder struct {
	store    *Store
	fullName string
	path     string

	collector metrics.Collector

	mu        sync.Mutex
	sum       *summary.Summary
	writable  bool
	listeners []store.RenameListener
}

var _ store.Folder = (*Folder)(nil)

func (f *Folder) FullName() string { return f.fullName }

func (f *Folder) Kind() store.Kind { return store.CanHoldAnything }

func (f *Folder) summaryPath() string { return filepath.Join(f.path, ".summary") }

// Open computes the permitted access mode, then loads (or creates) the
// folder's summary.
func (f *Folder) Open(ctx context.Context) error {
	writable, err := checkAccess(f.path)
	if err != nil {
		return errors.Wrap(errors.KindServiceUnavailable, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writable = writable

	if f.sum == nil {
		if loaded, err := f.loadFromDiskLocked(); err == nil {
			f.sum = loaded
		} else {
			f.sum = summary.New()
		}
	}
	if err := f.syncLocked(); err != nil {
		return err
	}
	f.collectorOrNoop().FolderOpened("maildir")
	slog.Debug("maildir folder opened", slog.String("folder", f.fullName), slog.Bool("writable", f.writable))
	return nil
}

// Close flushes the summary. If expunge is true, deleted messages are
// purged first.
func (f *Folder) Close(ctx context.Context, expunge bool) error {
	if expunge {
		if err := f.Expunge(ctx, nil); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.persistLocked(); err != nil {
		return err
	}
	f.collectorOrNoop().FolderClosed("maildir")
	slog.Debug("maildir folder closed", slog.String("folder", f.fullName), slog.Bool("expunged", expunge))
	return nil
}

func (f *Folder) collectorOrNoop() metrics.Collector {
	if f.collector == nil {
		return &metrics.NoopCollector{}
	}
	return f.collector
}

// Create builds the folder directory and its cur/new/tmp subdirs,
// unwinding on partial failure.
func (f *Folder) Create(ctx context.Context, kind store.Kind) error {
	if err := os.Mkdir(f.path, 0o777); err != nil && !os.IsExist(err) {
		return errors.Wrap(errors.KindIO, err)
	}

	created := 0
	for _, sub := range reservedSubdirs {
		if err := os.Mkdir(filepath.Join(f.path, sub), 0o777); err != nil {
			if os.IsExist(err) {
				created++
				continue
			}
			for i := created - 1; i >= 0; i-- {
				_ = os.Remove(filepath.Join(f.path, reservedSubdirs[i]))
			}
			_ = os.Remove(f.path)
			return errors.Wrap(errors.KindIO, err)
		}
		created++
	}
	return nil
}

// Delete unlinks any cruft directly under the folder directory, then
// removes cur/new/tmp and finally the folder directory itself. On
// partial failure it attempts to recreate the subdirs so the folder
// remains usable, then surfaces the original error.
func (f *Folder) Delete(ctx context.Context) error {
	entries, err := os.ReadDir(f.path)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	for _, e := range entries {
		if isReservedSubdir(e.Name()) {
			continue
		}
		p := filepath.Join(f.path, e.Name())
		if e.IsDir() {
			err = os.RemoveAll(p)
		} else {
			err = os.Remove(p)
		}
		if err != nil {
			return errors.Wrap(errors.KindIO, err)
		}
	}

	removed := 0
	for _, sub := range reservedSubdirs {
		p := filepath.Join(f.path, sub)
		if rmErr := os.RemoveAll(p); rmErr != nil {
			for i := 0; i < removed; i++ {
				_ = os.Mkdir(filepath.Join(f.path, reservedSubdirs[i]), 0o777)
			}
			return errors.Wrap(errors.KindIO, rmErr)
		}
		removed++
	}

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.KindIO, err)
	}

	f.mu.Lock()
	f.sum = nil
	f.mu.Unlock()
	return nil
}

func isReservedSubdir(name string) bool {
	for _, s := range reservedSubdirs {
		if name == s {
			return true
		}
	}
	return false
}

// Rename moves the folder directory and recomputes the path, then
// fires OnRenamed listeners.
func (f *Folder) Rename(ctx context.Context, newFullName string) error {
	newPath := pathFor(f.store.base, newFullName)
	if err := os.Rename(f.path, newPath); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}

	oldFullName := f.fullName
	f.mu.Lock()
	f.path = newPath
	f.fullName = newFullName
	listeners := append([]store.RenameListener(nil), f.listeners...)
	f.mu.Unlock()

	f.store.mu.Lock()
	delete(f.store.folders, oldFullName)
	f.store.folders[newFullName] = f
	f.store.mu.Unlock()

	for _, l := range listeners {
		l(oldFullName, newFullName)
	}
	return nil
}

// NewName retargets this folder in memory after a parent rename,
// without touching backing storage.
func (f *Folder) NewName(parentFullName, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if parentFullName == "" {
		f.fullName = name
	} else {
		f.fullName = parentFullName + "/" + name
	}
	f.path = pathFor(f.store.base, f.fullName)
}

func (f *Folder) OnRenamed(l store.RenameListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

// List returns the full names of the store's folders matching glob (a
// filepath.Match pattern applied to the decoded full name).
func (f *Folder) List(ctx context.Context, glob string) ([]string, error) {
	entries, err := os.ReadDir(f.store.base)
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), ".") {
			continue
		}
		leaf := strings.ReplaceAll(strings.TrimPrefix(e.Name(), "."), ".", "/")
		if glob != "" {
			if ok, _ := filepath.Match(glob, leaf); !ok {
				continue
			}
		}
		names = append(names, leaf)
	}
	sort.Strings(names)
	return names, nil
}

// GetMessage locates uid by scanning cur/ then new/, promoting it from
// new/ to cur/ if found there (EEXIST tolerated).
func (f *Folder) GetMessage(ctx context.Context, uid string) (io.ReadCloser, error) {
	for _, sub := range []string{"cur", "new"} {
		dir := filepath.Join(f.path, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if !equalUID(e.Name(), uid) {
				continue
			}
			src := filepath.Join(dir, e.Name())
			if sub == "new" {
				dst := filepath.Join(f.path, "cur", e.Name())
				if err := os.Rename(src, dst); err == nil || os.IsExist(err) {
					src = dst
				}
			}
			rc, err := os.Open(src)
			if err != nil {
				return nil, errors.Wrap(errors.KindIO, err)
			}
			return rc, nil
		}
	}
	return nil, errors.New(errors.KindNoSuchMessage, "maildir: no such message "+uid)
}

// AppendMessage writes the message to tmp/<uid> via O_EXCL, then
// renames it into new/<uid>:2,<flags>. Any X-Spruce header is not
// stripped here since Maildir never writes one; flags live purely in
// the filename.
func (f *Folder) AppendMessage(ctx context.Context, msg io.Reader, flags summary.Flag) (string, error) {
	// Load and parse the folder's Sieve script (if any).
	// TODO(sprucemail#sieve): evaluate the parsed script against this message.
	// See git.sr.ht/~emersion/go-sieve for the parser; interpreter is not yet implemented.
	if sieveCmds, err := f.store.loadSieveScript(f.fullName); err != nil {
		slog.Debug("sieve script error, falling through to default delivery",
			slog.String("folder", f.fullName),
			slog.String("error", err.Error()),
		)
	} else {
		_ = sieveCmds // TODO(sprucemail#sieve): interpret
	}

	tmpDir := filepath.Join(f.path, "tmp")
	uid, err := newUID(tmpDir)
	if err != nil {
		return "", errors.Wrap(errors.KindIO, err)
	}

	tmpPath := filepath.Join(tmpDir, uid)
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return "", errors.Wrap(errors.KindIO, err)
	}

	rec := summary.NewRecord(uid)
	rec.DateReceived = time.Now()

	n, copyErr := io.Copy(file, msg)
	rec.Size = n
	if copyErr == nil {
		copyErr = file.Sync()
	}
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return "", errors.Wrap(errors.KindIO, copyErr)
	}

	newName := formatFilename(uid, flags)
	newPath := filepath.Join(f.path, "new", newName)
	if err := os.Rename(tmpPath, newPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", errors.Wrap(errors.KindIO, err)
	}

	rec.Flags = flags
	f.mu.Lock()
	f.sum.Add(rec)
	f.sum.Touch()
	f.mu.Unlock()

	return uid, nil
}

// Expunge unlinks each DELETED record's file (intersected with uids if
// non-nil) from whichever of cur/new contains it, then removes the
// record from the summary. Records absent on disk are treated as
// already expunged.
func (f *Folder) Expunge(ctx context.Context, uids store.UIDSet) error {
	f.mu.Lock()
	var targets []*summary.Record
	for _, rec := range f.sum.Records {
		if !rec.Flags.Has(summary.FlagDeleted) {
			continue
		}
		if !uids.Contains(rec.UID) {
			continue
		}
		targets = append(targets, rec)
	}
	f.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	byUID := make(map[string]struct{}, len(targets))
	for _, rec := range targets {
		byUID[rec.UID] = struct{}{}
	}

	for _, sub := range []string{"cur", "new"} {
		dir := filepath.Join(f.path, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, ok := byUID[uidKey(e.Name())]; !ok {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
				return errors.Wrap(errors.KindIO, err)
			}
		}
	}

	f.mu.Lock()
	for uid := range byUID {
		f.sum.Remove(uid)
	}
	f.sum.Touch()
	f.mu.Unlock()
	return nil
}

// GetUIDs returns all UIDs currently in the folder's summary.
func (f *Folder) GetUIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uids := make([]string, 0, f.sum.Count())
	for _, rec := range f.sum.Records {
		uids = append(uids, rec.UID)
	}
	return uids, nil
}

// SetMessageFlags applies (flags &^ mask) | (set & mask) to uid's
// record and marks it dirty for the next summary sync.
func (f *Folder) SetMessageFlags(ctx context.Context, uid string, mask, set summary.Flag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.sum.UIDLookup(uid)
	if rec == nil {
		return errors.New(errors.KindNoSuchMessage, "maildir: no such message "+uid)
	}
	rec.Flags = rec.Flags.Clear(mask).Set(set & mask)
	rec.MarkDirty()
	f.sum.Touch()
	return nil
}

// Search evaluates expression over the folder's summary via the
// search package's folder-aware evaluator.
func (f *Folder) Search(ctx context.Context, uids store.UIDSet, expression string) ([]string, error) {
	fs := search.NewFolderSearch(f)
	var restrict map[string]struct{}
	if uids != nil {
		restrict = map[string]struct{}(uids)
	}
	v, err := fs.Eval(ctx, restrict, expression)
	if err != nil {
		return nil, errors.Wrap(errors.KindSearchError, err)
	}
	if v.Kind != search.KindArray {
		return nil, errors.New(errors.KindSearchError, "maildir: search expression did not return a uid array")
	}
	return v.Array, nil
}

// Summary exposes the folder's cached message index.
func (f *Folder) Summary() *summary.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sum
}

// loadFromDiskLocked reads the persisted .summary file, rejecting it
// (ErrStale) if the folder directory's mtime is newer.
func (f *Folder) loadFromDiskLocked() (*summary.Summary, error) {
	fi, err := os.Stat(f.path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(f.summaryPath())
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return summary.Load(file, fi.ModTime())
}

// syncLocked runs the shared cur/new sync iterator described for
// Maildir summary load: decode on-disk flags, reconcile against the
// in-memory record (dirty wins, else disk wins), and add any file not
// already present in the summary.
func (f *Folder) syncLocked() error {
	seen := make(map[string]struct{})

	for _, sub := range []string{"cur", "new"} {
		dir := filepath.Join(f.path, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			info := parseFilename(e.Name())
			seen[info.UID] = struct{}{}

			rec := f.sum.UIDLookup(info.UID)
			if rec == nil {
				rec = summary.NewRecord(info.UID)
				if fi, statErr := e.Info(); statErr == nil {
					rec.Size = fi.Size()
					rec.DateReceived = fi.ModTime()
				}
				rec.Flags = info.Flags
				if sub == "new" {
					rec.Flags = rec.Flags.Set(summary.FlagRecent)
				}
				f.sum.Add(rec)
				continue
			}

			if rec.Flags.Has(summary.FlagDirty) {
				if err := f.rewriteFlagsLocked(sub, e.Name(), info.UID, rec.Flags); err == nil {
					rec.ClearDirty()
				}
			} else if rec.Flags != info.Flags {
				rec.Flags = info.Flags
			}
			if sub == "new" {
				rec.Flags = rec.Flags.Set(summary.FlagRecent)
			} else {
				rec.Flags = rec.Flags.Clear(summary.FlagRecent)
			}
		}
	}

	// Drop summary records whose backing file vanished.
	for _, rec := range append([]*summary.Record(nil), f.sum.Records...) {
		if _, ok := seen[rec.UID]; !ok {
			f.sum.Remove(rec.UID)
		}
	}

	f.sum.Touch()
	return nil
}

// rewriteFlagsLocked renames a message file within its current subdir
// to encode the in-memory flag set.
func (f *Folder) rewriteFlagsLocked(sub, oldName, uid string, flags summary.Flag) error {
	oldPath := filepath.Join(f.path, sub, oldName)
	newPath := filepath.Join(f.path, sub, formatFilename(uid, flags))
	return os.Rename(oldPath, newPath)
}

// persistLocked writes the .summary file and sets the folder
// directory's mtime to match, so the next Open's staleness check
// passes. Runs unconditionally on Close so a fresh folder (no prior
// .summary) gets one written even if nothing was touched.
func (f *Folder) persistLocked() error {
	now := time.Now()
	f.sum.Header.Timestamp = now

	file, err := os.Create(f.summaryPath())
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	defer func() { _ = file.Close() }()
	if err := summary.Save(file, f.sum); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	_ = os.Chtimes(f.path, now, now)
	return nil
}
