package mbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/infodancer/sprucemail/errors"
	"github.com/infodancer/sprucemail/metrics"
	"github.com/infodancer/sprucemail/search"
	"github.com/infodancer/sprucemail/store"
	"github.com/infodancer/sprucemail/store/lock"
	"github.com/infodancer/sprucemail/summary"
)

// Folder is a single mbox file, with an optional sibling ".sbd/"
// subfolder directory and a sibling ".<name>.summary" index.
type Folder struct {
	store    *Store
	fullName string
	path     string

	collector metrics.Collector

	mu        sync.Mutex
	file      *os.File
	writable  bool
	sum       *summary.Summary
	nextSeq   uint32
	listeners []store.RenameListener
}

func (f *Folder) collectorOrNoop() metrics.Collector {
	if f.collector == nil {
		return &metrics.NoopCollector{}
	}
	return f.collector
}

var _ store.Folder = (*Folder)(nil)

func (f *Folder) FullName() string { return f.fullName }

// Kind reports CanHoldMessages if the mailbox file exists and
// CanHoldFolders if a sibling .sbd directory exists; a folder may
// report both.
func (f *Folder) Kind() store.Kind {
	var k store.Kind
	if _, err := os.Stat(f.path); err == nil {
		k |= store.CanHoldMessages
	}
	if fi, err := os.Stat(sbdPathFor(f.path)); err == nil && fi.IsDir() {
		k |= store.CanHoldFolders
	}
	return k
}

func (f *Folder) summaryPath() string { return summaryPathFor(f.path) }

// Open opens the mailbox file RDWR, falling back to RO on a read-only
// filesystem, then loads or builds the summary.
func (f *Folder) Open(ctx context.Context) error {
	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o666)
	writable := true
	if err != nil {
		writable = false
		file, err = os.OpenFile(f.path, os.O_RDONLY, 0)
		if err != nil {
			return errors.Wrap(errors.KindServiceUnavailable, err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.file = file
	f.writable = writable

	if f.sum == nil {
		if loaded, err := f.loadPersistedSummaryLocked(); err == nil {
			f.sum = loaded
			f.nextSeq = highestSeq(loaded) + 1
			f.collectorOrNoop().FolderOpened("mbox")
			slog.Debug("mbox folder opened", slog.String("folder", f.fullName), slog.Bool("writable", f.writable), slog.Bool("rescanned", false))
			return nil
		}
	}
	if err := f.rescanLocked(); err != nil {
		return err
	}
	f.collectorOrNoop().FolderOpened("mbox")
	slog.Debug("mbox folder opened", slog.String("folder", f.fullName), slog.Bool("writable", f.writable), slog.Bool("rescanned", true))
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
	if f.file != nil {
		err := f.file.Close()
		f.file = nil
		if err != nil {
			return errors.Wrap(errors.KindIO, err)
		}
	}
	f.collectorOrNoop().FolderClosed("mbox")
	slog.Debug("mbox folder closed", slog.String("folder", f.fullName), slog.Bool("expunged", expunge))
	return nil
}

// Create makes the mailbox file (and, for CanHoldFolders, the sibling
// .sbd directory) if they do not already exist.
func (f *Folder) Create(ctx context.Context, kind store.Kind) error {
	if kind&store.CanHoldMessages != 0 {
		file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
		if err != nil && !os.IsExist(err) {
			return errors.Wrap(errors.KindIO, err)
		}
		if err == nil {
			_ = file.Close()
		}
	}
	if kind&store.CanHoldFolders != 0 {
		if err := os.MkdirAll(sbdPathFor(f.path), 0o777); err != nil {
			return errors.Wrap(errors.KindIO, err)
		}
	}
	return nil
}

// Delete removes this folder's storage: remove the .sbd/ subfolder
// directory first when present, then the mailbox file and its
// summary.
func (f *Folder) Delete(ctx context.Context) error {
	kind := f.Kind()
	if kind&store.CanHoldFolders != 0 {
		if err := os.RemoveAll(sbdPathFor(f.path)); err != nil {
			return errors.Wrap(errors.KindIO, err)
		}
	}
	if kind&store.CanHoldMessages != 0 {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(errors.KindIO, err)
		}
		_ = os.Remove(f.summaryPath())
	}
	f.mu.Lock()
	f.sum = nil
	f.mu.Unlock()
	return nil
}

// Rename moves the mailbox file (and its summary and .sbd sibling, if
// present) to the path for newFullName, then fires OnRenamed listeners.
func (f *Folder) Rename(ctx context.Context, newFullName string) error {
	newPath := pathFor(f.store.base, newFullName)
	if err := os.MkdirAll(filepath.Dir(newPath), 0o777); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	if _, err := os.Stat(f.path); err == nil {
		if err := os.Rename(f.path, newPath); err != nil {
			return errors.Wrap(errors.KindIO, err)
		}
	}
	if _, err := os.Stat(f.summaryPath()); err == nil {
		_ = os.Rename(f.summaryPath(), summaryPathFor(newPath))
	}
	if fi, err := os.Stat(sbdPathFor(f.path)); err == nil && fi.IsDir() {
		_ = os.Rename(sbdPathFor(f.path), sbdPathFor(newPath))
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

// List enumerates the sibling .sbd/ directory (or the store root for
// the top folder), filtering reserved suffixes and hidden names.
func (f *Folder) List(ctx context.Context, glob string) ([]string, error) {
	dir := sbdPathFor(f.path)
	if f.fullName == "" {
		dir = f.store.base
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindIO, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || IllegalName(name) {
			continue
		}
		leaf := strings.TrimSuffix(name, ".sbd")
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

// GetMessage seeks to uid's frompos and returns its header+body bytes.
func (f *Folder) GetMessage(ctx context.Context, uid string) (io.ReadCloser, error) {
	f.mu.Lock()
	rec := f.sum.UIDLookup(uid)
	f.mu.Unlock()
	if rec == nil {
		return nil, errors.New(errors.KindNoSuchMessage, "mbox: no such message "+uid)
	}

	rl, err := lock.AcquireFile(f.file, lock.Shared)
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, err)
	}
	defer func() { _ = rl.Release() }()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errors.Wrap(errors.KindIO, err)
	}
	if rec.FromPos < 0 || rec.FromPos >= int64(len(data)) {
		return nil, errors.New(errors.KindNoSuchMessage, "mbox: stale offset for "+uid)
	}

	offsets := scanFromOffsets(data)
	idx := indexOfOffset(offsets, rec.FromPos)
	if idx < 0 {
		return nil, errors.New(errors.KindNoSuchMessage, "mbox: offset for "+uid+" no longer a From line")
	}
	start, end := messageSpan(data, offsets, idx)
	// Skip the "From " envelope line; it is not part of the message.
	if nl := bytes.IndexByte(data[start:end], '\n'); nl >= 0 {
		start += int64(nl) + 1
	}
	return io.NopCloser(bytes.NewReader(data[start:end])), nil
}

// AppendMessage seeks to EOF, synthesizes a From line, and writes the
// message body through the interior-From-line escape filter. On any
// write failure it truncates back to the pre-append length.
func (f *Folder) AppendMessage(ctx context.Context, msg io.Reader, flags summary.Flag) (string, error) {
	raw, err := io.ReadAll(msg)
	if err != nil {
		return "", errors.Wrap(errors.KindIO, err)
	}

	mr, parseErr := mail.CreateReader(bytes.NewReader(raw))
	var header *mail.Header
	if parseErr == nil {
		header = &mr.Header
	}

	wl, err := lock.AcquireFile(f.file, lock.Exclusive)
	if err != nil {
		return "", errors.Wrap(errors.KindIO, err)
	}
	defer func() { _ = wl.Release() }()

	f.mu.Lock()
	defer f.mu.Unlock()

	preLen, err := f.file.Seek(0, io.SeekEnd)
	if err != nil {
		return "", errors.Wrap(errors.KindIO, err)
	}

	uid := sequenceUID(f.nextSeq)
	f.nextSeq++

	var buf bytes.Buffer
	if preLen > 0 {
		buf.WriteByte('\n')
	}
	fromPos := preLen + int64(buf.Len())
	buf.WriteString(synthesizeFromLine(header, time.Now()))
	buf.WriteByte('\n')

	headerBytes, body := splitRawHeaderBody(raw)
	headerBytes = stripXSpruce(headerBytes)
	xspruceValue := EncodeXSpruce(uid, flags)
	buf.Write(headerBytes)
	buf.WriteString("X-Spruce: ")
	flagsPos := fromPos + int64(buf.Len())
	buf.WriteString(xspruceValue)
	buf.WriteString("\r\n\r\n")
	buf.Write(escapeFromLines(body))
	buf.WriteByte('\n')
	// headerBytes already ends with a single '\n' terminating the last
	// original header line; the X-Spruce line above supplies its own
	// trailing blank-line separator before the body.

	if _, err := f.file.Write(buf.Bytes()); err != nil {
		_ = f.file.Truncate(preLen)
		return "", errors.Wrap(errors.KindIO, err)
	}
	if err := f.file.Sync(); err != nil {
		_ = f.file.Truncate(preLen)
		return "", errors.Wrap(errors.KindIO, err)
	}

	rec := summary.NewFromMessage(uid, header)
	rec.FromPos = fromPos
	rec.FlagsPos = flagsPos
	rec.Flags = flags
	rec.Size = int64(len(raw))
	rec.DateReceived = time.Now()
	f.sum.Add(rec)
	f.sum.Touch()

	return uid, nil
}

// splitRawHeaderBody splits a freshly submitted message's raw bytes
// (which have no leading "From " line) into header bytes (ending with
// the newline of the last header line; the blank separator line is
// dropped) and body bytes.
func splitRawHeaderBody(raw []byte) (header, body []byte) {
	boundary := bytes.Index(raw, []byte("\n\n"))
	if boundary < 0 {
		return raw, nil
	}
	return raw[:boundary+1], raw[boundary+2:]
}

// stripXSpruce removes any pre-existing X-Spruce header line from
// header bytes, since the folder assigns its own.
func stripXSpruce(header []byte) []byte {
	lines := bytes.Split(header, []byte("\n"))
	out := lines[:0]
	for _, line := range lines {
		if bytes.HasPrefix(bytes.ToLower(bytes.TrimLeft(line, " \t")), []byte("x-spruce:")) {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

// Expunge rewrites the mailbox to a sibling temp file, dropping
// messages flagged DELETED (intersected with uids if non-nil), then
// atomically renames over the original.
func (f *Folder) Expunge(ctx context.Context, uids store.UIDSet) error {
	f.mu.Lock()
	hasDeleted := false
	for _, rec := range f.sum.Records {
		if rec.Flags.Has(summary.FlagDeleted) && uids.Contains(rec.UID) {
			hasDeleted = true
			break
		}
	}
	f.mu.Unlock()
	if !hasDeleted {
		return nil
	}

	wl, err := lock.AcquireFile(f.file, lock.Exclusive)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	defer func() { _ = wl.Release() }()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	offsets := scanFromOffsets(data)

	tmpPath, tmpFile, err := createExpungeTemp(f.path)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	cleanTmp := true
	defer func() {
		if cleanTmp {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	f.mu.Lock()
	defer f.mu.Unlock()
	newSum := summary.New()
	var offset int64
	first := true
	for _, rec := range f.sum.Records {
		if rec.Flags.Has(summary.FlagDeleted) && uids.Contains(rec.UID) {
			continue
		}
		idx := indexOfOffset(offsets, rec.FromPos)
		if idx < 0 || idx >= len(offsets) {
			continue
		}
		start, end := messageSpan(data, offsets, idx)
		fromLine, header, body := splitHeaderBody(data[start:end])
		header = stripXSpruce(header)
		xspruce := "X-Spruce: " + EncodeXSpruce(rec.UID, rec.Flags)

		var buf bytes.Buffer
		if !first {
			buf.WriteByte('\n')
		}
		first = false
		newFromPos := offset + int64(buf.Len())
		buf.Write(fromLine)
		buf.WriteByte('\n')
		buf.Write(header)
		flagsOffset := newFromPos + int64(buf.Len()) + int64(len("X-Spruce: "))
		buf.WriteString(xspruce)
		buf.WriteString("\r\n\r\n")
		buf.Write(body)

		if _, werr := tmpFile.Write(buf.Bytes()); werr != nil {
			return errors.Wrap(errors.KindIO, werr)
		}
		offset = newFromPos + int64(buf.Len())

		rec.FromPos = newFromPos
		rec.FlagsPos = flagsOffset
		rec.ClearDirty()
		newSum.Add(rec)
	}
	if !first {
		if _, werr := tmpFile.Write([]byte("\n")); werr != nil {
			return errors.Wrap(errors.KindIO, werr)
		}
	}

	if err := tmpFile.Sync(); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	cleanTmp = false

	if f.file != nil {
		_ = f.file.Close()
	}
	file, err := os.OpenFile(f.path, os.O_RDWR, 0o666)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	f.file = file
	f.sum = newSum
	f.sum.Touch()
	return nil
}

func createExpungeTemp(path string) (string, *os.File, error) {
	for attempt := 0; attempt < 10; attempt++ {
		candidate := fmt.Sprintf("%s.%d.%06d", path, os.Getpid(), time.Now().UnixNano()%1000000)
		f, err := os.OpenFile(candidate, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
		if err == nil {
			return candidate, f, nil
		}
		if !os.IsExist(err) {
			return "", nil, err
		}
	}
	return "", nil, fmt.Errorf("mbox: could not create expunge temp file for %s", path)
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
// record and marks it dirty.
func (f *Folder) SetMessageFlags(ctx context.Context, uid string, mask, set summary.Flag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.sum.UIDLookup(uid)
	if rec == nil {
		return errors.New(errors.KindNoSuchMessage, "mbox: no such message "+uid)
	}
	rec.Flags = rec.Flags.Clear(mask).Set(set & mask)
	rec.MarkDirty()
	f.sum.Touch()
	return nil
}

// Search evaluates expression over the folder's summary.
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
		return nil, errors.New(errors.KindSearchError, "mbox: search expression did not return a uid array")
	}
	return v.Array, nil
}

// Summary exposes the folder's cached message index.
func (f *Folder) Summary() *summary.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sum
}

func (f *Folder) loadPersistedSummaryLocked() (*summary.Summary, error) {
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

// rescanLocked parses the mailbox from offset 0, building a fresh
// summary. If the first message's From-line is not at offset 0, the
// existing summary (if any) is invalid and rescan fails.
func (f *Folder) rescanLocked() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}

	offsets := scanFromOffsets(data)
	if len(offsets) > 0 && offsets[0] != 0 {
		return errors.Wrap(errors.KindIO, errInvalidMailbox(offsets[0]))
	}

	sum := summary.New()
	var maxSeq uint32
	for i := range offsets {
		start, end := messageSpan(data, offsets, i)
		fromLine, header, body := splitHeaderBody(data[start:end])

		mr, parseErr := mail.CreateReader(bytes.NewReader(append(append([]byte{}, header...), body...)))
		var mh *mail.Header
		if parseErr == nil {
			mh = &mr.Header
		}

		headerStart := start + int64(len(fromLine)) + 1

		var uid string
		var flags summary.Flag
		flagsPos := int64(-1)
		if value, valOffset, found := findXSpruce(header); found {
			if decodedUID, decodedFlags, ok := DecodeXSpruce(value); ok {
				uid = decodedUID
				flags = decodedFlags
				flagsPos = headerStart + int64(valOffset)
			}
		}
		if uid == "" {
			flags = flagsFromStatus(header)
			maxSeq++
			uid = sequenceUID(maxSeq)
		} else if n, err := parseHexUint32(uid); err == nil && n > maxSeq {
			maxSeq = n
		}

		rec := summary.NewFromMessage(uid, mh)
		rec.Flags = flags
		rec.FromPos = start
		rec.FlagsPos = flagsPos
		rec.Size = int64(end - start)
		sum.Add(rec)
	}

	f.sum = sum
	f.nextSeq = maxSeq + 1
	f.sum.Touch()
	return nil
}

func parseHexUint32(s string) (uint32, error) {
	var n uint32
	_, err := fmt.Sscanf(s, "%08x", &n)
	return n, err
}

func highestSeq(sum *summary.Summary) uint32 {
	var max uint32
	for _, rec := range sum.Records {
		if n, err := parseHexUint32(rec.UID); err == nil && n > max {
			max = n
		}
	}
	return max
}

func indexOfOffset(offsets []int64, target int64) int {
	for i, o := range offsets {
		if o == target {
			return i
		}
	}
	return -1
}

// persistLocked writes the .summary file beside the mailbox, stamping
// the header timestamp with the mailbox's current mtime.
func (f *Folder) persistLocked() error {
	fi, err := os.Stat(f.path)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	f.sum.Header.Timestamp = fi.ModTime()

	file, err := os.Create(f.summaryPath())
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	defer func() { _ = file.Close() }()
	if err := summary.Save(file, f.sum); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	return nil
}
