// Package journal implements an append-only replay log for
// operations queued while a store is offline: entries accumulate in
// memory, get written to disk as a flat record stream, and are
// replayed (and dropped from the queue on success) once the store is
// reachable again.
package journal

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/infodancer/sprucemail/errors"
)

// EntryCodec knows how to decode, encode, and replay a journal's
// entries. Callers implement one per operation family (append,
// expunge, flag-set, ...).
type EntryCodec interface {
	// Load reads the next entry from r. It returns io.EOF when no
	// entry remains.
	Load(r *bufio.Reader) (Entry, error)
	// Write serializes e to w.
	Write(w *bufio.Writer, e Entry) error
	// Play re-applies e against the live store.
	Play(ctx context.Context, e Entry) error
}

// Entry is an opaque journaled operation; concrete types are defined
// by each EntryCodec implementation.
type Entry interface{}

// Journal is an append-only, replayable queue of Entry values backed
// by filename.
type Journal struct {
	filename string
	codec    EntryCodec

	mu    sync.Mutex
	queue []Entry
}

// Open constructs a Journal backed by filename, loading any entries
// already persisted there. A missing file is not an error: a brand
// new journal simply starts empty.
func Open(filename string, codec EntryCodec) (*Journal, error) {
	j := &Journal{filename: filename, codec: codec}

	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return j, nil
		}
		return nil, errors.Wrap(errors.KindIO, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		entry, err := codec.Load(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.KindIO, err)
		}
		j.queue = append(j.queue, entry)
	}
	return j, nil
}

// Append queues entry for a future Write/Replay.
func (j *Journal) Append(entry Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.queue = append(j.queue, entry)
}

// Len reports the number of entries currently queued.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.queue)
}

// Write persists the full queue to disk, truncating any previous
// contents, and fsyncs before returning.
func (j *Journal) Write() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o666)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, entry := range j.queue {
		if err := j.codec.Write(w, entry); err != nil {
			return errors.Wrap(errors.KindIO, err)
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	return nil
}

// Replay plays every queued entry in order. Entries that succeed are
// removed from the queue; entries that fail remain queued for a later
// Replay. The first failure's error is returned once every entry has
// been attempted.
func (j *Journal) Replay(ctx context.Context) error {
	j.mu.Lock()
	pending := j.queue
	j.mu.Unlock()

	var firstErr error
	var remaining []Entry
	for _, entry := range pending {
		if err := j.codec.Play(ctx, entry); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			remaining = append(remaining, entry)
			continue
		}
	}

	j.mu.Lock()
	j.queue = remaining
	j.mu.Unlock()

	slog.Debug("journal replay",
		slog.String("file", j.filename),
		slog.Int("played", len(pending)-len(remaining)),
		slog.Int("remaining", len(remaining)))

	return firstErr
}
