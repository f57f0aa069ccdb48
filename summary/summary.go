package summary

import (
	"errors"
	"time"
)

// FormatVersion is the on-disk binary layout version written by Save.
const FormatVersion = 1

// FlagsSchemaVersion identifies the meaning of the Flag bit layout.
// Bumped if the bit assignment in record.go ever changes.
const FlagsSchemaVersion = 1

// ErrStale is returned by Load when the backing store's modification
// time is newer than the summary's stored timestamp, per the data
// model's header-load invariant. Callers should rescan the backing
// store and rebuild the summary from scratch.
var ErrStale = errors.New("summary: stale, rescan required")

// Header is the versioned metadata block persisted ahead of the
// record sequence in the folder summary file.
type Header struct {
	FormatVersion int32
	FlagsVersion  int32
	Timestamp     time.Time
	TotalCount    int32
	UnreadCount   int32
	DeletedCount  int32
}

// Summary is a folder's in-memory, cached index of message records,
// kept in folder order. It owns the Records slice.
type Summary struct {
	Header  Header
	Records []*Record

	byUID map[string]*Record
	dirty bool // touched: needs rewrite even if no record changed
}

// New creates an empty Summary.
func New() *Summary {
	return &Summary{
		Header: Header{FormatVersion: FormatVersion, FlagsVersion: FlagsSchemaVersion},
		byUID:  make(map[string]*Record),
	}
}

// Count returns the number of records.
func (s *Summary) Count() int { return len(s.Records) }

// Index returns the i'th record in folder order.
func (s *Summary) Index(i int) *Record {
	if i < 0 || i >= len(s.Records) {
		return nil
	}
	return s.Records[i]
}

// UIDLookup returns the record with the given UID, or nil.
func (s *Summary) UIDLookup(uid string) *Record {
	if s.byUID == nil {
		s.reindex()
	}
	return s.byUID[uid]
}

// Add appends a record and indexes it by UID. The UID must be unique
// within the folder per the data model invariant.
func (s *Summary) Add(r *Record) {
	s.Records = append(s.Records, r)
	if s.byUID == nil {
		s.byUID = make(map[string]*Record)
	}
	s.byUID[r.UID] = r
	s.recount()
}

// Remove deletes the record with the given UID, if present.
func (s *Summary) Remove(uid string) {
	for i, r := range s.Records {
		if r.UID == uid {
			s.Records = append(s.Records[:i], s.Records[i+1:]...)
			delete(s.byUID, uid)
			s.recount()
			return
		}
	}
}

// Clear empties the summary.
func (s *Summary) Clear() {
	s.Records = nil
	s.byUID = make(map[string]*Record)
	s.Header.TotalCount, s.Header.UnreadCount, s.Header.DeletedCount = 0, 0, 0
}

// Reload discards all records, preparing the summary for a fresh
// backing-store scan (used after ErrStale or on first open).
func (s *Summary) Reload() { s.Clear() }

// Touch marks the header as needing a rewrite even if no record
// changed, e.g. after the directory mtime was set explicitly.
func (s *Summary) Touch() { s.dirty = true }

// NeedsSave reports whether Add, Remove or Touch was called since the
// last Load or Save.
func (s *Summary) NeedsSave() bool { return s.dirty }

func (s *Summary) reindex() {
	s.byUID = make(map[string]*Record, len(s.Records))
	for _, r := range s.Records {
		s.byUID[r.UID] = r
	}
}

func (s *Summary) recount() {
	var total, unread, deleted int32
	for _, r := range s.Records {
		total++
		if !r.Flags.Has(FlagSeen) {
			unread++
		}
		if r.Flags.Has(FlagDeleted) {
			deleted++
		}
	}
	s.Header.TotalCount, s.Header.UnreadCount, s.Header.DeletedCount = total, unread, deleted
	s.dirty = true
}
