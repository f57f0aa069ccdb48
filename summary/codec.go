package summary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// magic identifies a sprucemail folder summary file.
const magic uint32 = 0x53504d53 // "SPMS"

// Load decodes a Summary from r. backingMtime is the current
// modification time of the folder's backing store (the Maildir
// directory or the mbox file); if it is newer than the header's
// persisted timestamp, Load returns ErrStale without fully reading the
// record sequence, forcing the caller to rescan.
func Load(r io.Reader, backingMtime time.Time) (*Summary, error) {
	br := bufio.NewReader(r)

	var m uint32
	if err := binary.Read(br, binary.BigEndian, &m); err != nil {
		return nil, fmt.Errorf("summary: read magic: %w", err)
	}
	if m != magic {
		return nil, fmt.Errorf("summary: bad magic %x", m)
	}

	hdr, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	// The header stores whole seconds, so compare at that resolution.
	if backingMtime.Truncate(time.Second).After(hdr.Timestamp) {
		return nil, ErrStale
	}

	s := New()
	s.Header = hdr

	var n int32
	if err := binary.Read(br, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("summary: read count: %w", err)
	}
	for i := int32(0); i < n; i++ {
		rec, err := readRecord(br)
		if err != nil {
			return nil, fmt.Errorf("summary: read record %d: %w", i, err)
		}
		s.Add(rec)
	}
	s.dirty = false
	return s, nil
}

// Save encodes the Summary to w in folder order. The header's
// Timestamp should be set by the caller to the backing store's
// modification time immediately before calling Save, so a subsequent
// Load's staleness check is accurate.
func Save(w io.Writer, s *Summary) error {
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.BigEndian, magic); err != nil {
		return err
	}
	if err := writeHeader(bw, s.Header); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, int32(len(s.Records))); err != nil {
		return err
	}
	for _, rec := range s.Records {
		if err := writeRecord(bw, rec); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func readHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.BigEndian, &h.FormatVersion); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.BigEndian, &h.FlagsVersion); err != nil {
		return h, err
	}
	var ts int64
	if err := binary.Read(r, binary.BigEndian, &ts); err != nil {
		return h, err
	}
	h.Timestamp = time.Unix(ts, 0).UTC()
	if err := binary.Read(r, binary.BigEndian, &h.TotalCount); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.BigEndian, &h.UnreadCount); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.BigEndian, &h.DeletedCount); err != nil {
		return h, err
	}
	return h, nil
}

func writeHeader(w io.Writer, h Header) error {
	if err := binary.Write(w, binary.BigEndian, h.FormatVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.FlagsVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.Timestamp.Unix()); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.TotalCount); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, h.UnreadCount); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, h.DeletedCount)
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeTime(w io.Writer, t time.Time) error {
	return binary.Write(w, binary.BigEndian, t.Unix())
}

func readTime(r io.Reader) (time.Time, error) {
	var ts int64
	if err := binary.Read(r, binary.BigEndian, &ts); err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts, 0).UTC(), nil
}

func writeRecord(w io.Writer, r *Record) error {
	// DIRTY is transient and never persisted: clear it in the encoded
	// flags only, not in the in-memory record.
	persisted := r.Flags.Clear(FlagDirty)
	if err := binary.Write(w, binary.BigEndian, uint16(persisted)); err != nil {
		return err
	}
	for _, s := range []string{r.UID, r.From, r.To, r.Cc, r.Subject, r.MessageID, r.References} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	if err := writeTime(w, r.DateSent); err != nil {
		return err
	}
	if err := writeTime(w, r.DateReceived); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, r.Size); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, r.Lines); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, r.FromPos); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, r.FlagsPos)
}

func readRecord(r io.Reader) (*Record, error) {
	var flags uint16
	if err := binary.Read(r, binary.BigEndian, &flags); err != nil {
		return nil, err
	}
	rec := &Record{Flags: Flag(flags)}
	fields := make([]*string, 0, 7)
	fields = append(fields, &rec.UID, &rec.From, &rec.To, &rec.Cc, &rec.Subject, &rec.MessageID, &rec.References)
	for _, f := range fields {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		*f = s
	}
	var err error
	if rec.DateSent, err = readTime(r); err != nil {
		return nil, err
	}
	if rec.DateReceived, err = readTime(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &rec.Size); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &rec.Lines); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &rec.FromPos); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &rec.FlagsPos); err != nil {
		return nil, err
	}
	return rec, nil
}
