package mbox

import (
	"bytes"
	"fmt"
)

// scanFromOffsets returns the byte offset of every "From " envelope
// separator line in data: offset 0 if the file starts with one, plus
// every occurrence immediately following a blank line, per the data
// model's "exactly one blank line separates messages" invariant.
func scanFromOffsets(data []byte) []int64 {
	var offsets []int64
	if bytes.HasPrefix(data, []byte("From ")) {
		offsets = append(offsets, 0)
	}
	sep := []byte("\n\nFrom ")
	idx := 0
	for {
		i := bytes.Index(data[idx:], sep)
		if i < 0 {
			break
		}
		offsets = append(offsets, int64(idx+i+2))
		idx = idx + i + 2
	}
	return offsets
}

// messageSpan returns the [start,end) byte range of message i among
// offsets, trimming the single blank-line separator before the next
// message (or EOF).
func messageSpan(data []byte, offsets []int64, i int) (int64, int64) {
	start := offsets[i]
	end := int64(len(data))
	if i+1 < len(offsets) {
		end = offsets[i+1] - 1
		if end < start {
			end = start
		}
	}
	return start, end
}

// splitHeaderBody locates the blank-line boundary between the header
// block and the body within a single message's bytes (which begin
// with the "From " line).
func splitHeaderBody(msg []byte) (fromLine, header, body []byte) {
	nl := bytes.IndexByte(msg, '\n')
	if nl < 0 {
		return msg, nil, nil
	}
	fromLine = msg[:nl]
	rest := msg[nl+1:]

	boundary := bytes.Index(rest, []byte("\n\n"))
	if boundary < 0 {
		return fromLine, rest, nil
	}
	header = rest[:boundary+1]
	if boundary+2 <= len(rest) {
		body = rest[boundary+2:]
	}
	return fromLine, header, body
}

// escapeFromLines prefixes any line in body that starts with "From "
// with "> ", so it is never mistaken for an envelope separator on a
// later read.
func escapeFromLines(body []byte) []byte {
	lines := bytes.Split(body, []byte("\n"))
	for i, line := range lines {
		if bytes.HasPrefix(line, []byte("From ")) {
			lines[i] = append([]byte("> "), line...)
		}
	}
	return bytes.Join(lines, []byte("\n"))
}

// errInvalidMailbox reports that the mailbox's first message does not
// begin at offset 0, per the data model's summary-validity invariant.
func errInvalidMailbox(firstOffset int64) error {
	return fmt.Errorf("mbox: first message From-line at offset %d, want 0", firstOffset)
}
