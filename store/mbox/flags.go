package mbox

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/infodancer/sprucemail/summary"
)

// xSpruceHeader is the byte-offset-reporting regex for the X-Spruce
// header: case-insensitive, start of line, optional leading
// whitespace in the value. The match's end is the value offset the
// data model calls flagspos.
var xSpruceHeader = regexp.MustCompile(`(?im)^X-Spruce:[ \t]*`)

// statusHeader/xStatusHeader fall back to the traditional Status/
// X-Status lines when no X-Spruce header is present.
var statusHeader = regexp.MustCompile(`(?im)^Status:[ \t]*([^\r\n]*)`)
var xStatusHeader = regexp.MustCompile(`(?im)^X-Status:[ \t]*([^\r\n]*)`)

// findXSpruce locates the X-Spruce header's value within header
// (header bytes relative to the start of the message, NOT the file),
// returning the value, its offset relative to header's start, and
// whether it was found.
func findXSpruce(header []byte) (value string, offset int, found bool) {
	loc := xSpruceHeader.FindIndex(header)
	if loc == nil {
		return "", -1, false
	}
	start := loc[1]
	end := start
	for end < len(header) && header[end] != '\n' && header[end] != '\r' {
		end++
	}
	return strings.TrimSpace(string(header[start:end])), start, true
}

// statusFlagTable is the Status:/X-Status: tag table, distinct from
// both Maildir tag tables.
var statusFlagTable = map[byte]summary.Flag{
	'F': summary.FlagFlagged,
	'A': summary.FlagAnswered,
	'D': summary.FlagDeleted,
	'R': summary.FlagSeen,
}

// flagsFromStatus decodes the Status/X-Status fallback tag strings.
func flagsFromStatus(header []byte) summary.Flag {
	var flags summary.Flag
	for _, re := range []*regexp.Regexp{statusHeader, xStatusHeader} {
		m := re.FindSubmatch(header)
		if m == nil {
			continue
		}
		for _, c := range m[1] {
			if f, ok := statusFlagTable[c]; ok {
				flags = flags.Set(f)
			}
		}
	}
	return flags
}

// encodeXSpruceUID renders uid as the 8-hex-digit form required by the
// X-Spruce encoding when it is a plain decimal integer; other UIDs are
// written verbatim. A sequenceUID value made only of decimal digits
// (such as "00000010") takes the decimal path as well.
func encodeXSpruceUID(uid string) string {
	if n, err := strconv.ParseUint(uid, 10, 32); err == nil {
		return fmt.Sprintf("%08x", uint32(n))
	}
	return uid
}

// EncodeXSpruce renders the "<uid8hex>-<flags4hex>" value, clearing
// the transient DIRTY bit before encoding (it is never persisted).
func EncodeXSpruce(uid string, flags summary.Flag) string {
	return fmt.Sprintf("%s-%04x", encodeXSpruceUID(uid), uint16(flags.Clear(summary.FlagDirty)))
}

// DecodeXSpruce parses a "<uid>-<flags4hex>" value.
func DecodeXSpruce(value string) (uid string, flags summary.Flag, ok bool) {
	i := strings.LastIndexByte(value, '-')
	if i < 0 {
		return "", 0, false
	}
	n, err := strconv.ParseUint(value[i+1:], 16, 16)
	if err != nil {
		return "", 0, false
	}
	return value[:i], summary.Flag(n), true
}

// sequenceUID renders the hex-encoded 32-bit sequence integer used as
// a mbox message's UID when no X-Spruce header assigns one yet.
func sequenceUID(seq uint32) string {
	return fmt.Sprintf("%08x", seq)
}
