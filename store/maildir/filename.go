package maildir

import (
	"sort"
	"strings"

	"github.com/infodancer/sprucemail/summary"
)

// tagTable is the Maildir version 2 filename flag-tag table (also used
// to decode version 1 filenames, which share the same tag characters).
var tagTable = []struct {
	tag  byte
	flag summary.Flag
}{
	{'R', summary.FlagAnswered},
	{'T', summary.FlagDeleted},
	{'D', summary.FlagDraft},
	{'F', summary.FlagFlagged},
	{'P', summary.FlagForwarded},
	{'S', summary.FlagSeen},
}

// encodeFlags renders flags as a sorted tag-character sequence per the
// version 2 filename format table.
func encodeFlags(flags summary.Flag) string {
	var tags []byte
	for _, e := range tagTable {
		if flags.Has(e.flag) {
			tags = append(tags, e.tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return string(tags)
}

// decodeFlags parses a tag-character sequence into a Flag bitset.
// Unknown tag characters are ignored.
func decodeFlags(tags string) summary.Flag {
	var flags summary.Flag
	for i := 0; i < len(tags); i++ {
		for _, e := range tagTable {
			if tags[i] == e.tag {
				flags = flags.Set(e.flag)
				break
			}
		}
	}
	return flags
}

// filenameInfo is a parsed "<uid>[:<ver>,<flags>]" Maildir filename.
type filenameInfo struct {
	UID     string
	Version int // 0 if the filename has no ':' separator
	Flags   summary.Flag
}

// parseFilename decodes a Maildir message filename. Files lacking a
// ':' have no encoded flags and Version is reported as 0.
func parseFilename(name string) filenameInfo {
	colon := strings.IndexByte(name, ':')
	if colon < 0 {
		return filenameInfo{UID: name}
	}
	uid := name[:colon]
	rest := name[colon+1:]

	// rest is "<ver>,<flags>"
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return filenameInfo{UID: uid}
	}
	verStr := rest[:comma]
	tags := rest[comma+1:]

	ver := 0
	switch verStr {
	case "1":
		ver = 1
	case "2":
		ver = 2
	default:
		ver = 2
	}

	return filenameInfo{UID: uid, Version: ver, Flags: decodeFlags(tags)}
}

// formatFilename renders a version 2 filename for the given UID and flags.
func formatFilename(uid string, flags summary.Flag) string {
	return uid + ":2," + encodeFlags(flags)
}

// uidKey returns the portion of a filename used for hashing/equality:
// everything before the first ':'.
func uidKey(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}

// hashUID computes a fold hash over the UID bytes up to the first ':'.
func hashUID(name string) uint32 {
	key := uidKey(name)
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return h
}

// equalUID compares two filenames up to the first ':' on either side.
func equalUID(a, b string) bool {
	return uidKey(a) == uidKey(b)
}
