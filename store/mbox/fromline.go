package mbox

import (
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// defaultFromAddress is used when neither Sender nor From resolves to
// a mailbox.
const defaultFromAddress = "postmaster@localhost"

// fromLineFormat renders the weekday/month/day/time/year the way
// traditional mbox readers expect: a ctime-like, space-padded day.
const fromLineFormat = "Mon Jan _2 15:04:05 2006"

// synthesizeFromLine builds the "From <addr> <date>" envelope
// separator line for a message being appended, following the address
// and date preference order in the data model.
func synthesizeFromLine(header *mail.Header, now time.Time) string {
	addr := fromAddress(header)
	when := fromDate(header, now)
	return "From " + addr + " " + when.UTC().Format(fromLineFormat)
}

func fromAddress(header *mail.Header) string {
	if header != nil {
		if list, err := header.AddressList("Sender"); err == nil && len(list) > 0 {
			return list[0].Address
		}
		if list, err := header.AddressList("From"); err == nil && len(list) > 0 {
			return list[0].Address
		}
	}
	return defaultFromAddress
}

// receivedDateLayouts are the RFC 5322 date layouts attempted against
// the trailing ";"-segment of a Received header, most specific first.
var receivedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
}

func fromDate(header *mail.Header, now time.Time) time.Time {
	if header != nil {
		if received := header.Get("Received"); received != "" {
			segs := strings.Split(received, ";")
			last := strings.TrimSpace(segs[len(segs)-1])
			for _, layout := range receivedDateLayouts {
				if t, err := time.Parse(layout, last); err == nil {
					return t
				}
			}
		}
		if date, err := header.Date(); err == nil && !date.IsZero() {
			return date
		}
	}
	return now
}
