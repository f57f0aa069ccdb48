package summary

import (
	"github.com/emersion/go-message/mail"
)

// NewFromMessage populates envelope and temporal fields on a fresh
// Record from the headers of a parsed message, the way the mbox folder
// does when it appends or rescans a message. uid must already have been
// assigned by the caller. A nil header (a message that did not parse)
// yields a Record with only uid set.
func NewFromMessage(uid string, header *mail.Header) *Record {
	rec := NewRecord(uid)
	if header == nil {
		return rec
	}

	if subject, err := header.Subject(); err == nil {
		rec.Subject = subject
	}
	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		rec.From = from[0].Address
	}
	if to, err := header.AddressList("To"); err == nil && len(to) > 0 {
		rec.To = to[0].Address
	}
	if cc, err := header.AddressList("Cc"); err == nil && len(cc) > 0 {
		rec.Cc = cc[0].Address
	}
	if msgID, err := header.MessageID(); err == nil {
		rec.MessageID = msgID
	}
	if refs, err := header.MsgIDList("References"); err == nil && len(refs) > 0 {
		rec.References = refs[len(refs)-1]
	}
	if date, err := header.Date(); err == nil {
		rec.DateSent = date
	}

	return rec
}
