package smtp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"regexp"

	"github.com/emersion/go-message"

	"github.com/infodancer/sprucemail/errors"
)

// strippedHeaderNames are removed from the outgoing message the way
// prepare_message did: Bcc/Resent-Bcc must never reach the wire, and
// Content-Length is meaningless once the message has been rewritten.
var strippedHeaderNames = []string{"Bcc", "Resent-Bcc", "Content-Length"}

func stripHeaderRegexp(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^` + regexp.QuoteMeta(name) + `:[^\r\n]*\r?\n(?:[ \t][^\r\n]*\r?\n)*`)
}

// prepareMessage strips Bcc/Resent-Bcc/Content-Length header lines
// (including any folded continuation lines) from raw, the rewrite
// step the original performed by reparsing into a GMimeMessage and
// removing headers before sending.
func prepareMessage(raw []byte) []byte {
	for _, name := range strippedHeaderNames {
		raw = stripHeaderRegexp(name).ReplaceAll(raw, nil)
	}
	return raw
}

// Data sends the DATA command and streams raw (after header stripping
// and MIME re-encoding) to the server, canonicalizing line endings to
// CRLF and dot-stuffing any line that begins with a ".", then
// terminates with the standalone "." line. The BODY=8BITMIME decision
// recorded by the most recent Mail call for this envelope governs
// whether 8-bit leaf parts are re-encoded quoted-printable (no
// 8BITMIME negotiated) or left as 8bit (8BITMIME negotiated).
func (c *Client) Data(ctx context.Context, raw []byte) error {
	if err := c.sendCmd("DATA", "DATA\r\n"); err != nil {
		return err
	}
	rep, err := readReply(c.br)
	if err != nil {
		return err
	}
	if rep.Code != 354 {
		return errors.Protocol(rep.Code, "DATA command failed: "+rep.Message())
	}

	body := prepareMessage(raw)
	body = reencodeMIME(body, c.eightBitNegotiated)
	if err := writeDotStuffed(c.conn, bytes.NewReader(body)); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	if err := c.send("\r\n.\r\n"); err != nil {
		return err
	}

	rep, err = readReply(c.br)
	if err != nil {
		return err
	}
	if rep.Code != 250 {
		return errors.Protocol(rep.Code, "DATA command failed: "+rep.Message())
	}
	c.collector.SMTPMessageSent(int64(len(body)))
	return nil
}

// writeDotStuffed copies r to w a line at a time, normalizing line
// endings to CRLF and prefixing any line that starts with "." with an
// extra "." per rfc5321 4.5.2.
func writeDotStuffed(w io.Writer, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && line[0] == '.' {
			if _, err := io.WriteString(w, "."); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, line+"\r\n"); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// mimeNode is an in-memory MIME tree: a leaf holds its decoded body
// bytes, a container holds its children. go-message's MultipartReader
// is a one-pass stream, so the whole tree is read into memory, mutated,
// and rebuilt rather than rewritten part-by-part in place.
type mimeNode struct {
	header message.Header
	body   []byte
	parts  []*mimeNode
}

// reencodeMIME re-encodes raw's MIME leaf parts to satisfy the
// 7bit/8bit transfer constraint: a part containing octets >= 0x80 is
// re-encoded quoted-printable when eightBitOK is false, or marked
// Content-Transfer-Encoding: 8bit and left alone when it is true. raw
// is returned unchanged if it cannot be parsed as a MIME entity (for
// example a header section that is never ended by a blank line).
func reencodeMIME(raw []byte, eightBitOK bool) []byte {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	tree, err := readMIMETree(entity)
	if err != nil {
		return raw
	}
	tree.reencode(eightBitOK)

	var buf bytes.Buffer
	if err := tree.writeTo(&buf); err != nil {
		return raw
	}
	return buf.Bytes()
}

func readMIMETree(e *message.Entity) (*mimeNode, error) {
	n := &mimeNode{header: e.Header}
	if mr := e.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			child, err := readMIMETree(part)
			if err != nil {
				return nil, err
			}
			n.parts = append(n.parts, child)
		}
		return n, nil
	}
	body, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, err
	}
	n.body = body
	return n, nil
}

func (n *mimeNode) reencode(eightBitOK bool) {
	if n.parts != nil {
		for _, p := range n.parts {
			p.reencode(eightBitOK)
		}
		return
	}
	if !has8BitOctet(n.body) {
		return
	}
	if eightBitOK {
		n.header.Set("Content-Transfer-Encoding", "8bit")
		return
	}
	// The body stays decoded: go-message's writer encodes each leaf
	// according to its Content-Transfer-Encoding header.
	n.header.Set("Content-Transfer-Encoding", "quoted-printable")
}

func (n *mimeNode) writeTo(w io.Writer) error {
	mw, err := message.CreateWriter(w, n.header)
	if err != nil {
		return err
	}
	if err := n.writeInto(mw); err != nil {
		mw.Close()
		return err
	}
	return mw.Close()
}

func (n *mimeNode) writeInto(mw *message.Writer) error {
	if n.parts != nil {
		for _, p := range n.parts {
			pw, err := mw.CreatePart(p.header)
			if err != nil {
				return err
			}
			if err := p.writeInto(pw); err != nil {
				pw.Close()
				return err
			}
			if err := pw.Close(); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := mw.Write(n.body)
	return err
}

func has8BitOctet(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return true
		}
	}
	return false
}
