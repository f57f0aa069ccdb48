package smtp

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/infodancer/sprucemail/errors"
)

// reply is a parsed (possibly multiline) SMTP server response.
type reply struct {
	Code  int
	Lines []string
}

// Message joins the reply's lines the way a human-readable error
// wants them: newline separated, matching spruce_set_error's
// multiline status accumulation.
func (r reply) Message() string {
	return strings.Join(r.Lines, "\n")
}

// readReply reads one SMTP reply from r, following continuation lines
// ("250-...") until a final line ("250 ...") is seen.
func readReply(r *bufio.Reader) (reply, error) {
	var rep reply

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return rep, errors.Wrap(errors.KindIO, err)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return rep, errors.New(errors.KindProtocolGeneric, "malformed SMTP reply: "+line)
		}

		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return rep, errors.New(errors.KindProtocolGeneric, "malformed SMTP reply code: "+line)
		}
		rep.Code = code

		text := ""
		if len(line) > 4 {
			text = line[4:]
		}
		rep.Lines = append(rep.Lines, decodeEnhancedStatus(text))

		if len(line) >= 4 && line[3] == '-' {
			continue
		}
		return rep, nil
	}
}

// decodeEnhancedStatus strips and xtext-decodes an rfc2034 enhanced
// status code prefix ("5.1.1 Mailbox ... does not exist") from a
// reply line's text, leaving just the human-readable remainder. Lines
// without a recognizable enhanced status code are returned unchanged.
func decodeEnhancedStatus(text string) string {
	fields := strings.SplitN(text, " ", 2)
	if len(fields) != 2 || !looksLikeEnhancedStatus(fields[0]) {
		return text
	}
	return decodeXtext(fields[1])
}

func looksLikeEnhancedStatus(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

// decodeXtext decodes the rfc1891 "xtext" encoding used inside
// enhanced status code text: "+XX" is a hex-encoded octet, everything
// else passes through unchanged.
func decodeXtext(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '+' && i+2 < len(s) && isHexDigit(s[i+1]) && isHexDigit(s[i+2]) {
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}
