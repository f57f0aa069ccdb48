// Package smtp implements an SMTP/ESMTP client transport: connect,
// greeting and EHLO/HELO negotiation, STARTTLS upgrade, SASL
// authentication, and the MAIL/RCPT/DATA envelope protocol, with the
// line-buffered response idiom and SASL base64 glue adapted from a
// server-side implementation, inverted here to drive a remote server
// as a client.
package smtp

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/emersion/go-sasl"

	"github.com/infodancer/sprucemail/errors"
	"github.com/infodancer/sprucemail/metrics"
)

// Capabilities records the extensions a server advertised in its
// EHLO response, including the broken "AUTH=" variant some servers
// emit in addition to (or instead of) the standard "AUTH" line.
type Capabilities struct {
	ESMTP               bool
	EightBitMime        bool
	EnhancedStatusCodes bool
	StartTLS            bool
	AuthEqual           bool
	AuthMechanisms      map[string]bool
}

// Config configures a Dial.
type Config struct {
	// Hostname is presented in the EHLO/HELO command. If empty, it is
	// discovered via reverse DNS on the local address.
	Hostname string

	// STARTTLS requests an upgrade to TLS immediately after the
	// plaintext EHLO/HELO exchange, failing the Dial if the server
	// does not advertise STARTTLS support.
	STARTTLS bool

	// TLSConfig is used both for an implicit TLS connection (when
	// ImplicitTLS is set) and for the STARTTLS upgrade.
	TLSConfig *tls.Config

	// ImplicitTLS dials directly into a TLS handshake (the "smtps"
	// convention), skipping the plaintext greeting entirely.
	ImplicitTLS bool

	// Collector receives connection/auth/command events. Nil uses a
	// no-op collector.
	Collector metrics.Collector
}

// Client is a connected SMTP session.
type Client struct {
	conn net.Conn
	br   *bufio.Reader

	caps      Capabilities
	hostname  string
	collector metrics.Collector

	// eightBitNegotiated records whether the envelope in progress was
	// sent with BODY=8BITMIME, set by Mail and read by Data to decide
	// how to re-encode MIME leaf parts.
	eightBitNegotiated bool
}

// Dial connects to addr and performs the greeting/EHLO handshake,
// falling back to HELO if the server rejects EHLO.
func Dial(ctx context.Context, addr string, cfg Config) (*Client, error) {
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(errors.KindServiceUnavailable, err)
	}
	collector.SMTPConnectionOpened()
	slog.Debug("smtp connected", slog.String("addr", addr))

	if cfg.ImplicitTLS {
		tlsConn := tls.Client(conn, cfg.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			collector.SMTPConnectionClosed()
			return nil, errors.Wrap(errors.KindServiceUnavailable, err)
		}
		conn = tlsConn
		collector.SMTPTLSEstablished()
		slog.Debug("smtp implicit tls established", slog.String("addr", addr))
	}

	c := &Client{conn: conn, br: bufio.NewReader(conn), hostname: cfg.Hostname, collector: collector}
	if c.hostname == "" {
		c.hostname = localHostname(ctx, conn.LocalAddr())
	}

	if err := c.readGreeting(); err != nil {
		conn.Close()
		collector.SMTPConnectionClosed()
		return nil, err
	}

	c.caps.ESMTP = true
	if err := c.ehlo(); err != nil {
		c.caps.ESMTP = false
		slog.Debug("smtp ehlo rejected, falling back to helo", slog.String("addr", addr), slog.String("error", err.Error()))
		if err := c.helo(); err != nil {
			conn.Close()
			collector.SMTPConnectionClosed()
			return nil, err
		}
	}

	if cfg.STARTTLS && !cfg.ImplicitTLS {
		if !c.caps.StartTLS {
			conn.Close()
			collector.SMTPConnectionClosed()
			return nil, errors.New(errors.KindServiceUnavailable, "server does not advertise STARTTLS")
		}
		if err := c.startTLS(ctx, cfg.TLSConfig); err != nil {
			conn.Close()
			collector.SMTPConnectionClosed()
			return nil, err
		}
		collector.SMTPTLSEstablished()
		slog.Debug("smtp starttls established", slog.String("addr", addr))
	}

	return c, nil
}

func (c *Client) readGreeting() error {
	for {
		rep, err := readReply(c.br)
		if err != nil {
			return err
		}
		if rep.Code != 220 {
			return errors.Protocol(rep.Code, "welcome response error: "+rep.Message())
		}
		return nil
	}
}

func (c *Client) send(format string, args ...any) error {
	_, err := fmt.Fprintf(c.conn, format, args...)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	return nil
}

// sendCmd is send plus a metrics record of the command verb, used at
// call sites that issue a distinct protocol command (as opposed to
// continuation data within a multi-step exchange like AUTH or DATA).
func (c *Client) sendCmd(verb, format string, args ...any) error {
	if err := c.send(format, args...); err != nil {
		return err
	}
	c.collector.SMTPCommandSent(verb)
	return nil
}

func (c *Client) ehlo() error { return c.greet("EHLO") }
func (c *Client) helo() error { return c.greet("HELO") }

func (c *Client) greet(verb string) error {
	c.caps.AuthMechanisms = nil
	c.caps.AuthEqual = false
	c.caps.EightBitMime = false
	c.caps.EnhancedStatusCodes = false
	c.caps.StartTLS = false

	if err := c.sendCmd(verb, "%s %s\r\n", verb, c.hostname); err != nil {
		return err
	}
	rep, err := readReply(c.br)
	if err != nil {
		return err
	}
	if rep.Code != 250 {
		return errors.Protocol(rep.Code, verb+" command failed: "+rep.Message())
	}
	if verb == "EHLO" {
		c.parseCapabilities(rep.Lines)
	}
	return nil
}

// parseCapabilities reads the EHLO reply lines (the first line is the
// greeting text, subsequent lines are extensions), tolerating both
// "AUTH mech..." and the broken "AUTH=mech..." form some servers
// emit, letting the standards-conformant form win if both appear.
func (c *Client) parseCapabilities(lines []string) {
	for _, line := range lines {
		upper := strings.ToUpper(line)
		switch {
		case upper == "8BITMIME":
			c.caps.EightBitMime = true
		case upper == "ENHANCEDSTATUSCODES":
			c.caps.EnhancedStatusCodes = true
		case upper == "STARTTLS":
			c.caps.StartTLS = true
		case strings.HasPrefix(upper, "AUTH") && len(line) > 4:
			// Some servers list AUTH twice: once the standard way
			// and once the broken "AUTH=" way Outlook expects. Parse
			// each list we see until we hit a standard-form one,
			// which then wins and further AUTH lines are ignored.
			if c.caps.AuthMechanisms != nil && !c.caps.AuthEqual {
				continue
			}
			rest := line[4:]
			equal := strings.HasPrefix(rest, "=")
			c.caps.AuthEqual = equal
			rest = strings.TrimPrefix(rest, "=")
			c.caps.AuthMechanisms = make(map[string]bool)
			for _, mech := range strings.Fields(rest) {
				c.caps.AuthMechanisms[strings.ToUpper(mech)] = true
			}
		}
	}
}

func (c *Client) startTLS(ctx context.Context, cfg *tls.Config) error {
	if err := c.sendCmd("STARTTLS", "STARTTLS\r\n"); err != nil {
		return err
	}
	rep, err := readReply(c.br)
	if err != nil {
		return err
	}
	if rep.Code != 220 {
		return errors.Protocol(rep.Code, "STARTTLS command failed: "+rep.Message())
	}

	tlsConn := tls.Client(c.conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return errors.Wrap(errors.KindServiceUnavailable, err)
	}
	c.conn = tlsConn
	c.br = bufio.NewReader(tlsConn)

	// Re-EHLO after STARTTLS to refresh the extension list per rfc3207.
	return c.ehlo()
}

// Capabilities returns the capability set most recently negotiated
// via EHLO.
func (c *Client) Capabilities() Capabilities { return c.caps }

// Auth runs the SASL exchange for mech: send an optional initial
// response, then loop on "334" continuations until the server
// returns 235 (success) or anything else (failure).
func (c *Client) Auth(ctx context.Context, client sasl.Client) error {
	mech, initial, err := client.Start()
	if err != nil {
		return errors.Wrap(errors.KindCannotAuthenticate, err)
	}

	if initial != nil {
		if err := c.sendCmd("AUTH", "AUTH %s %s\r\n", mech, encodeChallenge(initial)); err != nil {
			return err
		}
	} else {
		if err := c.sendCmd("AUTH", "AUTH %s\r\n", mech); err != nil {
			return err
		}
	}

	for {
		rep, err := readReply(c.br)
		if err != nil {
			return err
		}
		switch rep.Code {
		case 235:
			c.collector.SMTPAuthAttempt(mech, true)
			slog.Debug("smtp auth succeeded", slog.String("mechanism", mech))
			return nil
		case 334:
			challenge, err := decodeChallenge(rep.Message())
			if err != nil {
				c.abortAuth()
				c.collector.SMTPAuthAttempt(mech, false)
				return errors.Wrap(errors.KindCannotAuthenticate, err)
			}
			resp, err := client.Next(challenge)
			if err != nil {
				c.abortAuth()
				c.collector.SMTPAuthAttempt(mech, false)
				return errors.Wrap(errors.KindCannotAuthenticate, err)
			}
			if err := c.send("%s\r\n", encodeChallenge(resp)); err != nil {
				return err
			}
		default:
			c.collector.SMTPAuthAttempt(mech, false)
			slog.Debug("smtp auth failed", slog.String("mechanism", mech), slog.Int("code", rep.Code))
			return errors.Protocol(rep.Code, "AUTH request failed: "+rep.Message())
		}
	}
}

// abortAuth tells the server to give up waiting for continuation
// data, per rfc4954 section 4's "*" cancellation response.
func (c *Client) abortAuth() {
	_ = c.send("*\r\n")
	_, _ = readReply(c.br)
}

// Mail sends the MAIL FROM command, tagging BODY=8BITMIME when the
// server supports it and the caller has 8-bit content to send.
func (c *Client) Mail(ctx context.Context, from string, eightBit bool) error {
	c.eightBitNegotiated = eightBit && c.caps.EightBitMime
	cmd := fmt.Sprintf("MAIL FROM:<%s>", from)
	if c.eightBitNegotiated {
		cmd += " BODY=8BITMIME"
	}
	if err := c.sendCmd("MAIL", "%s\r\n", cmd); err != nil {
		return err
	}
	rep, err := readReply(c.br)
	if err != nil {
		return err
	}
	if rep.Code != 250 {
		return errors.Protocol(rep.Code, "MAIL FROM command failed: "+rep.Message())
	}
	return nil
}

// SendEnvelope drives the full MAIL/RCPT/DATA sequence for one
// message: MAIL FROM, one RCPT TO per recipient, then DATA. If any
// step fails after MAIL has succeeded, it sends RSET to return the
// connection to the Ready state; if RSET itself fails, the connection
// is dropped so no caller mistakes it for usable.
func (c *Client) SendEnvelope(ctx context.Context, from string, to []string, raw []byte, eightBit bool) error {
	if err := c.Mail(ctx, from, eightBit); err != nil {
		return err
	}

	fail := func(cause error) error {
		if rerr := c.Reset(ctx); rerr != nil {
			c.Close()
			return cause
		}
		return cause
	}

	for _, addr := range to {
		if err := c.Rcpt(ctx, addr); err != nil {
			return fail(err)
		}
	}
	if err := c.Data(ctx, raw); err != nil {
		return fail(err)
	}
	return nil
}

// Rcpt sends one RCPT TO command.
func (c *Client) Rcpt(ctx context.Context, to string) error {
	if strings.TrimSpace(to) == "" {
		return errors.Wrap(errors.KindInvalidRecipient, errors.ErrInvalidRecipient)
	}
	if err := c.sendCmd("RCPT", "RCPT TO:<%s>\r\n", to); err != nil {
		return err
	}
	rep, err := readReply(c.br)
	if err != nil {
		return err
	}
	if rep.Code != 250 {
		return errors.Protocol(rep.Code, fmt.Sprintf("RCPT TO <%s> failed: %s", to, rep.Message()))
	}
	return nil
}

// Reset sends RSET.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.sendCmd("RSET", "RSET\r\n"); err != nil {
		return err
	}
	rep, err := readReply(c.br)
	if err != nil {
		return err
	}
	if rep.Code != 250 {
		return errors.Protocol(rep.Code, "RSET command failed: "+rep.Message())
	}
	return nil
}

// Quit sends QUIT and closes the connection. Errors from the QUIT
// exchange are ignored; teardown always proceeds.
func (c *Client) Quit(ctx context.Context) error {
	_ = c.sendCmd("QUIT", "QUIT\r\n")
	_, _ = readReply(c.br)
	c.collector.SMTPConnectionClosed()
	return c.conn.Close()
}

// Close closes the underlying connection without attempting QUIT.
func (c *Client) Close() error {
	c.collector.SMTPConnectionClosed()
	return c.conn.Close()
}

func encodeChallenge(b []byte) string {
	return b64Encode(b)
}

func decodeChallenge(s string) ([]byte, error) {
	return b64Decode(strings.TrimSpace(s))
}
