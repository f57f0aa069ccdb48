package smtp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"

	"github.com/infodancer/sprucemail/metrics"
)

// fakeServer drives a scripted SMTP server over conn: it reads one
// client command per expected reply, replying from replies in order.
// A "." step reads the DATA payload through its terminating "." line.
// Used to exercise Client without a real network server.
func fakeServer(t *testing.T, conn net.Conn, script []struct{ want, reply string }) {
	t.Helper()
	r := bufio.NewReader(conn)
	for _, step := range script {
		if step.want != "" {
			line, err := r.ReadString('\n')
			if err != nil {
				t.Errorf("server read: %v", err)
				return
			}
			line = strings.TrimRight(line, "\r\n")
			for step.want == "." && line != "." {
				if line, err = r.ReadString('\n'); err != nil {
					t.Errorf("server read: %v", err)
					return
				}
				line = strings.TrimRight(line, "\r\n")
			}
			if !strings.HasPrefix(line, step.want) {
				t.Errorf("server expected prefix %q, got %q", step.want, line)
			}
		}
		if _, err := conn.Write([]byte(step.reply)); err != nil {
			t.Errorf("server write: %v", err)
			return
		}
	}
}

func TestDialEhloMailRcptData(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	script := []struct{ want, reply string }{
		{"", "220 mail.example.com ESMTP ready\r\n"},
		{"EHLO", "250-mail.example.com\r\n250-8BITMIME\r\n250 AUTH PLAIN LOGIN\r\n"},
		{"MAIL FROM", "250 OK\r\n"},
		{"RCPT TO", "250 OK\r\n"},
		{"DATA", "354 Go ahead\r\n"},
		{".", "250 Queued\r\n"},
		{"QUIT", "221 Bye\r\n"},
	}
	done := make(chan struct{})
	go func() {
		fakeServer(t, serverConn, script)
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := &Client{conn: clientConn, br: bufio.NewReader(clientConn), hostname: "client.example.com", collector: &metrics.NoopCollector{}}
	if err := client.readGreeting(); err != nil {
		t.Fatalf("greeting: %v", err)
	}
	client.caps.ESMTP = true
	if err := client.ehlo(); err != nil {
		t.Fatalf("ehlo: %v", err)
	}
	if !client.caps.EightBitMime {
		t.Fatalf("expected 8BITMIME capability")
	}
	if !client.caps.AuthMechanisms["PLAIN"] {
		t.Fatalf("expected PLAIN auth mechanism, got %v", client.caps.AuthMechanisms)
	}

	if err := client.Mail(ctx, "alice@example.com", false); err != nil {
		t.Fatalf("mail: %v", err)
	}
	if err := client.Rcpt(ctx, "bob@example.com"); err != nil {
		t.Fatalf("rcpt: %v", err)
	}
	if err := client.Data(ctx, []byte("Subject: hi\r\n\r\nhello\r\n")); err != nil {
		t.Fatalf("data: %v", err)
	}
	if err := client.Quit(ctx); err != nil {
		t.Fatalf("quit: %v", err)
	}

	<-done
}

func TestRcptRejectsEmptyAddress(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := &Client{conn: clientConn, br: bufio.NewReader(clientConn), collector: &metrics.NoopCollector{}}
	if err := client.Rcpt(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

func TestSendEnvelopeResetsOnRcptFailure(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	script := []struct{ want, reply string }{
		{"MAIL FROM", "250 OK\r\n"},
		{"RCPT TO", "550 No such user\r\n"},
		{"RSET", "250 OK\r\n"},
	}
	done := make(chan struct{})
	go func() {
		fakeServer(t, serverConn, script)
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := &Client{conn: clientConn, br: bufio.NewReader(clientConn), hostname: "client.example.com", collector: &metrics.NoopCollector{}}
	err := client.SendEnvelope(ctx, "alice@example.com", []string{"nobody@example.com"}, []byte("Subject: hi\r\n\r\nbody\r\n"), false)
	if err == nil {
		t.Fatalf("expected SendEnvelope to fail")
	}

	<-done
}

func TestAuthPlainSucceeds(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	script := []struct{ want, reply string }{
		{"AUTH PLAIN", "235 Authenticated\r\n"},
	}
	done := make(chan struct{})
	go func() {
		fakeServer(t, serverConn, script)
		close(done)
	}()

	client := &Client{conn: clientConn, br: bufio.NewReader(clientConn), collector: &metrics.NoopCollector{}}
	saslClient := sasl.NewPlainClient("", "alice", "secret")
	if err := client.Auth(context.Background(), saslClient); err != nil {
		t.Fatalf("Auth: %v", err)
	}

	<-done
}

func TestStatusTextAndXtext(t *testing.T) {
	if codeText(250) == "unknown" {
		t.Fatalf("expected known text for 250")
	}
	if codeText(999) != "unknown" {
		t.Fatalf("expected unknown for unmapped code")
	}
	if got := decodeXtext("Mailbox+20does+20not+20exist"); got != "Mailbox does not exist" {
		t.Fatalf("decodeXtext: got %q", got)
	}
}
