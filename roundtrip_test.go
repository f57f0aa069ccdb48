package sprucemail_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/infodancer/sprucemail/cache"
	"github.com/infodancer/sprucemail/store"
	"github.com/infodancer/sprucemail/store/maildir"
	"github.com/infodancer/sprucemail/store/mbox"
	"github.com/infodancer/sprucemail/summary"
	"github.com/infodancer/sprucemail/transport/smtp"
)

// TestMaildirAppendFlagExpungeRoundTrip exercises a full Maildir
// delivery lifecycle through the store.Folder contract: append two
// messages, flag one deleted, expunge, and confirm only the survivor
// remains both in the summary and on disk.
func TestMaildirAppendFlagExpungeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := maildir.NewStore(t.TempDir())

	f, err := s.Folder("")
	if err != nil {
		t.Fatalf("Folder: %v", err)
	}
	if err := f.Create(ctx, store.CanHoldAnything); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close(ctx, false)

	uidKeep, err := f.AppendMessage(ctx, strings.NewReader("Subject: keep\r\n\r\nbody\r\n"), 0)
	if err != nil {
		t.Fatalf("AppendMessage keep: %v", err)
	}
	uidDrop, err := f.AppendMessage(ctx, strings.NewReader("Subject: drop\r\n\r\nbody\r\n"), 0)
	if err != nil {
		t.Fatalf("AppendMessage drop: %v", err)
	}

	if err := f.SetMessageFlags(ctx, uidDrop, summary.FlagDeleted, summary.FlagDeleted); err != nil {
		t.Fatalf("SetMessageFlags: %v", err)
	}
	if err := f.Expunge(ctx, nil); err != nil {
		t.Fatalf("Expunge: %v", err)
	}

	uids, err := f.GetUIDs(ctx)
	if err != nil {
		t.Fatalf("GetUIDs: %v", err)
	}
	if len(uids) != 1 || uids[0] != uidKeep {
		t.Fatalf("expected only %q to survive expunge, got %v", uidKeep, uids)
	}

	if _, err := f.GetMessage(ctx, uidDrop); err == nil {
		t.Fatalf("expected expunged message to be gone")
	}
}

// TestMboxAppendAndSearchRoundTrip exercises mbox append alongside the
// search engine's numeric size predicate.
func TestMboxAppendAndSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := mbox.NewStore(t.TempDir())

	f, err := s.Folder("")
	if err != nil {
		t.Fatalf("Folder: %v", err)
	}
	if err := f.Create(ctx, store.CanHoldAnything); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close(ctx, false)

	small := "Subject: small\r\n\r\nhi\r\n"
	big := "Subject: big\r\n\r\n" + strings.Repeat("x", 4096) + "\r\n"

	if _, err := f.AppendMessage(ctx, strings.NewReader(small), 0); err != nil {
		t.Fatalf("AppendMessage small: %v", err)
	}
	bigUID, err := f.AppendMessage(ctx, strings.NewReader(big), 0)
	if err != nil {
		t.Fatalf("AppendMessage big: %v", err)
	}

	uids, err := f.Search(ctx, nil, `(match-all (> (size) 1000))`)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(uids) != 1 || uids[0] != bigUID {
		t.Fatalf("expected only %q to match the size predicate, got %v", bigUID, uids)
	}
}

// TestSMTPHappyPathRoundTrip dials a loopback server, negotiates
// EHLO, and runs a full MAIL/RCPT/DATA envelope.
func TestSMTPHappyPathRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		runScriptedServer(t, conn, []scriptStep{
			{"", "220 mail.example.com ESMTP ready\r\n"},
			{"EHLO", "250-mail.example.com\r\n250 8BITMIME\r\n"},
			{"MAIL FROM", "250 OK\r\n"},
			{"RCPT TO", "250 OK\r\n"},
			{"DATA", "354 Go ahead\r\n"},
			{".", "250 Queued\r\n"},
			{"QUIT", "221 Bye\r\n"},
		})
	}()

	ctx := context.Background()
	client, err := smtp.Dial(ctx, ln.Addr().String(), smtp.Config{Hostname: "client.example.com"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := client.Mail(ctx, "sender@example.com", true); err != nil {
		t.Fatalf("Mail: %v", err)
	}
	if err := client.Rcpt(ctx, "recipient@example.com"); err != nil {
		t.Fatalf("Rcpt: %v", err)
	}
	if err := client.Data(ctx, []byte("Subject: hi\r\n\r\nbody\r\n")); err != nil {
		t.Fatalf("Data: %v", err)
	}
	if err := client.Quit(ctx); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	<-done
}

// TestSMTPStartTLSUnsupportedFailsDial confirms Dial refuses to
// proceed when STARTTLS is requested but the server never advertises it.
func TestSMTPStartTLSUnsupportedFailsDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		runScriptedServer(t, conn, []scriptStep{
			{"", "220 mail.example.com ESMTP ready\r\n"},
			{"EHLO", "250 mail.example.com\r\n"},
		})
	}()

	ctx := context.Background()
	_, err = smtp.Dial(ctx, ln.Addr().String(), smtp.Config{Hostname: "client.example.com", STARTTLS: true})
	if err == nil {
		t.Fatalf("expected Dial to fail when server does not advertise STARTTLS")
	}
}

// TestCacheCommitAbortRoundTrip exercises the content-addressed cache's
// write/commit and write/abort paths.
func TestCacheCommitAbortRoundTrip(t *testing.T) {
	c := cache.New(t.TempDir(), 0)

	ws, err := c.Add("message-1")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := ws.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	rs, err := c.Commit(ws)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := io.ReadAll(rs)
	rs.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected committed payload %q, got %q", "hello", got)
	}

	ws2, err := c.Add("message-2")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := ws2.Write([]byte("discarded")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	c.Abort(ws2)

	if _, err := c.Get("message-2"); err == nil {
		t.Fatalf("expected aborted payload to be absent from the cache")
	}
}

type scriptStep struct{ want, reply string }

// runScriptedServer drives a scripted SMTP exchange over conn,
// mirroring the fakeServer helper in transport/smtp's own tests but
// over a real loopback connection instead of net.Pipe.
func runScriptedServer(t *testing.T, conn net.Conn, script []scriptStep) {
	t.Helper()
	r := bufio.NewReader(conn)
	for _, step := range script {
		if step.want != "" {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			for step.want == "." && line != "." {
				if line, err = r.ReadString('\n'); err != nil {
					return
				}
				line = strings.TrimRight(line, "\r\n")
			}
			if !strings.HasPrefix(line, step.want) {
				t.Errorf("server expected prefix %q, got %q", step.want, line)
			}
		}
		if _, err := conn.Write([]byte(step.reply)); err != nil {
			return
		}
	}
}
