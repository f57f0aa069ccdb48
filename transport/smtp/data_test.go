package smtp

import (
	"strings"
	"testing"
)

func TestPrepareMessageStripsBccAndContentLength(t *testing.T) {
	raw := "To: bob@example.com\r\n" +
		"Bcc: spy@example.com\r\n" +
		"Content-Length: 42\r\n" +
		"Subject: hi\r\n" +
		"\r\n" +
		"body\r\n"

	got := string(prepareMessage([]byte(raw)))
	if strings.Contains(got, "Bcc") {
		t.Fatalf("expected Bcc stripped, got %q", got)
	}
	if strings.Contains(got, "Content-Length") {
		t.Fatalf("expected Content-Length stripped, got %q", got)
	}
	if !strings.Contains(got, "Subject: hi") {
		t.Fatalf("expected other headers retained, got %q", got)
	}
}

func TestReencodeMIMELeavesASCIIPartAlone(t *testing.T) {
	raw := "Content-Type: text/plain\r\n\r\nplain ascii body\r\n"
	got := reencodeMIME([]byte(raw), false)
	if !strings.Contains(string(got), "plain ascii body") {
		t.Fatalf("expected body retained, got %q", got)
	}
	if strings.Contains(string(got), "quoted-printable") {
		t.Fatalf("expected no re-encoding for ascii-only body, got %q", got)
	}
}

func TestReencodeMIMEQuotesEightBitWhenNotNegotiated(t *testing.T) {
	raw := "Content-Type: text/plain; charset=utf-8\r\n\r\nbody with \xc3\xa9 accent\r\n"
	got := string(reencodeMIME([]byte(raw), false))
	if !strings.Contains(got, "quoted-printable") {
		t.Fatalf("expected quoted-printable re-encoding, got %q", got)
	}
	if strings.Contains(got, "\xc3\xa9") {
		t.Fatalf("expected raw 8-bit octets replaced by quoted-printable escapes, got %q", got)
	}
}

func TestReencodeMIMELeavesEightBitWhenNegotiated(t *testing.T) {
	raw := "Content-Type: text/plain; charset=utf-8\r\n\r\nbody with \xc3\xa9 accent\r\n"
	got := string(reencodeMIME([]byte(raw), true))
	if !strings.Contains(got, "8bit") {
		t.Fatalf("expected Content-Transfer-Encoding: 8bit, got %q", got)
	}
	if !strings.Contains(got, "\xc3\xa9") {
		t.Fatalf("expected raw 8-bit octets preserved, got %q", got)
	}
}

func TestReencodeMIMEFallsBackOnUnparseableMessage(t *testing.T) {
	raw := "Subject: header section never terminated, no blank line"
	got := reencodeMIME([]byte(raw), false)
	if string(got) != raw {
		t.Fatalf("expected unparseable message returned unchanged, got %q", got)
	}
}
