package cache

import (
	"io"
	"strings"
	"testing"
)

func TestAddCommitGet(t *testing.T) {
	c := New(t.TempDir(), 0)

	ws, err := c.Add("greeting")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := io.Copy(ws, strings.NewReader("hello cache")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.Commit(ws); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rs, err := c.Get("greeting")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rs.Close()
	got, err := io.ReadAll(rs)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello cache" {
		t.Fatalf("got %q", got)
	}
}

func TestAbortDiscardsPayload(t *testing.T) {
	c := New(t.TempDir(), 0)

	ws, err := c.Add("scratch")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := io.WriteString(ws, "never committed"); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.Abort(ws)

	if _, err := c.Get("scratch"); err == nil {
		t.Fatalf("expected Get to fail after abort")
	}
}

func TestExpireEnforcesCap(t *testing.T) {
	c := New(t.TempDir(), 5)

	for _, key := range []string{"a", "b", "c"} {
		ws, err := c.Add(key)
		if err != nil {
			t.Fatalf("Add %s: %v", key, err)
		}
		if _, err := io.WriteString(ws, "12345"); err != nil {
			t.Fatalf("write %s: %v", key, err)
		}
		if _, err := c.Commit(ws); err != nil {
			t.Fatalf("Commit %s: %v", key, err)
		}
	}

	if err := c.Expire(); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	remaining := 0
	for _, key := range []string{"a", "b", "c"} {
		if rs, err := c.Get(key); err == nil {
			remaining++
			rs.Close()
		}
	}
	if remaining != 1 {
		t.Fatalf("expected exactly 1 key to survive a 5-byte cap, got %d", remaining)
	}
}
