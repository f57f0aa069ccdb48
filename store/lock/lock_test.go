package lock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailbox")
	if err := os.WriteFile(path, []byte("From a@b Mon Jan 1 00:00:00 2001\n"), 0o666); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l, err := Acquire(path, Exclusive)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// A second acquire after release must succeed, not deadlock.
	l2, err := Acquire(path, Shared)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if err := l2.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestAcquireFileDoesNotCloseCallersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailbox")
	if err := os.WriteFile(path, nil, 0o666); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	l, err := AcquireFile(f, Exclusive)
	if err != nil {
		t.Fatalf("AcquireFile: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// f must still be usable; AcquireFile does not own it.
	if _, err := f.WriteString("still open\n"); err != nil {
		t.Fatalf("expected caller's file to remain open after Release: %v", err)
	}
}
