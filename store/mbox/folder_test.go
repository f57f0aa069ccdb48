package mbox

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/infodancer/sprucemail/store"
	"github.com/infodancer/sprucemail/summary"
)

func writeFixture(t *testing.T, path string, msgs []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(msgs, "\n\n")), 0o666); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestOpenParsesFromOffsets(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	path := filepath.Join(base, "inbox")

	m1 := "From alice@example.com Mon Jan  1 00:00:00 2026\nSubject: one\n\nbody one"
	m2 := "From bob@example.com Mon Jan  1 00:01:00 2026\nSubject: two\n\nbody two"
	writeFixture(t, path, []string{m1, m2})

	s := NewStore(base)
	f, err := s.Folder("")
	if err != nil {
		t.Fatalf("Folder: %v", err)
	}
	mf := f.(*Folder)
	mf.path = path

	if err := f.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	sum := f.Summary()
	if sum.Count() != 2 {
		t.Fatalf("expected 2 records, got %d", sum.Count())
	}
	if sum.Index(0).FromPos != 0 {
		t.Fatalf("expected first frompos 0, got %d", sum.Index(0).FromPos)
	}
	if sum.Index(1).FromPos <= sum.Index(0).FromPos {
		t.Fatalf("expected strictly increasing frompos")
	}
}

func TestAppendAndExpunge(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	s := NewStore(base)
	f, err := s.Folder("")
	if err != nil {
		t.Fatalf("Folder: %v", err)
	}
	if err := f.Create(ctx, store.CanHoldMessages); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}

	body1 := "Subject: keep\r\n\r\nkeep me\r\n"
	body2 := "Subject: drop\r\n\r\ndrop me\r\n"
	uid1, err := f.AppendMessage(ctx, strings.NewReader(body1), 0)
	if err != nil {
		t.Fatalf("AppendMessage 1: %v", err)
	}
	uid2, err := f.AppendMessage(ctx, strings.NewReader(body2), 0)
	if err != nil {
		t.Fatalf("AppendMessage 2: %v", err)
	}
	if uid1 == uid2 {
		t.Fatalf("expected distinct uids")
	}

	if err := f.SetMessageFlags(ctx, uid2, summary.FlagDeleted, summary.FlagDeleted|summary.FlagDirty); err != nil {
		t.Fatalf("SetMessageFlags: %v", err)
	}
	if err := f.Expunge(ctx, nil); err != nil {
		t.Fatalf("Expunge: %v", err)
	}

	uids, err := f.GetUIDs(ctx)
	if err != nil {
		t.Fatalf("GetUIDs: %v", err)
	}
	if len(uids) != 1 || uids[0] != uid1 {
		t.Fatalf("expected only %s to remain, got %v", uid1, uids)
	}

	rc, err := f.GetMessage(ctx, uid1)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !strings.Contains(string(got), "keep me") {
		t.Fatalf("expected retained body, got %q", got)
	}
}

// TestExpungeKeepsSingleBlankLineBetweenSurvivors appends three
// messages, deletes the middle one, and confirms the rewritten
// mailbox still separates the two survivors with exactly one blank
// line rather than accumulating an extra one from the removed
// message's own trailing newline.
func TestExpungeKeepsSingleBlankLineBetweenSurvivors(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	s := NewStore(base)
	f, err := s.Folder("")
	if err != nil {
		t.Fatalf("Folder: %v", err)
	}
	if err := f.Create(ctx, store.CanHoldMessages); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}

	uidFirst, err := f.AppendMessage(ctx, strings.NewReader("Subject: first\r\n\r\nfirst body\r\n"), 0)
	if err != nil {
		t.Fatalf("AppendMessage first: %v", err)
	}
	uidMiddle, err := f.AppendMessage(ctx, strings.NewReader("Subject: middle\r\n\r\nmiddle body\r\n"), 0)
	if err != nil {
		t.Fatalf("AppendMessage middle: %v", err)
	}
	uidLast, err := f.AppendMessage(ctx, strings.NewReader("Subject: last\r\n\r\nlast body\r\n"), 0)
	if err != nil {
		t.Fatalf("AppendMessage last: %v", err)
	}

	if err := f.SetMessageFlags(ctx, uidMiddle, summary.FlagDeleted, summary.FlagDeleted|summary.FlagDirty); err != nil {
		t.Fatalf("SetMessageFlags: %v", err)
	}
	if err := f.Expunge(ctx, nil); err != nil {
		t.Fatalf("Expunge: %v", err)
	}

	uids, err := f.GetUIDs(ctx)
	if err != nil {
		t.Fatalf("GetUIDs: %v", err)
	}
	if len(uids) != 2 {
		t.Fatalf("expected 2 surviving messages, got %v", uids)
	}

	mf := f.(*Folder)
	raw, err := os.ReadFile(mf.path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(raw), "\n\n\n") {
		t.Fatalf("expected no more than one blank line between messages, got:\n%s", raw)
	}

	for _, uid := range []string{uidFirst, uidLast} {
		rc, err := f.GetMessage(ctx, uid)
		if err != nil {
			t.Fatalf("GetMessage %s: %v", uid, err)
		}
		body, _ := io.ReadAll(rc)
		_ = rc.Close()
		if len(body) == 0 {
			t.Fatalf("expected non-empty body for %s", uid)
		}
	}
}
