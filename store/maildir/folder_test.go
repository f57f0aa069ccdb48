package maildir

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/infodancer/sprucemail/store"
	"github.com/infodancer/sprucemail/summary"
)

func TestAppendFlagExpunge(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := NewStore(base)

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

	body := "Subject: hi\r\n\r\nbody\r\n"
	uid, err := f.AppendMessage(ctx, strings.NewReader(body), 0)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	uids, err := f.GetUIDs(ctx)
	if err != nil {
		t.Fatalf("GetUIDs: %v", err)
	}
	if len(uids) != 1 || uids[0] != uid {
		t.Fatalf("expected [%s], got %v", uid, uids)
	}

	rc, err := f.GetMessage(ctx, uid)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(got) != body {
		t.Fatalf("message body mismatch: %q", got)
	}

	// Message must reside under cur/ or new/.
	foundUnder := false
	for _, sub := range []string{"cur", "new"} {
		entries, _ := os.ReadDir(base + "/" + sub)
		if len(entries) > 0 {
			foundUnder = true
		}
	}
	if !foundUnder {
		t.Fatalf("message not found under cur/ or new/")
	}

	if err := f.SetMessageFlags(ctx, uid, summary.FlagDeleted|summary.FlagDirty, summary.FlagDeleted|summary.FlagDirty); err != nil {
		t.Fatalf("SetMessageFlags: %v", err)
	}
	if err := f.Expunge(ctx, nil); err != nil {
		t.Fatalf("Expunge: %v", err)
	}

	uids, err = f.GetUIDs(ctx)
	if err != nil {
		t.Fatalf("GetUIDs after expunge: %v", err)
	}
	if len(uids) != 0 {
		t.Fatalf("expected no uids after expunge, got %v", uids)
	}

	if err := f.Close(ctx, false); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestCreateMakesReservedSubdirs(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := NewStore(base)
	f, _ := s.Folder("")

	// Create on a fresh base builds the reserved subdirs; cur/ is
	// checked here.
	if err := f.Create(ctx, store.CanHoldAnything); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := os.Stat(base + "/cur"); err != nil {
		t.Fatalf("expected cur/ to exist: %v", err)
	}
}

func TestReopenLoadsPersistedSummary(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := NewStore(base)

	f, _ := s.Folder("")
	if err := f.Create(ctx, store.CanHoldAnything); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	uid, err := f.AppendMessage(ctx, strings.NewReader("Subject: x\r\n\r\nbody"), 0)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := f.Close(ctx, false); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := NewStore(base)
	f2, _ := s2.Folder("")
	if err := f2.Open(ctx); err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	uids, err := f2.GetUIDs(ctx)
	if err != nil {
		t.Fatalf("GetUIDs: %v", err)
	}
	if len(uids) != 1 || uids[0] != uid {
		t.Fatalf("expected persisted [%s], got %v", uid, uids)
	}
}
