package maildir

import (
	"strings"
	"testing"
)

func TestLoadSieveScriptMissingIsNotAnError(t *testing.T) {
	s := NewStore(t.TempDir())
	cmds, err := s.loadSieveScript("")
	if err != nil {
		t.Fatalf("expected no error for a missing script, got %v", err)
	}
	if cmds != nil {
		t.Fatalf("expected nil commands for a missing script, got %v", cmds)
	}
}

func TestSieveScriptPathStaysUnderBase(t *testing.T) {
	base := t.TempDir()
	s := NewStore(base)
	path, err := s.sieveScriptPath("work")
	if err != nil {
		t.Fatalf("sieveScriptPath: %v", err)
	}
	if !strings.HasPrefix(path, base) {
		t.Fatalf("expected %q to live under %q", path, base)
	}
}
