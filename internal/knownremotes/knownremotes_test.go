package knownremotes_test

import (
	"os"
	"testing"
	"time"

	"github.com/anishathalye/git-remote-dropbox/internal/knownremotes"
)

func withHome(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	_ = os.Unsetenv("XDG_CONFIG_HOME")
}

func TestTouchAndList(t *testing.T) {
	withHome(t)

	s, err := knownremotes.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.Touch("alice", "/path/to/repo", at); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := s.Touch("", "/path/to/other", at); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	byPath := map[string]knownremotes.Entry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	if e, ok := byPath["/path/to/repo"]; !ok || e.Account != "alice" || !e.LastUsed.Equal(at) {
		t.Fatalf("got %#v", byPath["/path/to/repo"])
	}
	if e, ok := byPath["/path/to/other"]; !ok || e.Account != "" {
		t.Fatalf("got %#v", byPath["/path/to/other"])
	}
}

func TestReopenPersists(t *testing.T) {
	withHome(t)

	s, err := knownremotes.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Touch("bob", "/repo", time.Now()); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := knownremotes.Open()
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	entries, err := s2.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Account != "bob" {
		t.Fatalf("got %#v", entries)
	}
}
