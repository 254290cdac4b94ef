package progress_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/anishathalye/git-remote-dropbox/internal/progress"
)

func TestEventSuppressedBelowInfo(t *testing.T) {
	var buf bytes.Buffer
	r := progress.NewReporter(&buf, progress.LevelError, "Writing objects")
	r.Event(1, 2)
	if buf.Len() != 0 {
		t.Fatalf("expected no output at error verbosity, got %q", buf.String())
	}
}

func TestEventFinalizesAtCompletion(t *testing.T) {
	var buf bytes.Buffer
	r := progress.NewReporter(&buf, progress.LevelInfo, "Writing objects")
	r.Event(3, 3)
	if !strings.Contains(buf.String(), "100% (3/3), done.") {
		t.Fatalf("got %q", buf.String())
	}
}

func TestTraceSuppressedBelowDebug(t *testing.T) {
	var buf bytes.Buffer
	r := progress.NewReporter(&buf, progress.LevelInfo, "x")
	r.Trace("object %s", "abc")
	if buf.Len() != 0 {
		t.Fatalf("expected no trace output below debug verbosity, got %q", buf.String())
	}
}

func TestTracePrintsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	r := progress.NewReporter(&buf, progress.LevelDebug, "x")
	r.Trace("object %s", "abc")
	if !strings.Contains(buf.String(), "object abc") {
		t.Fatalf("got %q", buf.String())
	}
}
