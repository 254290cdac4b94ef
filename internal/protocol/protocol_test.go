package protocol_test

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anishathalye/git-remote-dropbox/internal/blobstore"
	"github.com/anishathalye/git-remote-dropbox/internal/gitutil"
	"github.com/anishathalye/git-remote-dropbox/internal/layout"
	"github.com/anishathalye/git-remote-dropbox/internal/protocol"
	"github.com/anishathalye/git-remote-dropbox/internal/refs"
)

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func gitRepoWithCommit(t *testing.T) (*gitutil.Repository, string, string) {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "init", "-q", "-b", "main")
	run(t, dir, "config", "user.email", "test@example.com")
	run(t, dir, "config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, dir, "add", "a.txt")
	run(t, dir, "commit", "-q", "-m", "msg")
	sha := run(t, dir, "rev-parse", "HEAD")
	repo, err := gitutil.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return repo, dir, sha
}

func newSession(t *testing.T, repo *gitutil.Repository, store *blobstore.MemStore, input string) (*protocol.Helper, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	l := layout.New("/repo")
	refsMgr := refs.New(store, l, repo)
	var out, errOut bytes.Buffer
	h := protocol.New(repo, store, l, refsMgr, strings.NewReader(input), &out, &errOut)
	return h, &out, &errOut
}

func TestCapabilities(t *testing.T) {
	repo, _, _ := gitRepoWithCommit(t)
	store := blobstore.NewMemStore()
	h, out, _ := newSession(t, repo, store, "capabilities\n\n")
	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "option\npush\nfetch\n\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}

func TestOptionVerbosity(t *testing.T) {
	repo, _, _ := gitRepoWithCommit(t)
	store := blobstore.NewMemStore()
	h, out, _ := newSession(t, repo, store, "option verbosity 2\n\n")
	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "ok\n") {
		t.Fatalf("got %q", out.String())
	}
}

func TestListEmptyRemoteForPush(t *testing.T) {
	repo, _, _ := gitRepoWithCommit(t)
	store := blobstore.NewMemStore()
	h, out, _ := newSession(t, repo, store, "list for-push\n\n")
	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "\n" {
		t.Fatalf("expected a single blank line for an empty remote, got %q", out.String())
	}
}

func TestPushSingleCommitToEmptyRemote(t *testing.T) {
	repo, _, sha := gitRepoWithCommit(t)
	store := blobstore.NewMemStore()

	input := "list for-push\n\npush refs/heads/main:refs/heads/main\n\n"
	h, out, _ := newSession(t, repo, store, input)
	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	expected := "\nok refs/heads/main\n\n"
	if out.String() != expected {
		t.Fatalf("got %q, want %q", out.String(), expected)
	}

	l := layout.New("/repo")
	path, err := l.RefPath("refs/heads/main")
	if err != nil {
		t.Fatalf("RefPath: %v", err)
	}
	_, data, err := store.Download(context.Background(), path)
	if err != nil {
		t.Fatalf("download ref: %v", err)
	}
	if strings.TrimSpace(string(data)) != sha {
		t.Fatalf("got ref value %q, want %q", data, sha)
	}

	_, headData, err := store.Download(context.Background(), l.HeadPath())
	if err != nil {
		t.Fatalf("download HEAD: %v", err)
	}
	if strings.TrimSpace(string(headData)) != "ref: refs/heads/main" {
		t.Fatalf("got HEAD %q", headData)
	}
}

func TestPushNonFastForwardRejected(t *testing.T) {
	repo, dir, sha := gitRepoWithCommit(t)
	store := blobstore.NewMemStore()
	l := layout.New("/repo")
	refsMgr := refs.New(store, l, repo)

	// Advance main further, then seed the remote with the descendant
	// commit while leaving local refs/heads/main (via rev-parse src) at
	// the earlier sha: pushing sha over a remote that already holds its
	// descendant is not a fast-forward, even though both commits are
	// present locally.
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("more\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, dir, "add", "b.txt")
	run(t, dir, "commit", "-q", "-m", "advance")
	descendant := run(t, dir, "rev-parse", "HEAD")
	run(t, dir, "update-ref", "refs/heads/main", sha)

	if err := refsMgr.Update(context.Background(), "refs/heads/main", descendant, false); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	input := "list for-push\n\npush refs/heads/main:refs/heads/main\n\n"
	var out, errOut bytes.Buffer
	h := protocol.New(repo, store, l, refs.New(store, l, repo), strings.NewReader(input), &out, &errOut)
	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "error refs/heads/main non-fast forward") {
		t.Fatalf("got %q", out.String())
	}
}
