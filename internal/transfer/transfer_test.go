package transfer_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anishathalye/git-remote-dropbox/internal/blobstore"
	"github.com/anishathalye/git-remote-dropbox/internal/gitutil"
	"github.com/anishathalye/git-remote-dropbox/internal/layout"
	"github.com/anishathalye/git-remote-dropbox/internal/transfer"
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

func gitRepo(t *testing.T) (*gitutil.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "init", "-q")
	run(t, dir, "config", "user.email", "test@example.com")
	run(t, dir, "config", "user.name", "test")
	repo, err := gitutil.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return repo, dir
}

func commit(t *testing.T, dir, name, contents string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, dir, "add", name)
	run(t, dir, "commit", "-q", "-m", "msg")
	return run(t, dir, "rev-parse", "HEAD")
}

func TestPushThenFetchRoundTrip(t *testing.T) {
	srcRepo, srcDir := gitRepo(t)
	sha := commit(t, srcDir, "a.txt", "hello\n")
	commit(t, srcDir, "b.txt", "world\n")
	head := run(t, srcDir, "rev-parse", "HEAD")
	_ = sha

	store := blobstore.NewMemStore()
	l := layout.New("/repo")

	var pushEvents []transfer.Event
	uploaded, err := transfer.Push(context.Background(), srcRepo, store, l, head, nil, func(e transfer.Event) {
		pushEvents = append(pushEvents, e)
	})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if uploaded == 0 {
		t.Fatal("expected at least one object uploaded")
	}
	if len(pushEvents) != uploaded {
		t.Fatalf("expected one progress event per object, got %d for %d objects", len(pushEvents), uploaded)
	}

	dstRepo, _ := gitRepo(t)
	var fetchEvents []transfer.Event
	if err := transfer.Fetch(context.Background(), dstRepo, store, l, []string{head}, func(e transfer.Event) {
		fetchEvents = append(fetchEvents, e)
	}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(fetchEvents) == 0 {
		t.Fatal("expected fetch progress events")
	}
	if !dstRepo.HistoryExists(head) {
		t.Fatal("expected destination repo to have full history after fetch")
	}
}

func TestPushExcludesAlreadyRemoteObjects(t *testing.T) {
	srcRepo, srcDir := gitRepo(t)
	first := commit(t, srcDir, "a.txt", "one\n")
	second := commit(t, srcDir, "a.txt", "two\n")

	store := blobstore.NewMemStore()
	l := layout.New("/repo")

	if _, err := transfer.Push(context.Background(), srcRepo, store, l, first, nil, nil); err != nil {
		t.Fatalf("first push: %v", err)
	}

	fullCount, err := transfer.Push(context.Background(), srcRepo, blobstore.NewMemStore(), l, second, nil, nil)
	if err != nil {
		t.Fatalf("push without excludes: %v", err)
	}

	secondCount, err := transfer.Push(context.Background(), srcRepo, store, l, second, []string{first}, nil)
	if err != nil {
		t.Fatalf("second push: %v", err)
	}
	if secondCount >= fullCount {
		t.Fatalf("expected fewer new objects on second push (excluding %s): without excludes=%d with excludes=%d", first, fullCount, secondCount)
	}
}

func TestFetchDetectsIntegrityFailure(t *testing.T) {
	srcRepo, srcDir := gitRepo(t)
	head := commit(t, srcDir, "a.txt", "hello\n")

	store := blobstore.NewMemStore()
	l := layout.New("/repo")

	if _, err := transfer.Push(context.Background(), srcRepo, store, l, head, nil, nil); err != nil {
		t.Fatalf("Push: %v", err)
	}

	// Corrupt the uploaded object in place.
	path := l.ObjectPath(head)
	rev, _ := store.Rev(path)
	if _, err := store.Upload(context.Background(), path, []byte("not a real object"), blobstore.UpdateRev(rev)); err != nil {
		t.Fatalf("corrupt object: %v", err)
	}

	dstRepo, _ := gitRepo(t)
	err := transfer.Fetch(context.Background(), dstRepo, store, l, []string{head}, nil)
	if err == nil {
		t.Fatal("expected fetch to fail on corrupted object")
	}
}
