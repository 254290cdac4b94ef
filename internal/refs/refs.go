// Package refs is the ref manager (spec.md §4.5, component C5): it applies
// the Add/Update(rev)/Overwrite write-mode policy table to ref updates,
// enforces fast-forward unless force-pushed, and manages the remote's
// symbolic HEAD. Grounded on original_source/src/git_remote_dropbox/helper.py's
// _write_ref, get_refs, write_symbolic_ref and read_symbolic_ref.
package refs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anishathalye/git-remote-dropbox/internal/blobstore"
	"github.com/anishathalye/git-remote-dropbox/internal/gitutil"
	"github.com/anishathalye/git-remote-dropbox/internal/layout"
)

// ErrNonFastForward is returned by Update when sha is not a fast-forward of
// the ref's current value and force was not requested. The exact string
// matters: git-remote-helpers surfaces it back to the user verbatim.
var ErrNonFastForward = errors.New("non-fast forward")

// ErrFetchFirst is returned by Update when the remote's copy of the ref has
// moved since it was last read, so the local git process must fetch before
// it can decide whether the push is a fast-forward.
var ErrFetchFirst = errors.New("fetch first")

// ErrDeleteCurrentBranch is returned by Delete when name is the ref HEAD
// currently points at.
var ErrDeleteCurrentBranch = errors.New("refusing to delete the current branch")

// entry is a ref's session-cached state: the store revision and sha last
// observed for it, populated by List or Value.
type entry struct {
	rev string
	sha string
}

// headEntry caches the revision last observed for the remote's symbolic
// HEAD, populated by ReadSymbolicRef so a later WriteSymbolicRef can
// compare-and-swap against it instead of blindly overwriting.
type headEntry struct {
	rev   string
	known bool
}

// Manager reads and writes refs inside one repository folder in a
// blobstore.Store, tracking the revision and value of each ref it has
// already read this session so Update can follow spec.md §4.5's policy
// table exactly (a ref with no session entry is unconditionally Added; one
// with an entry is CAS-updated or overwritten).
type Manager struct {
	store  blobstore.Store
	layout layout.Layout
	repo   *gitutil.Repository

	entries map[string]entry
	head    headEntry
}

// New returns a Manager operating over store at layout l, using repo to
// check ancestry for fast-forward decisions.
func New(store blobstore.Store, l layout.Layout, repo *gitutil.Repository) *Manager {
	return &Manager{store: store, layout: l, repo: repo, entries: map[string]entry{}}
}

// Ref is one entry of the remote's ref advertisement.
type Ref struct {
	Name string
	SHA  string
}

// List returns every ref currently stored remotely, recording each one's
// revision for later CAS writes.
func (m *Manager) List(ctx context.Context) ([]Ref, error) {
	files, err := m.store.ListFolder(ctx, m.layout.RefsFolder())
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	refs := make([]Ref, 0, len(files))
	for _, f := range files {
		name, err := m.layout.RefNameFromPath(f.Path)
		if err != nil {
			continue // not a ref file (shouldn't happen under refs/, but be defensive)
		}
		rev, data, err := m.store.Download(ctx, f.Path)
		if err != nil {
			return nil, fmt.Errorf("download ref %s: %w", name, err)
		}
		sha := strings.TrimSpace(string(data))
		m.entries[name] = entry{rev: rev, sha: sha}
		refs = append(refs, Ref{Name: name, SHA: sha})
	}
	return refs, nil
}

// Value returns the current SHA of name, or "" if it does not exist.
func (m *Manager) Value(ctx context.Context, name string) (string, error) {
	path, err := m.layout.RefPath(name)
	if err != nil {
		return "", err
	}
	rev, data, err := m.store.Download(ctx, path)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	sha := strings.TrimSpace(string(data))
	m.entries[name] = entry{rev: rev, sha: sha}
	return sha, nil
}

// Update writes sha as the new value of ref name, applying spec.md §4.5's
// policy table exactly:
//   - no session entry for name: Add. Store Conflict -> ErrFetchFirst.
//   - a session entry exists and force is false: the entry's sha must exist
//     locally (otherwise ErrFetchFirst, the local repo hasn't seen what the
//     remote last held) and must be an ancestor of sha (otherwise
//     ErrNonFastForward); then Update(rev). Store Conflict -> ErrFetchFirst.
//   - a session entry exists and force is true: Overwrite, unconditionally.
func (m *Manager) Update(ctx context.Context, name, sha string, force bool) error {
	path, err := m.layout.RefPath(name)
	if err != nil {
		return err
	}

	e, known := m.entries[name]
	var mode blobstore.WriteModeSpec
	switch {
	case !known:
		mode = blobstore.AddMode
	case force:
		mode = blobstore.OverwriteMode
	default:
		if !m.repo.ObjectExists(e.sha) {
			return ErrFetchFirst
		}
		if !m.repo.IsAncestor(e.sha, sha) {
			return ErrNonFastForward
		}
		mode = blobstore.UpdateRev(e.rev)
	}

	newRev, err := m.store.Upload(ctx, path, []byte(sha+"\n"), mode)
	if err != nil {
		if errors.Is(err, blobstore.ErrConflict) {
			return ErrFetchFirst
		}
		return err
	}
	m.entries[name] = entry{rev: newRev, sha: sha}
	return nil
}

// Delete removes ref name from the remote. It is not an error to delete a
// ref that does not exist. Deleting the ref HEAD currently points at is
// refused outright (spec.md §4.5).
func (m *Manager) Delete(ctx context.Context, name string) error {
	head, err := m.ReadSymbolicRef(ctx)
	if err != nil {
		return err
	}
	if head == name {
		return ErrDeleteCurrentBranch
	}

	path, err := m.layout.RefPath(name)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, path); err != nil {
		return err
	}
	delete(m.entries, name)
	return nil
}

// ReadSymbolicRef returns the ref name HEAD currently points at, or "" if
// no symbolic HEAD has been written yet. It records the revision observed
// (or its absence) so a later WriteSymbolicRef can compare-and-swap against
// exactly what this call saw.
func (m *Manager) ReadSymbolicRef(ctx context.Context) (string, error) {
	rev, data, err := m.store.Download(ctx, m.layout.HeadPath())
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			m.head = headEntry{known: false}
			return "", nil
		}
		return "", err
	}
	m.head = headEntry{rev: rev, known: true}
	line := strings.TrimSpace(string(data))
	const prefix = "ref: "
	if !strings.HasPrefix(line, prefix) {
		return "", fmt.Errorf("malformed symbolic ref contents: %q", line)
	}
	return strings.TrimPrefix(line, prefix), nil
}

// WriteSymbolicRef sets the remote's HEAD to point at target, following
// spec.md §4.5's write_symbolic_ref(name, target, rev=None) policy: if no
// prior read observed a HEAD revision this session, the write is an atomic
// Add that fails if a concurrent writer creates HEAD first; otherwise it is
// a compare-and-swap Update(rev) against the revision ReadSymbolicRef last
// saw. The returned bool reports whether the write actually took effect; a
// false return with a nil error means the store rejected the write as a
// conflict (someone else won the race), not that an error occurred.
func (m *Manager) WriteSymbolicRef(ctx context.Context, target string) (bool, error) {
	path := m.layout.HeadPath()
	mode := blobstore.AddMode
	if m.head.known {
		mode = blobstore.UpdateRev(m.head.rev)
	}
	rev, err := m.store.Upload(ctx, path, []byte("ref: "+target+"\n"), mode)
	if err != nil {
		if errors.Is(err, blobstore.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	m.head = headEntry{rev: rev, known: true}
	return true, nil
}
