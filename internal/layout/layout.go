// Package layout implements the deterministic mapping from Git entities
// (refs, objects, HEAD) onto paths inside a blob-store repository folder
// (spec.md §4.3). It is pure: no I/O, no blobstore dependency.
package layout

import (
	"fmt"
	"path"
	"strings"
)

// Layout resolves paths relative to one repository root inside the store.
type Layout struct {
	root string
}

// New returns a Layout rooted at root. root is lower-cased, since blob-store
// paths are case-insensitive and must be canonicalized before use.
func New(root string) Layout {
	return Layout{root: strings.ToLower(strings.TrimSuffix(root, "/"))}
}

// Root returns the (lower-cased) repository root path.
func (l Layout) Root() string { return l.root }

// RefPath returns the path of a ref file. name must start with "refs/".
func (l Layout) RefPath(name string) (string, error) {
	if !strings.HasPrefix(name, "refs/") {
		return "", fmt.Errorf("invalid ref name: %s", name)
	}
	return path.Join(l.root, strings.ToLower(name)), nil
}

// RefNameFromPath is the inverse of RefPath: given the full path of a
// remote ref file, return its ref name.
func (l Layout) RefNameFromPath(p string) (string, error) {
	prefix := l.root + "/"
	if !strings.HasPrefix(p, prefix) {
		return "", fmt.Errorf("invalid ref path: %s", p)
	}
	return p[len(prefix):], nil
}

// ObjectPath returns the path of a loose object, fanned out by the first
// two characters of its SHA.
func (l Layout) ObjectPath(sha string) string {
	sha = strings.ToLower(sha)
	return path.Join(l.root, "objects", sha[:2], sha[2:])
}

// HeadPath returns the path of the repository's symbolic HEAD file.
func (l Layout) HeadPath() string {
	return path.Join(l.root, "HEAD")
}

// RefsFolder returns the path under which all refs are listed.
func (l Layout) RefsFolder() string {
	return path.Join(l.root, "refs")
}
