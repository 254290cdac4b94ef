// Package gitutil is the Local Git facade (spec.md §4.1, component C1): it
// shells out to the git binary to read/write loose objects, resolve refs,
// enumerate reachable objects and check ancestry.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// EmptyTreeHash is the well-known SHA-1 of the empty tree. `git cat-file -e`
// reports it as present even when it is not actually in the object store;
// the fetch engine must write it explicitly (spec.md §4.1 edge case).
const EmptyTreeHash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Kind identifies one of the four Git object types.
type Kind string

const (
	KindBlob   Kind = "blob"
	KindCommit Kind = "commit"
	KindTree   Kind = "tree"
	KindTag    Kind = "tag"
)

// Repository wraps a local working copy or bare repository, dispatching
// every operation to the git binary in that directory's context, the same
// shape as bits/repository.go's (*Repository).Git wrapper in the teacher.
type Repository struct {
	dir string
}

// Open resolves dir's git directory (failing if dir is not inside a git
// repository) and returns a Repository scoped to it.
func Open(dir string) (*Repository, error) {
	r := &Repository{dir: dir}
	if _, err := r.output(nil, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	return r, nil
}

// run executes `git <args>` with dir as the working directory, feeding it
// stdin and returning stdout. stderr is not captured (matches the teacher:
// diagnostics go straight to the terminal, not into the error value).
func (r *Repository) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return stdout.Bytes(), nil
}

func (r *Repository) output(stdin []byte, args ...string) (string, error) {
	out, err := r.run(nil, stdin, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *Repository) ok(args ...string) bool {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	return cmd.Run() == nil
}

// ObjectExists reports whether sha is present in the object store. Per
// spec.md §4.1, Git may report the empty-tree hash as present even when it
// has never actually been written.
func (r *Repository) ObjectExists(sha string) bool {
	return r.ok("cat-file", "-e", sha)
}

// HistoryExists reports whether sha, and its whole reachable closure, is
// present locally.
func (r *Repository) HistoryExists(sha string) bool {
	return r.ok("rev-list", "--objects", sha)
}

// RefValue resolves name (a ref, or any revision expression) to a SHA.
func (r *Repository) RefValue(name string) (string, error) {
	return r.output(nil, "rev-parse", name)
}

// IsAncestor reports whether ancestor is an ancestor of ref (i.e. whether a
// fast-forward from ancestor to ref is possible).
func (r *Repository) IsAncestor(ancestor, ref string) bool {
	return r.ok("merge-base", "--is-ancestor", ancestor, ref)
}

// GetRemoteURL returns the configured URL of the given remote.
func (r *Repository) GetRemoteURL(name string) (string, error) {
	return r.output(nil, "remote", "get-url", name)
}

// SymbolicRef resolves a symbolic ref (only ever called with "HEAD" in
// practice) to the ref name it points at.
func (r *Repository) SymbolicRef(name string) (string, error) {
	return r.output(nil, "symbolic-ref", name)
}

// ObjectKind returns the type of sha.
func (r *Repository) ObjectKind(sha string) (Kind, error) {
	out, err := r.output(nil, "cat-file", "-t", sha)
	if err != nil {
		return "", err
	}
	return Kind(out), nil
}

// ObjectSize returns the size in bytes of sha's payload.
func (r *Repository) ObjectSize(sha string) (int64, error) {
	out, err := r.output(nil, "cat-file", "-s", sha)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(out, 10, 64)
}

// ObjectPayload returns the raw contents of sha. If kind is non-empty, the
// object is read as exactly that kind (no pretty-printing); otherwise a
// pretty-printed representation is returned.
func (r *Repository) ObjectPayload(sha string, kind Kind) ([]byte, error) {
	if kind != "" {
		return r.run(nil, nil, "cat-file", string(kind), sha)
	}
	return r.run(nil, nil, "cat-file", "-p", sha)
}

// EncodeObject returns the canonical, zlib-compressed loose-object byte
// representation of sha: "kind SP size NUL payload".
func (r *Repository) EncodeObject(sha string) ([]byte, error) {
	kind, err := r.ObjectKind(sha)
	if err != nil {
		return nil, fmt.Errorf("object kind of %s: %w", sha, err)
	}
	size, err := r.ObjectSize(sha)
	if err != nil {
		return nil, fmt.Errorf("object size of %s: %w", sha, err)
	}
	payload, err := r.ObjectPayload(sha, kind)
	if err != nil {
		return nil, fmt.Errorf("object payload of %s: %w", sha, err)
	}

	var header bytes.Buffer
	header.WriteString(string(kind))
	header.WriteByte(' ')
	header.WriteString(strconv.FormatInt(size, 10))
	header.WriteByte(0)

	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(header.Bytes()); err != nil {
		return nil, err
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WriteObject hashes payload as kind and writes it into the local object
// store, returning the computed SHA.
func (r *Repository) WriteObject(kind Kind, payload []byte) (string, error) {
	out, err := r.output(payload, "hash-object", "-w", "--stdin", "-t", string(kind))
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("hash-object returned no sha for kind %s", kind)
	}
	return out, nil
}

// DecodeAndStore inflates data as a canonical loose object, splits its
// header, and writes the payload into the local object store, returning the
// computed SHA. This is the inverse of EncodeObject.
func (r *Repository) DecodeAndStore(data []byte) (string, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("inflate loose object: %w", err)
	}
	defer zr.Close()
	var decompressed bytes.Buffer
	if _, err := decompressed.ReadFrom(zr); err != nil {
		return "", fmt.Errorf("inflate loose object: %w", err)
	}

	raw := decompressed.Bytes()
	idx := bytes.IndexByte(raw, 0)
	if idx < 0 {
		return "", fmt.Errorf("loose object has no NUL header terminator")
	}
	header := raw[:idx]
	payload := raw[idx+1:]
	fields := bytes.Fields(header)
	if len(fields) < 1 {
		return "", fmt.Errorf("loose object header is empty")
	}
	return r.WriteObject(Kind(fields[0]), payload)
}

// ListObjects returns every object reachable from ref, excluding anything
// reachable from an entry of excludes that exists locally. Non-existent
// excludes are silently dropped (they name objects the remote has never
// actually seen, e.g. a stale cached sha).
func (r *Repository) ListObjects(ref string, excludes []string) ([]string, error) {
	args := []string{"rev-list", "--objects", ref}
	for _, ex := range excludes {
		if r.ObjectExists(ex) {
			args = append(args, "^"+ex)
		}
	}
	out, err := r.output(nil, args...)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	lines := strings.Split(out, "\n")
	shas := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		shas = append(shas, fields[0])
	}
	return shas, nil
}

// ReferencedObjects returns the objects directly referenced by sha,
// following the kind-specific rules of spec.md §4.1/§3: blobs reference
// nothing, tags reference one target, commits reference a tree plus zero or
// more parents, trees reference children (submodule entries, mode
// "160000 commit", are skipped).
func (r *Repository) ReferencedObjects(sha string) ([]string, error) {
	kind, err := r.ObjectKind(sha)
	if err != nil {
		return nil, err
	}
	if kind == KindBlob {
		return nil, nil
	}

	raw, err := r.ObjectPayload(sha, "")
	if err != nil {
		return nil, err
	}
	data := strings.TrimSpace(string(raw))

	switch kind {
	case KindTag:
		lines := strings.SplitN(data, "\n", 2)
		fields := strings.Fields(lines[0])
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed tag object %s", sha)
		}
		return []string{fields[1]}, nil
	case KindCommit:
		lines := strings.Split(data, "\n")
		if len(lines) == 0 {
			return nil, fmt.Errorf("malformed commit object %s", sha)
		}
		treeFields := strings.Fields(lines[0])
		if len(treeFields) < 2 {
			return nil, fmt.Errorf("malformed commit object %s: no tree line", sha)
		}
		objs := []string{treeFields[1]}
		for _, line := range lines[1:] {
			if !strings.HasPrefix(line, "parent ") {
				break
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return nil, fmt.Errorf("malformed parent line in %s", sha)
			}
			objs = append(objs, fields[1])
		}
		return objs, nil
	case KindTree:
		if data == "" {
			return nil, nil
		}
		lines := strings.Split(data, "\n")
		objs := make([]string, 0, len(lines))
		for _, line := range lines {
			if strings.HasPrefix(line, "160000 commit ") {
				continue // submodule entry, nothing to download
			}
			fields := strings.Fields(line)
			if len(fields) < 3 {
				return nil, fmt.Errorf("malformed tree entry %q in %s", line, sha)
			}
			objs = append(objs, fields[2])
		}
		return objs, nil
	default:
		return nil, fmt.Errorf("unexpected git object type: %s", kind)
	}
}
