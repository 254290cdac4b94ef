// Package blobstore defines the contract between the remote-helper core and
// the cloud file-sync store that backs it. Concrete backends (dropboxapi,
// s3blob) implement Store; the core never imports a store SDK directly.
package blobstore

import (
	"context"
	"errors"
	"fmt"
)

// WriteMode selects the conditional-write semantics of Upload.
type WriteMode int

const (
	// Add succeeds only if the path does not currently exist.
	Add WriteMode = iota
	// Overwrite writes unconditionally.
	Overwrite
	// Update succeeds only if the path's current revision equals Rev.
	Update
)

func (m WriteMode) String() string {
	switch m {
	case Add:
		return "add"
	case Overwrite:
		return "overwrite"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// UpdateRev builds an Update mode bound to a specific revision token.
func UpdateRev(rev string) WriteModeSpec {
	return WriteModeSpec{Mode: Update, Rev: rev}
}

// AddMode and OverwriteMode are the zero-argument counterparts of UpdateRev.
var (
	AddMode       = WriteModeSpec{Mode: Add}
	OverwriteMode = WriteModeSpec{Mode: Overwrite}
)

// WriteModeSpec carries a WriteMode plus the revision token an Update mode
// is conditioned on.
type WriteModeSpec struct {
	Mode WriteMode
	Rev  string
}

func (s WriteModeSpec) String() string {
	if s.Mode == Update {
		return fmt.Sprintf("update(%s)", s.Rev)
	}
	return s.Mode.String()
}

// Sentinel errors every Store implementation must map its backend's errors
// onto. Callers use errors.Is to test for them.
var (
	// ErrNotFound is returned by Download when the path does not exist.
	ErrNotFound = errors.New("blobstore: not found")
	// ErrConflict is returned by Upload when a conditional write's
	// precondition (Add: must not exist; Update: revision mismatch) fails.
	ErrConflict = errors.New("blobstore: conflict")
	// ErrTransient wraps a retriable backend failure (e.g. an internal
	// server error, or an upload-session offset mismatch whose retry budget
	// is not yet exhausted at the call site).
	ErrTransient = errors.New("blobstore: transient error")
)

// FileInfo describes one entry returned by ListFolder.
type FileInfo struct {
	// Path is the lower-cased path of the file, relative to the store root.
	Path string
	// Rev is the file's current revision token.
	Rev string
}

// Store is the minimal cloud file-sync abstraction the remote-helper core
// consumes. Implementations need not be safe for long-lived sessions: the
// contract only requires that all operations are safe to call concurrently
// on a single shared Store, across however many workers call them.
type Store interface {
	// Download returns the current revision and content of path.
	// Returns ErrNotFound if the path does not exist.
	Download(ctx context.Context, path string) (rev string, data []byte, err error)

	// Upload writes data to path under the given conditional-write mode.
	// Returns the new revision token on success.
	// Returns ErrConflict if the mode's precondition fails.
	Upload(ctx context.Context, path string, data []byte, mode WriteModeSpec) (rev string, err error)

	// ListFolder recursively lists every file under path. Non-file entries
	// (folders, deleted markers) are not returned.
	ListFolder(ctx context.Context, path string) ([]FileInfo, error)

	// Delete removes path. Deleting an already-absent path is not an error.
	Delete(ctx context.Context, path string) error
}
