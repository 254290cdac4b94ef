package dropboxapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anishathalye/git-remote-dropbox/internal/blobstore"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New("test-token", srv.Client())
	withTestBaseURLs(c, srv.URL)
	return c
}

func TestUploadAddSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/upload" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		arg := r.Header.Get("Dropbox-API-Arg")
		var parsed uploadArg
		if err := json.Unmarshal([]byte(arg), &parsed); err != nil {
			t.Fatalf("decode arg: %v", err)
		}
		if parsed.Mode.Tag != "add" {
			t.Fatalf("expected add mode, got %q", parsed.Mode.Tag)
		}
		json.NewEncoder(w).Encode(map[string]string{"rev": "001"})
	})

	rev, err := c.Upload(context.Background(), "/refs/heads/main", []byte("sha\n"), blobstore.AddMode)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if rev != "001" {
		t.Fatalf("got rev %q", rev)
	}
}

func TestUploadConflictMapsToErrConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_summary": "path/conflict/file/"}`))
	})

	_, err := c.Upload(context.Background(), "/x", []byte("y"), blobstore.AddMode)
	if !errors.Is(err, blobstore.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDownloadNotFoundMapsToErrNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error_summary": "path/not_found/"}`))
	})

	_, _, err := c.Download(context.Background(), "/missing")
	if !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// The real Dropbox API v2 reports a missing path on download/list_folder/
// delete_v2 as HTTP 409 with a path/not_found error_summary, not a 404.
func TestDownloadPathNotFoundConflictMapsToErrNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_summary": "path/not_found/.."}`))
	})

	_, _, err := c.Download(context.Background(), "/missing")
	if !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, blobstore.ErrConflict) {
		t.Fatalf("expected a path/not_found 409 to not also match ErrConflict, got %v", err)
	}
}

func TestListFolderFollowsCursor(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Path {
		case "/files/list_folder":
			json.NewEncoder(w).Encode(listFolderResult{
				Entries: []metadataEntry{{Tag: "file", Path: "/r/objects/ab/c", Rev: "1"}},
				Cursor:  "cursor-1",
				HasMore: true,
			})
		case "/files/list_folder/continue":
			json.NewEncoder(w).Encode(listFolderResult{
				Entries: []metadataEntry{{Tag: "file", Path: "/r/objects/de/f", Rev: "2"}},
				HasMore: false,
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	files, err := c.ListFolder(context.Background(), "/r")
	if err != nil {
		t.Fatalf("ListFolder: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files across both pages, got %d", len(files))
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDeleteTreatsNotFoundAsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error_summary": "path_lookup/not_found/"}`))
	})

	if err := c.Delete(context.Background(), "/already-gone"); err != nil {
		t.Fatalf("expected nil error deleting absent path, got %v", err)
	}
}

func TestDeleteTreats409NotFoundAsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_summary": "path_lookup/not_found/"}`))
	})

	if err := c.Delete(context.Background(), "/already-gone"); err != nil {
		t.Fatalf("expected nil error deleting absent path, got %v", err)
	}
}

func TestListFolderOn409NotFoundReturnsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_summary": "path/not_found/.."}`))
	})

	files, err := c.ListFolder(context.Background(), "/fresh-remote")
	if err != nil {
		t.Fatalf("ListFolder: %v", err)
	}
	if files != nil {
		t.Fatalf("expected nil file list for a not-yet-created remote, got %v", files)
	}
}
