package s3blob

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/anishathalye/git-remote-dropbox/internal/blobstore"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("ak", "sk", ""),
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
	})
	return &Store{client: client, bucket: "test-bucket"}
}

func TestUploadSingleShotUnderThreshold(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("expected PutObject (PUT), got %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("ETag", `"abc123"`)
	})

	rev, err := s.Upload(context.Background(), "/refs/heads/main", []byte("sha\n"), blobstore.OverwriteMode)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if rev != "abc123" {
		t.Fatalf("got rev %q", rev)
	}
}

func TestUploadMultipartAboveThreshold(t *testing.T) {
	var createCalled, completeCalled bool
	partCount := 0
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.Method == http.MethodPost && q.Has("uploads"):
			createCalled = true
			w.Header().Set("Content-Type", "application/xml")
			w.Write([]byte(`<InitiateMultipartUploadResult><UploadId>upload-1</UploadId></InitiateMultipartUploadResult>`))
		case r.Method == http.MethodPut && q.Has("partNumber"):
			partCount++
			w.Header().Set("ETag", `"part-etag"`)
		case r.Method == http.MethodPost && q.Has("uploadId"):
			completeCalled = true
			w.Header().Set("Content-Type", "application/xml")
			w.Write([]byte(`<CompleteMultipartUploadResult><ETag>"final-etag"</ETag></CompleteMultipartUploadResult>`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.String())
		}
	})

	data := bytes.Repeat([]byte("x"), ChunkSize+1)
	rev, err := s.Upload(context.Background(), "/objects/ab/cdef", data, blobstore.AddMode)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if rev != "final-etag" {
		t.Fatalf("got rev %q", rev)
	}
	if !createCalled || !completeCalled {
		t.Fatalf("expected both create and complete calls, got create=%v complete=%v", createCalled, completeCalled)
	}
	if partCount != 2 {
		t.Fatalf("expected 2 parts for a ChunkSize+1-byte payload, got %d", partCount)
	}
}

func TestDownloadNoSuchKeyMapsToErrNotFound(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`))
	})

	_, _, err := s.Download(context.Background(), "/missing")
	if !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUploadPreconditionFailedMapsToErrConflict(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusPreconditionFailed)
		w.Write([]byte(`<Error><Code>PreconditionFailed</Code><Message>conflict</Message></Error>`))
	})

	_, err := s.Upload(context.Background(), "/x", []byte("y"), blobstore.AddMode)
	if !errors.Is(err, blobstore.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestListFolderPaginatesOnTruncation(t *testing.T) {
	calls := 0
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/xml")
		if r.URL.Query().Get("continuation-token") == "" {
			w.Write([]byte(`<ListBucketResult>
				<Contents><Key>r/objects/ab/c</Key><ETag>"1"</ETag></Contents>
				<IsTruncated>true</IsTruncated>
				<NextContinuationToken>page-2</NextContinuationToken>
			</ListBucketResult>`))
			return
		}
		w.Write([]byte(`<ListBucketResult>
			<Contents><Key>r/objects/de/f</Key><ETag>"2"</ETag></Contents>
			<IsTruncated>false</IsTruncated>
		</ListBucketResult>`))
	})

	files, err := s.ListFolder(context.Background(), "/r")
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

func TestDeleteSucceedsOnAbsentKey(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if err := s.Delete(context.Background(), "/already-gone"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

var _ blobstore.Store = (*Store)(nil)
