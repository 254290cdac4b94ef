package remotecfg_test

import (
	"context"
	"strings"
	"testing"

	"github.com/anishathalye/git-remote-dropbox/internal/remotecfg"
)

func TestOpenRejectsS3URLWithoutBucket(t *testing.T) {
	_, err := remotecfg.Open(context.Background(), "s3:///repo")
	if err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("expected a bucket-missing error, got %v", err)
	}
}

func TestOpenRejectsS3URLWithoutPath(t *testing.T) {
	_, err := remotecfg.Open(context.Background(), "s3://my-bucket")
	if err == nil || !strings.Contains(err.Error(), "repository path") {
		t.Fatalf("expected a path-missing error, got %v", err)
	}
}

func TestOpenRejectsUnparsableURL(t *testing.T) {
	_, err := remotecfg.Open(context.Background(), "://not-a-url")
	if err == nil {
		t.Fatal("expected an error for an unparsable URL")
	}
}
