// Package remotecfg wires internal/config's token resolution to a concrete
// internal/dropboxapi blobstore.Store and internal/layout root, the one
// path both cmd/git-remote-dropbox and the git-dropbox-manage set-head
// command need to go from a "dropbox://..." URL to a usable Store.
package remotecfg

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/anishathalye/git-remote-dropbox/internal/blobstore"
	"github.com/anishathalye/git-remote-dropbox/internal/config"
	"github.com/anishathalye/git-remote-dropbox/internal/dropboxapi"
	"github.com/anishathalye/git-remote-dropbox/internal/knownremotes"
	"github.com/anishathalye/git-remote-dropbox/internal/layout"
	"github.com/anishathalye/git-remote-dropbox/internal/s3blob"
)

// Resolved is a usable connection to a cloud-store-backed remote.
type Resolved struct {
	Store  blobstore.Store
	Layout layout.Layout
}

// Open resolves rawURL to a usable Store + Layout. A "dropbox://" URL
// (spec.md §6) goes through the local token config; an "s3://" URL
// (this implementation's enrichment over spec.md, demonstrating that any
// Store implementation plugs in per spec.md §6) is handed straight to
// s3blob using the AWS SDK's standard credential chain, since S3 has no
// notion of this project's own token store.
func Open(ctx context.Context, rawURL string) (Resolved, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Resolved{}, fmt.Errorf("parse remote url: %w", err)
	}
	if strings.EqualFold(u.Scheme, "s3") {
		return openS3(ctx, u)
	}
	return openDropbox(ctx, rawURL)
}

func openDropbox(ctx context.Context, rawURL string) (Resolved, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return Resolved{}, fmt.Errorf("locate config file: %w", err)
	}
	cfg, err := config.LoadOrCreate(path)
	if err != nil {
		return Resolved{}, fmt.Errorf("load config: %w", err)
	}
	remote, err := config.Resolve(cfg, rawURL)
	if err != nil {
		return Resolved{}, err
	}
	accessToken, err := remote.Token.Connect(ctx, nil)
	if err != nil {
		return Resolved{}, fmt.Errorf("connect to dropbox: %w", err)
	}
	store := dropboxapi.New(accessToken, nil)
	touchKnownRemote(remote.Account, remote.Path)
	return Resolved{Store: store, Layout: layout.New(remote.Path)}, nil
}

// openS3 builds an s3blob.Store for a "s3://bucket/repository/path" URL.
// The bucket's region can be pinned with a "?region=" query parameter;
// absent that, the AWS SDK's own region resolution (AWS_REGION, shared
// config, IMDS) applies. Credentials always come from the SDK's default
// chain (env vars, shared credentials file, instance/task role) — this
// project's own token store has no role here.
func openS3(ctx context.Context, u *url.URL) (Resolved, error) {
	bucket := u.Host
	if bucket == "" {
		return Resolved{}, errors.New(`s3:// URL must specify a bucket as its host, e.g. "s3://my-bucket/path"`)
	}
	repoPath := strings.TrimSuffix(u.Path, "/")
	if repoPath == "" {
		return Resolved{}, errors.New(`s3:// URL must specify a repository path, e.g. "s3://my-bucket/path"`)
	}
	region := u.Query().Get("region")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	store, err := s3blob.New(ctx, bucket, region, "", "")
	if err != nil {
		return Resolved{}, fmt.Errorf("connect to s3: %w", err)
	}
	touchKnownRemote("", bucket+repoPath)
	return Resolved{Store: store, Layout: layout.New(repoPath)}, nil
}

// touchKnownRemote records a successful connection in the local
// known-remotes cache. Failure here is never fatal: the cache is a
// convenience for `git dropbox show-logins`, not load-bearing state.
func touchKnownRemote(account, path string) {
	kr, err := knownremotes.Open()
	if err != nil {
		return
	}
	defer kr.Close()
	_ = kr.Touch(account, path, time.Now())
}
