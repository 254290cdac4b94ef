package transfer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/anishathalye/git-remote-dropbox/internal/blobstore"
	"github.com/anishathalye/git-remote-dropbox/internal/gitutil"
	"github.com/anishathalye/git-remote-dropbox/internal/layout"
	"github.com/anishathalye/git-remote-dropbox/internal/workerpool"
)

// Push uploads every object reachable from sha, excluding anything
// reachable from excludes that the local repository already has, to store.
// It uploads every object before returning, leaving the ref update (refs.Manager.Update) to the caller — spec.md §4.4 requires objects land
// before the ref is ever allowed to point at them.
func Push(ctx context.Context, repo *gitutil.Repository, store blobstore.Store, l layout.Layout, sha string, excludes []string, progress ProgressFunc) (uploaded int, err error) {
	objects, err := repo.ListObjects(sha, excludes)
	if err != nil {
		return 0, fmt.Errorf("list local objects: %w", err)
	}
	total := len(objects)
	if total == 0 {
		return 0, nil
	}

	var mu sync.Mutex
	done := 0
	report := func(sha string, size int64) {
		mu.Lock()
		done++
		d := done
		mu.Unlock()
		if progress != nil {
			progress(Event{Done: d, Total: total, SHA: sha, Bytes: size})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerpool.DefaultWorkers)

	for _, objSHA := range objects {
		objSHA := objSHA
		g.Go(func() error {
			data, err := repo.EncodeObject(objSHA)
			if err != nil {
				return fmt.Errorf("encode object %s: %w", objSHA, err)
			}
			path := l.ObjectPath(objSHA)
			err = blobstore.Retry(gctx, func() error {
				_, err := store.Upload(gctx, path, data, blobstore.OverwriteMode)
				return err
			})
			if err != nil {
				return fmt.Errorf("upload object %s: %w", objSHA, err)
			}
			report(objSHA, int64(len(data)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total, nil
}
