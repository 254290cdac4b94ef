package transfer

import (
	"context"
	"fmt"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/emirpasic/gods/stacks/arraystack"

	"github.com/anishathalye/git-remote-dropbox/internal/blobstore"
	"github.com/anishathalye/git-remote-dropbox/internal/gitutil"
	"github.com/anishathalye/git-remote-dropbox/internal/layout"
	"github.com/anishathalye/git-remote-dropbox/internal/workerpool"
)

// job is one unit of work handed to a fetch worker.
type job struct {
	sha string
}

type result struct {
	sha   string
	bytes int64
	err   error
}

// IntegrityError reports that an object's downloaded bytes decode to a SHA
// different from the one requested: a corrupted remote (spec.md §4.4
// failure semantics).
type IntegrityError struct {
	Requested string
	Got       string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: requested %s, got %s", e.Requested, e.Got)
}

// Fetch downloads every object reachable from want that the local
// repository does not already have, verifying each one's content hash
// before writing it, and recursing into newly available objects'
// references until the closure is complete.
func Fetch(ctx context.Context, repo *gitutil.Repository, store blobstore.Store, l layout.Layout, want []string, progress ProgressFunc) error {
	workers := workerpool.DefaultWorkers
	input := make(chan job)
	output := make(chan result, workers)
	pool := workerpool.New(workers, input, output, func(j job) result {
		return fetchOne(ctx, repo, store, l, j.sha)
	})

	queue := arraystack.New()
	for _, sha := range want {
		queue.Add(sha)
	}
	pending := hashset.New()
	downloaded := hashset.New()

	doneCount := 0
	shutdown := func() {
		// Drain every in-flight result so no worker blocks delivering
		// its one outstanding send, then close input so the pool's
		// workers exit and Close can join them.
		for i := 0; i < pending.Size(); i++ {
			<-output
		}
		pool.Close()
	}

	for queue.Size() > 0 || pending.Size() > 0 {
		// At most `workers` jobs are outstanding at once, so output's buffer
		// always has room for every result and a worker is always free to
		// take the next job.
		if queue.Size() > 0 && pending.Size() < workers {
			v, _ := queue.Pop()
			sha := v.(string)
			if downloaded.Contains(sha) || pending.Contains(sha) {
				continue
			}
			if repo.ObjectExists(sha) {
				if sha == gitutil.EmptyTreeHash {
					if _, err := repo.WriteObject(gitutil.KindTree, nil); err != nil {
						shutdown()
						return fmt.Errorf("write empty tree: %w", err)
					}
				}
				if !repo.HistoryExists(sha) {
					refObjs, err := repo.ReferencedObjects(sha)
					if err != nil {
						shutdown()
						return fmt.Errorf("referenced objects of %s: %w", sha, err)
					}
					for _, r := range refObjs {
						queue.Add(r)
					}
					continue
				}
				downloaded.Add(sha)
				doneCount++
				reportFetch(progress, doneCount, pending.Size(), sha, 0)
				continue
			}
			select {
			case input <- job{sha: sha}:
				pending.Add(sha)
			case <-ctx.Done():
				shutdown()
				return ctx.Err()
			}
			continue
		}

		r := <-output
		if r.err != nil {
			pending.Remove(r.sha)
			shutdown()
			return r.err
		}
		pending.Remove(r.sha)
		downloaded.Add(r.sha)
		doneCount++
		refObjs, err := repo.ReferencedObjects(r.sha)
		if err != nil {
			shutdown()
			return fmt.Errorf("referenced objects of %s: %w", r.sha, err)
		}
		for _, ref := range refObjs {
			queue.Add(ref)
		}
		reportFetch(progress, doneCount, pending.Size(), r.sha, r.bytes)
	}

	pool.Close()
	return nil
}

func reportFetch(progress ProgressFunc, done, pendingSize int, sha string, bytes int64) {
	if progress != nil {
		progress(Event{Done: done, Total: done + pendingSize, SHA: sha, Bytes: bytes})
	}
}

// fetchOne is the per-job handler a workerpool.Pool invokes for every
// fetch job: download the object, decode and store it, and verify its
// content hash matches what was requested.
func fetchOne(ctx context.Context, repo *gitutil.Repository, store blobstore.Store, l layout.Layout, sha string) result {
	computed, size, err := downloadAndStore(ctx, repo, store, l, sha)
	if err != nil {
		return result{sha: sha, err: err}
	}
	if computed != sha {
		return result{sha: sha, err: &IntegrityError{Requested: sha, Got: computed}}
	}
	return result{sha: sha, bytes: size}
}

func downloadAndStore(ctx context.Context, repo *gitutil.Repository, store blobstore.Store, l layout.Layout, sha string) (string, int64, error) {
	var data []byte
	err := blobstore.Retry(ctx, func() error {
		_, d, err := store.Download(ctx, l.ObjectPath(sha))
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("download object %s: %w", sha, err)
	}
	computed, err := repo.DecodeAndStore(data)
	if err != nil {
		return "", 0, fmt.Errorf("decode object %s: %w", sha, err)
	}
	return computed, int64(len(data)), nil
}
