// Package transfer implements the push and fetch paths of the transfer
// engine (spec.md §4.4, component C4): the push path uploads a bounded,
// parallel batch of objects before the ref update runs; the fetch path
// walks the object graph breadth-first, downloading and integrity-checking
// objects through a worker pool until the local closure is complete.
// Grounded on original_source/src/git_remote_dropbox/helper.py's _push and
// _fetch/_download, and on the teacher's worker/errCh/WaitGroup shape in
// bits/repository.go's Push and Fetch methods.
package transfer

// Event describes one progress tick emitted by Push or Fetch, matching the
// exact wording spec.md §4.4 requires of the protocol driver's stderr
// output: "Writing objects: P% (done/total)" and "Receiving objects: ...".
// SHA and Bytes describe the object that just completed, for debug-level
// per-object tracing; they are zero-valued for any synthetic final event.
type Event struct {
	Done  int
	Total int
	SHA   string
	Bytes int64
}

// ProgressFunc receives one Event per completed unit of work.
type ProgressFunc func(Event)
