// Package workerpool provides the bounded concurrency primitive used by the
// transfer engine's fetch pipeline (spec.md §4.7, component C7): a fixed
// number of goroutines draining a shared input channel and forwarding every
// result to a shared output channel, until the input channel is closed. It
// is the same worker/WaitGroup shape as the teacher's Push and Fetch
// methods in bits/repository.go, generalized over the job/result types so
// the fetch pipeline doesn't need to hand-roll its own goroutine pool.
package workerpool

import "sync"

// DefaultWorkers is the default pool size, matching the concurrency budget
// of the original implementation (PROCESSES=20 in constants.py).
const DefaultWorkers = 20

// Pool runs n worker goroutines, each pulling a Job off in, invoking
// handle, and forwarding the Result to out, until in is closed.
type Pool[Job any, Result any] struct {
	in  chan Job
	out chan Result
	wg  sync.WaitGroup
}

// New starts a Pool of n workers (at least 1) reading from in and writing
// to out. Closing in is the shutdown signal: it stands in for one poison
// pill per worker, delivered to all of them in a single call instead of
// one enqueued message per worker. Callers that need bounded output
// buffering (so a worker never blocks delivering its one in-flight result)
// should size out to at least n.
func New[Job any, Result any](n int, in chan Job, out chan Result, handle func(Job) Result) *Pool[Job, Result] {
	if n < 1 {
		n = 1
	}
	p := &Pool[Job, Result]{in: in, out: out}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.run(handle)
	}
	return p
}

func (p *Pool[Job, Result]) run(handle func(Job) Result) {
	defer p.wg.Done()
	for job := range p.in {
		p.out <- handle(job)
	}
}

// Close closes in and blocks until every worker has exited (i.e. finished
// any in-flight job and observed in's closure), then closes out so a
// caller ranging over it terminates.
func (p *Pool[Job, Result]) Close() {
	close(p.in)
	p.wg.Wait()
	close(p.out)
}
