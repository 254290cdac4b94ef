package workerpool_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/anishathalye/git-remote-dropbox/internal/workerpool"
)

func TestPoolRunsAllJobs(t *testing.T) {
	in := make(chan int)
	out := make(chan int, 4)
	p := workerpool.New(4, in, out, func(job int) int { return job * 2 })

	var sum int64
	done := make(chan struct{})
	go func() {
		for r := range out {
			atomic.AddInt64(&sum, int64(r))
		}
		close(done)
	}()

	for i := 1; i <= 100; i++ {
		in <- i
	}
	p.Close()
	<-done

	if sum != 10100 {
		t.Fatalf("got %d, want 10100", sum)
	}
}

func TestPoolConcurrentSubmitters(t *testing.T) {
	in := make(chan int)
	out := make(chan int, 8)
	p := workerpool.New(8, in, out, func(job int) int { return job })

	var received int64
	done := make(chan struct{})
	go func() {
		for range out {
			atomic.AddInt64(&received, 1)
		}
		close(done)
	}()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			in <- n
		}(i)
	}
	wg.Wait()
	p.Close()
	<-done

	if received != 20 {
		t.Fatalf("got %d, want 20", received)
	}
}

func TestPoolDefaultsToOneWorker(t *testing.T) {
	in := make(chan int)
	out := make(chan int, 1)
	p := workerpool.New(0, in, out, func(job int) int { return job })
	in <- 7
	p.Close()
	if got := <-out; got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}
