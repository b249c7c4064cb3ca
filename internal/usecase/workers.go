package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// workerPool runs transcription/insertion work off the event threads with a
// fixed number of workers and a bounded queue, instead of spawning a
// goroutine per chord edge.
type workerPool struct {
	tasks     chan func()
	wg        sync.WaitGroup
	closeOnce sync.Once
	log       *zap.Logger
}

func newWorkerPool(workers, depth int, log *zap.Logger) *workerPool {
	if workers <= 0 {
		workers = 2
	}
	if depth <= 0 {
		depth = 8
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &workerPool{tasks: make(chan func(), depth), log: log}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a task without blocking. It reports false when the queue
// is full or the pool is closed; the caller decides what the loss means.
func (p *workerPool) Submit(fn func()) (submitted bool) {
	defer func() {
		if recover() != nil {
			// Send on closed channel: pool already shut down.
			submitted = false
		}
	}()

	select {
	case p.tasks <- fn:
		return true
	default:
		return false
	}
}

// Close stops accepting work and waits up to timeout for in-flight tasks.
// It reports whether the workers drained in time. Safe to call repeatedly.
func (p *workerPool) Close(timeout time.Duration) bool {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		p.log.Warn("worker pool did not drain before timeout; abandoning")
		return false
	}
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for fn := range p.tasks {
		p.run(fn)
	}
}

func (p *workerPool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
