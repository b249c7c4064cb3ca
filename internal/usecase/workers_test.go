package usecase

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsSubmittedTasks(t *testing.T) {
	t.Parallel()

	p := newWorkerPool(2, 8, nil)
	defer p.Close(time.Second)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		if !p.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		}) {
			wg.Done()
			t.Fatalf("submit %d rejected", i)
		}
	}
	wg.Wait()

	if got := ran.Load(); got != 8 {
		t.Fatalf("expected 8 tasks to run, got %d", got)
	}
}

func TestWorkerPoolRejectsWhenQueueFull(t *testing.T) {
	t.Parallel()

	p := newWorkerPool(1, 1, nil)
	defer p.Close(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func() {
		close(started)
		<-release
	})
	<-started

	// Worker is blocked; fill the single queue slot.
	if !p.Submit(func() {}) {
		t.Fatalf("queue slot should accept one task")
	}

	if p.Submit(func() {}) {
		t.Fatalf("full queue must reject without blocking")
	}
	close(release)
}

func TestWorkerPoolCloseDrainsAndRejectsLateSubmits(t *testing.T) {
	t.Parallel()

	p := newWorkerPool(2, 4, nil)

	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		p.Submit(func() { ran.Add(1) })
	}

	if !p.Close(time.Second) {
		t.Fatalf("pool did not drain")
	}
	if got := ran.Load(); got != 4 {
		t.Fatalf("expected all queued tasks to finish, got %d", got)
	}

	if p.Submit(func() {}) {
		t.Fatalf("submit after close must report false")
	}

	// Close twice is fine.
	p.Close(time.Second)
}

func TestWorkerPoolSurvivesPanickingTask(t *testing.T) {
	t.Parallel()

	p := newWorkerPool(1, 4, nil)
	defer p.Close(time.Second)

	p.Submit(func() { panic("boom") })

	done := make(chan struct{})
	p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker died after a panicking task")
	}
}
