package querycache

import (
	"context"
	"sync"

	"shelf/src/infrastructure/log"
)

// Task is a unit of background work. The context it receives is owned by
// the worker pool, not by the request that submitted it.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	run  Task
}

// Background runs fire-and-forget tasks on a fixed pool of goroutines.
// Submit never blocks; tasks are dropped when the queue is full.
type Background struct {
	mu     sync.RWMutex
	closed bool
	tasks  chan namedTask
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBackground starts workers goroutines reading from a queue of queueSize.
func NewBackground(workers, queueSize int) *Background {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Background{
		tasks:  make(chan namedTask, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.work()
	}

	return b
}

func (b *Background) work() {
	defer b.wg.Done()
	for t := range b.tasks {
		if err := t.run(b.ctx); err != nil {
			log.Debug("background task failed", "task", t.name, "error", err.Error())
		}
	}
}

// Submit queues task. It reports false if the task was dropped.
func (b *Background) Submit(name string, task Task) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}

	select {
	case b.tasks <- namedTask{name: name, run: task}:
		return true
	default:
		log.Debug("background queue full, dropping task", "task", name)
		return false
	}
}

// Close stops accepting tasks and waits for the queue to drain. If ctx ends
// first, in-flight tasks see their context cancelled and ctx.Err() is
// returned.
func (b *Background) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.tasks)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-done
		return ctx.Err()
	}
}
