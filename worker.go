package pos

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultWorkers     = 4
	defaultQueueSize   = 1000
	defaultTaskTimeout = 10 * time.Second
)

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// WorkerPool 在背景執行遠端購物車呼叫，呼叫端不等待結果
type WorkerPool struct {
	tasks   chan task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func NewWorkerPool(size int, timeout time.Duration, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = defaultWorkers
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	wp := &WorkerPool{
		tasks:   make(chan task, defaultQueueSize),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}

	wp.wg.Add(size)
	for i := 0; i < size; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for t := range wp.tasks {
		wp.run(t)
	}
}

func (wp *WorkerPool) run(t task) {
	ctx, cancel := context.WithTimeout(wp.ctx, wp.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			wp.logger.Error("panic in task", zap.String("task", t.name), zap.Any("panic", p))
		}
	}()

	if err := t.fn(ctx); err != nil {
		wp.logger.Error("Failed to run task",
			zap.Error(err),
			zap.String("task", t.name))
	}
}

// Submit queues fn. Tasks submitted after Shutdown are dropped.
func (wp *WorkerPool) Submit(name string, fn func(ctx context.Context) error) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		wp.logger.Warn("Worker pool is shut down, dropping task", zap.String("task", name))
		return
	}
	wp.tasks <- task{name: name, fn: fn}
}

// Shutdown runs every queued task and stops the workers.
func (wp *WorkerPool) Shutdown() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.tasks)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.cancel()
}
