package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueueCapacity = 32
	maxWriteAttempts     = 3
	retryStep            = 300 * time.Millisecond
)

type writeCmd struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue runs database writes one at a time off the caller's goroutine.
type WriterQueue struct {
	logger *slog.Logger
	queue  chan writeCmd
	wg     sync.WaitGroup
	retry  time.Duration
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if logger == nil {
		logger = slog.With("component", "persistence.writer")
	}
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}

	return &WriterQueue{
		logger: logger,
		queue:  make(chan writeCmd, capacity),
		retry:  retryStep,
	}
}

// Enqueue schedules fn. When the queue is full the write is dropped and false
// is returned; identity writes are idempotent and the next one catches up.
func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) bool {
	select {
	case w.queue <- writeCmd{name: name, fn: fn}:
		return true
	default:
		w.logger.Warn("write queue full, dropping write", "cmd", name)

		return false
	}
}

// Start processes writes until ctx is done. Wait blocks until the worker exits.
func (w *WriterQueue) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-w.queue:
				w.runWithRetry(ctx, cmd)
			}
		}
	}()
}

func (w *WriterQueue) Wait() {
	w.wg.Wait()
}

func (w *WriterQueue) runWithRetry(ctx context.Context, cmd writeCmd) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := cmd.fn(ctx)
		if err == nil {
			return
		}
		w.logger.Error("db write failed", "cmd", cmd.name, "attempt", attempt, "error", err)
		if attempt == maxWriteAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * w.retry):
		}
	}
}
