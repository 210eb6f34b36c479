package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hszk-dev/vidingest/internal/domain/repository"
)

// ErrQueueClosed is returned when publishing to a closed Local queue.
var ErrQueueClosed = errors.New("queue closed")

// Local is an in-process repository.MessageQueue backed by buffered channels.
// Tasks are lost when the process exits; use it when the API and worker run
// in one binary.
type Local struct {
	retryDelay time.Duration
	queues     map[repository.TaskKind]chan repository.PipelineTask
	done       chan struct{}

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
}

// Compile-time verification that Local implements repository.MessageQueue.
var _ repository.MessageQueue = (*Local)(nil)

// NewLocal creates a Local queue holding up to buffer ready tasks per kind.
func NewLocal(buffer int, retryDelay time.Duration) *Local {
	return &Local{
		retryDelay: retryDelay,
		queues: map[repository.TaskKind]chan repository.PipelineTask{
			repository.TaskAssemble: make(chan repository.PipelineTask, buffer),
			repository.TaskConvert:  make(chan repository.PipelineTask, buffer),
		},
		done:   make(chan struct{}),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Publish enqueues task, after delay when positive.
func (q *Local) Publish(ctx context.Context, task repository.PipelineTask, delay time.Duration) error {
	ch, ok := q.queues[task.Kind]
	if !ok {
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if delay > 0 {
		var timer *time.Timer
		timer = time.AfterFunc(delay, func() {
			q.mu.Lock()
			delete(q.timers, timer)
			q.mu.Unlock()

			select {
			case ch <- task:
			case <-q.done:
			}
		})
		q.timers[timer] = struct{}{}
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	select {
	case ch <- task:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume delivers tasks of kind to handler until ctx is cancelled or the
// queue is closed. Cancelling ctx does not reach a running handler. A handler
// error republishes the task with RetryCount incremented after the retry
// delay; an interrupted handler (context.Canceled) republishes it unchanged.
func (q *Local) Consume(ctx context.Context, kind repository.TaskKind, handler repository.TaskHandler) error {
	ch, ok := q.queues[kind]
	if !ok {
		return fmt.Errorf("unknown task kind %q", kind)
	}

	hctx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return ErrQueueClosed
		case task := <-ch:
			if err := handler(hctx, task); err != nil {
				if !errors.Is(err, context.Canceled) {
					task.RetryCount++
				}
				if pubErr := q.Publish(hctx, task, q.retryDelay); pubErr != nil {
					slog.Error("failed to republish task for retry",
						"session_id", task.SessionID,
						"kind", string(task.Kind),
						"retry_count", task.RetryCount,
						"error", pubErr,
					)
				}
			}
		}
	}
}

// Close stops pending delayed deliveries and releases consumers.
func (q *Local) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	clear(q.timers)
	close(q.done)
	return nil
}
