package queue

import (
	"context"
	"sync"
)

// NewMemoryQueue builds a single-process Queue, used for local development
// and worker-pool tests (spec §4.2 "single-process deployments may use an
// in-memory queue instead of Redis Streams").
//
// Modeled on BitRiver's memoryQueue, but as a work queue (one consumer gets
// each job) rather than that fan-out pub/sub: jobs are buffered on a shared
// channel instead of copied to every subscriber.
func NewMemoryQueue(buffer int) Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &memoryQueue{
		jobs: make(chan Job, buffer),
		done: make(chan struct{}),
	}
}

type memoryQueue struct {
	mu     sync.Mutex
	jobs   chan Job
	closed bool
	done   chan struct{}
}

func (q *memoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

func (q *memoryQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case job, ok := <-q.jobs:
				if !ok {
					return
				}
				retry := job
				retry.Attempt++
				delivery := Delivery{
					Job:  job,
					Ack:  func(context.Context) error { return nil },
					Nack: func(ctx context.Context) error { return q.Enqueue(ctx, retry) },
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					// Put the job back rather than drop it silently.
					_ = q.Enqueue(context.Background(), job)
					return
				}
			case <-ctx.Done():
				return
			case <-q.done:
				return
			}
		}
	}()
	return out, nil
}

func (q *memoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	close(q.jobs)
	return nil
}
