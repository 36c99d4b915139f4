package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	vlerrors "github.com/archivekit/vaultline/errors"
	"github.com/archivekit/vaultline/queue"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls atomic.Int64
	run   func(attempt int) error
}

func (f *fakeRunner) Run(_ context.Context, job queue.Job) error {
	f.calls.Add(1)
	return f.run(job.Attempt)
}

func TestPoolAcksOnSuccess(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	runner := &fakeRunner{run: func(int) error { return nil }}
	pool := &Pool{Queue: q, Runner: runner, Concurrency: 1, RetryBaseDelay: time.Millisecond}

	require.NoError(t, q.Enqueue(context.Background(), queue.Job{TaskID: "t1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := pool.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int64(1), runner.calls.Load())
}

func TestPoolRetriesTransientFailureUntilMaxRetries(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	runner := &fakeRunner{run: func(int) error { return fmt.Errorf("transient failure") }}
	pool := &Pool{Queue: q, Runner: runner, Concurrency: 1, MaxRetries: 2, RetryBaseDelay: time.Millisecond}

	require.NoError(t, q.Enqueue(context.Background(), queue.Job{TaskID: "t2"}))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = pool.Run(ctx)

	// attempt 0 (first try), 1 (first retry), 2 (second retry, hits MaxRetries and
	// is acked as terminal) - exactly three calls, never a fourth.
	require.Equal(t, int64(3), runner.calls.Load())
}

func TestPoolDoesNotRetryUnretriableErrors(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	runner := &fakeRunner{run: func(int) error { return vlerrors.Unretriable(fmt.Errorf("bad input")) }}
	pool := &Pool{Queue: q, Runner: runner, Concurrency: 1, MaxRetries: 5, RetryBaseDelay: time.Millisecond}

	require.NoError(t, q.Enqueue(context.Background(), queue.Job{TaskID: "t3"}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = pool.Run(ctx)

	require.Equal(t, int64(1), runner.calls.Load())
}

func TestPoolRecyclesAfterMaxJobsPerWorker(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	runner := &fakeRunner{run: func(int) error { return nil }}
	pool := &Pool{Queue: q, Runner: runner, Concurrency: 1, MaxJobsPerWorker: 2, RetryBaseDelay: time.Millisecond}

	require.NoError(t, q.Enqueue(context.Background(), queue.Job{TaskID: "t4"}))
	require.NoError(t, q.Enqueue(context.Background(), queue.Job{TaskID: "t5"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := pool.Run(ctx)
	require.ErrorIs(t, err, ErrRecycle)
	require.Equal(t, int64(2), runner.calls.Load())
}

func TestRetryDelayGrowsWithAttempt(t *testing.T) {
	base := 10 * time.Millisecond
	d0 := retryDelay(base, 0)
	d3 := retryDelay(base, 3)
	require.Greater(t, d3, d0)
	require.LessOrEqual(t, d3, maxRetryBackoff)
}
