// Package worker implements the Job Queue & Worker Pool's consumer side
// (spec §4.2): a fixed-size pool of goroutines draining a queue.Queue,
// running each delivery through the Job Coordinator, and applying the
// retry/backoff and time-limit policy spec §4.2 and §5 describe.
//
// Grounded on the teacher's main.go worker-goroutine shape (errgroup.Group
// fanning out a fixed number of long-lived goroutines, a shared cancellable
// context for coordinated shutdown) re-targeted from Mist trigger handling
// to queue consumption.
package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	vlerrors "github.com/archivekit/vaultline/errors"
	"github.com/archivekit/vaultline/log"
	"github.com/archivekit/vaultline/metrics"
	"github.com/archivekit/vaultline/queue"
	"github.com/cenkalti/backoff/v4"
)

// Runner is the subset of *pipeline.Coordinator the pool depends on,
// satisfied by pipeline.Coordinator itself; kept as an interface so tests
// can substitute a fake instead of wiring every Coordinator collaborator.
type Runner interface {
	Run(ctx context.Context, job queue.Job) error
}

// maxRetryBackoff bounds the exponential backoff's growth (spec §4.2
// "up to ... a maximum backoff").
const maxRetryBackoff = 10 * time.Minute

// ErrRecycle is returned by Pool.Run when a worker goroutine has completed
// config.MaxJobsPerWorker jobs and voluntarily stopped (spec §10.2 "process
// restart after N completed jobs"). The calling process should exit with a
// distinguishing status so its supervisor (systemd, Kubernetes) restarts it
// with a clean transcriber model process.
var ErrRecycle = errors.New("worker: recycle limit reached, restart the process")

// Pool owns the consumer side of the Job Queue & Worker Pool.
type Pool struct {
	Queue  queue.Queue
	Runner Runner

	Concurrency      int
	MaxRetries       int
	RetryBaseDelay   time.Duration
	MaxJobsPerWorker int
	SoftTimeLimit    time.Duration
	HardTimeLimit    time.Duration
}

// Run consumes from Queue until ctx is cancelled or a worker hits its
// recycle limit, blocking until every in-flight delivery has been handled.
// A cancelled ctx returns ctx.Err(); a recycle is ErrRecycle.
func (p *Pool) Run(ctx context.Context) error {
	deliveries, err := p.Queue.Consume(ctx)
	if err != nil {
		return err
	}

	workers := p.Concurrency
	if workers <= 0 {
		workers = 1
	}

	poolCtx, recycle := context.WithCancel(ctx)
	defer recycle()

	var completed atomic.Int64
	var wg sync.WaitGroup
	var recycled atomic.Bool

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case delivery, ok := <-deliveries:
					if !ok {
						return
					}
					p.handle(poolCtx, delivery)
					if p.MaxJobsPerWorker > 0 && completed.Add(1) >= int64(p.MaxJobsPerWorker) {
						log.LogNoRequestID("worker reached max jobs per worker, recycling", "worker", id, "count", completed.Load())
						recycled.Store(true)
						recycle()
						return
					}
				case <-poolCtx.Done():
					return
				}
			}
		}(i)
	}

	wg.Wait()
	if recycled.Load() {
		return ErrRecycle
	}
	return ctx.Err()
}

// handle runs one delivery through the Job Coordinator and resolves it to
// an ack, a nack-with-backoff, or a terminal ack (spec §4.2 retry policy,
// §5 "soft limit interrupts cleanly ... hard limit terminates the worker
// process", §5 "on shutdown, in-flight jobs are NACKed and redelivered").
func (p *Pool) handle(ctx context.Context, d queue.Delivery) {
	if ctx.Err() != nil {
		_ = d.Nack(context.Background())
		return
	}

	soft := p.SoftTimeLimit
	if soft <= 0 {
		soft = 4 * time.Hour
	}
	jobCtx, cancel := context.WithTimeout(ctx, soft)
	defer cancel()

	var hardTimer *time.Timer
	if p.HardTimeLimit > 0 {
		hardTimer = time.AfterFunc(p.HardTimeLimit, func() {
			log.LogNoRequestID("hard time limit exceeded, terminating worker process", "task_id", d.Job.TaskID)
			os.Exit(1)
		})
	}

	err := p.Runner.Run(jobCtx, d.Job)
	if hardTimer != nil {
		hardTimer.Stop()
	}

	switch {
	case err == nil:
		_ = d.Ack(context.Background())

	case ctx.Err() != nil:
		// Pool shutdown raced with this job; redeliver without charging it
		// against the job's own retry budget.
		_ = d.Nack(context.Background())

	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		log.LogError(d.Job.TaskID, "soft time limit exceeded, job terminal", jobCtx.Err())
		metrics.Metrics.JobOutcomes.WithLabelValues("timeout").Inc()
		_ = d.Ack(context.Background())

	case vlerrors.IsUnretriable(err):
		_ = d.Ack(context.Background())

	case p.MaxRetries > 0 && d.Job.Attempt >= p.MaxRetries:
		log.LogError(d.Job.TaskID, "max retries exceeded, job terminal", err)
		metrics.Metrics.JobOutcomes.WithLabelValues("retries_exhausted").Inc()
		_ = d.Ack(context.Background())

	default:
		delay := retryDelay(p.RetryBaseDelay, d.Job.Attempt)
		metrics.Metrics.RetryCount.WithLabelValues("job").Inc()
		log.LogNoRequestID("retrying job after backoff", "task_id", d.Job.TaskID, "attempt", d.Job.Attempt, "delay", delay.String())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		_ = d.Nack(context.Background())
	}
}

// retryDelay computes base*2^attempt with jitter (spec §4.2), walking a
// cenkalti/backoff/v4 ExponentialBackOff forward attempt+1 steps rather
// than hand-rolling the jitter arithmetic.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0.3
	b.MaxInterval = maxRetryBackoff
	b.MaxElapsedTime = 0

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
