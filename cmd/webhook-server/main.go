// Command webhook-server runs the Intake Server (spec §4.1): the webhook
// that validates and enqueues jobs, plus the job-status lookup, liveness,
// and readiness routes. It owns none of the pipeline's heavy collaborators
// (no transcriber model process, no media acquirer) - those belong to the
// worker process - only the queue producer side and the Channel Policy
// Table needed to validate a submission's channel_name.
//
// Grounded on the teacher's cmd/http-server/http-server.go (flag.FlagSet,
// StartCatalystAPIRouter-equivalent router assembly, http.ListenAndServe)
// and main.go's errgroup/signal-handling shape, sized down to this
// system's two-binary split (spec §9 "cmd/webhook-server, cmd/worker").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/archivekit/vaultline/api"
	"github.com/archivekit/vaultline/cache"
	"github.com/archivekit/vaultline/config"
	"github.com/archivekit/vaultline/handlers"
	"github.com/archivekit/vaultline/log"
	"github.com/archivekit/vaultline/metrics"
	"github.com/archivekit/vaultline/pipeline"
	"github.com/archivekit/vaultline/policy"
	"github.com/archivekit/vaultline/pprof"
	"github.com/archivekit/vaultline/queue"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cli := config.Cli{}
	fs := flag.NewFlagSet("webhook-server", flag.ExitOnError)

	config.AddrFlag(fs, &cli.HTTPAddress, "http-addr", config.WebhookHost+":8935", "Address to bind the intake server to")
	fs.StringVar(&cli.WebhookSecret, "webhook-secret", config.WebhookSecret, "Shared secret required on X-Webhook-Secret (spec §4.1b); empty disables the check")
	fs.StringVar(&cli.RedisURL, "redis-url", config.RedisURL, "Redis URL backing the job queue (spec §6 REDIS_URL)")
	metricsAddr := fs.String("metrics-addr", config.MetricsAddr, "Internal-only listen address for GET /metrics")
	pprofPort := fs.Int("pprof-port", 6061, "pprof listen port")
	queueBackend := fs.String("queue-backend", config.QueueBackend, "Job queue backend: redis or memory")
	if err := fs.Parse(os.Args[1:]); err != nil {
		glog.Fatalf("error parsing flags: %s", err)
	}

	policies, err := policy.NewTable(config.FolderIDs())
	if err != nil {
		glog.Fatalf("error building channel policy table: %s", err)
	}

	jobQueue, err := buildQueue(*queueBackend, cli.RedisURL)
	if err != nil {
		glog.Fatalf("error building job queue: %s", err)
	}

	var statusMirror *pipeline.RedisStatusMirror
	if cli.RedisURL != "" && *queueBackend != "memory" {
		statusMirror, err = pipeline.NewRedisStatusMirror(cli.RedisURL, 24*time.Hour)
		if err != nil {
			glog.Fatalf("error building redis status mirror: %s", err)
		}
	}

	collection := &handlers.Collection{
		Queue:        jobQueue,
		Policies:     policies,
		StatusTable:  cache.New[pipeline.JobStatus](),
		StatusMirror: statusMirror,
		ServiceName:  "vaultline-webhook-server",
		StartedAt:    config.Clock.GetTime(),
	}

	group, ctx := errgroup.WithContext(context.Background())

	go func() {
		glog.Error(pprof.ListenAndServe(*pprofPort))
	}()

	group.Go(func() error {
		return metrics.ListenAndServe(*metricsAddr)
	})

	group.Go(func() error {
		return handleSignals(ctx)
	})

	group.Go(func() error {
		return api.ListenAndServe(ctx, cli.HTTPAddress, cli.WebhookSecret, collection, &pipeline.Coordinator{Policies: policies})
	})

	if err := group.Wait(); err != nil {
		log.LogNoRequestID("shutdown complete", "reason", err.Error())
	}
	_ = jobQueue.Close()
}

// buildQueue picks the queue backend (spec §6 QUEUE_BACKEND): Redis Streams
// in production, the in-memory backend for single-process/dev deployments
// where no Redis is available.
func buildQueue(backend, redisURL string) (queue.Queue, error) {
	if backend == "memory" {
		return queue.NewMemoryQueue(256), nil
	}
	return queue.NewRedisQueue(queue.RedisQueueConfig{
		URL:    redisURL,
		Stream: config.RedisStreamName,
		Group:  config.RedisConsumerGroup,
	})
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	select {
	case s := <-c:
		return fmt.Errorf("caught signal=%v, attempting clean shutdown", s)
	case <-ctx.Done():
		return nil
	}
}
