// Command worker runs the Job Queue & Worker Pool's consumer side (spec
// §4.2): it loads the long-lived transcription-model process once
// (spec §9/§10.2), wires every Job Coordinator collaborator, and drains
// the job queue until shut down or recycled.
//
// Grounded on the teacher's main.go shape (errgroup.Group fanning out
// long-lived goroutines over a shared cancellable context, signal-driven
// clean shutdown) re-targeted from Mist-cluster/balancer startup to
// transcriber-process startup plus worker.Pool.Run.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/archivekit/vaultline/audit"
	"github.com/archivekit/vaultline/cache"
	"github.com/archivekit/vaultline/catalog"
	"github.com/archivekit/vaultline/chatclient"
	"github.com/archivekit/vaultline/config"
	"github.com/archivekit/vaultline/log"
	"github.com/archivekit/vaultline/media"
	"github.com/archivekit/vaultline/metrics"
	"github.com/archivekit/vaultline/objectstore"
	"github.com/archivekit/vaultline/pipeline"
	"github.com/archivekit/vaultline/policy"
	"github.com/archivekit/vaultline/pprof"
	"github.com/archivekit/vaultline/queue"
	"github.com/archivekit/vaultline/transcriber"
	"github.com/archivekit/vaultline/worker"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cli := config.Cli{}
	fs := flag.NewFlagSet("worker", flag.ExitOnError)

	fs.StringVar(&cli.RedisURL, "redis-url", config.RedisURL, "Redis URL backing the job queue (spec §6 REDIS_URL)")
	fs.StringVar(&cli.ObjectStoreURL, "object-store-url", config.ObjectStoreURL, "Object store URL artifacts are uploaded to")
	fs.StringVar(&cli.AuditDBDSN, "audit-db-dsn", config.AuditDBDSN, "Postgres DSN for the best-effort audit log; empty disables it")
	fs.IntVar(&cli.WorkerConcurrency, "concurrency", config.WorkerConcurrency, "Number of jobs this process runs concurrently")
	metricsAddr := fs.String("metrics-addr", "127.0.0.1:9092", "Internal-only listen address for GET /metrics")
	pprofPort := fs.Int("pprof-port", 6062, "pprof listen port")
	queueBackend := fs.String("queue-backend", config.QueueBackend, "Job queue backend: redis or memory")
	if err := fs.Parse(os.Args[1:]); err != nil {
		glog.Fatalf("error parsing flags: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	policies, err := policy.NewTable(config.FolderIDs())
	if err != nil {
		glog.Fatalf("error building channel policy table: %s", err)
	}

	objects, err := objectstore.New(cli.ObjectStoreURL, config.ObjectUploadMaxAttempts, config.ObjectUploadBaseDelay)
	if err != nil {
		glog.Fatalf("error building object store client: %s", err)
	}

	auditStore, err := audit.Open(cli.AuditDBDSN)
	if err != nil {
		glog.Fatalf("error opening audit store: %s", err)
	}

	// The transcription model is an external process spawned once per
	// worker and held open for the process's lifetime (spec §9, §10.2),
	// never forked per job.
	model, err := transcriber.StartProcessModel(ctx, config.PathTranscriberBin)
	if err != nil {
		glog.Fatalf("error starting transcriber model process: %s", err)
	}
	defer model.Close()

	jobQueue, err := buildQueue(*queueBackend, cli.RedisURL)
	if err != nil {
		glog.Fatalf("error building job queue: %s", err)
	}
	defer jobQueue.Close()

	var statusMirror *pipeline.RedisStatusMirror
	if cli.RedisURL != "" && *queueBackend != "memory" {
		statusMirror, err = pipeline.NewRedisStatusMirror(cli.RedisURL, 24*time.Hour)
		if err != nil {
			glog.Fatalf("error building redis status mirror: %s", err)
		}
	}

	coord := &pipeline.Coordinator{
		Policies: policies,
		Catalog:  catalog.New(config.CatalogBaseURL, config.NotionToken, config.CatalogDatabaseIDs()),
		Objects:  objects,
		Acquirer: &media.Acquirer{
			ExtractorBin:  config.PathExtractorBin,
			TranscoderBin: config.PathTranscoderBin,
			HTTPClient:    &http.Client{Timeout: 30 * time.Minute},
		},
		Transcriber: &transcriber.Transcriber{
			Model:            model,
			SampleRate:       config.StreamingSampleRate,
			ChunkDuration:    config.StreamingChunkDuration,
			MinAudioDuration: config.StreamingMinAudioDuration,
			Params:           transcriber.DefaultModelParams(),
		},
		Chat:  chatclient.New(config.DiscordAPIBaseURL, config.DiscordUserToken),
		Audit: auditStore,

		StatusTable:  cache.New[pipeline.JobStatus](),
		StatusMirror: statusMirror,

		ScratchDir:              config.ScratchDir,
		CompressionEnabled:      config.CompressionEnabled,
		CompressionCRF:          config.CompressionCRF,
		CompressionPreset:       config.CompressionPreset,
		CompressionAudioBitrate: config.CompressionAudioBitrate,
	}

	pool := &worker.Pool{
		Queue:            jobQueue,
		Runner:           coord,
		Concurrency:      cli.WorkerConcurrency,
		MaxRetries:       config.TaskMaxRetries,
		RetryBaseDelay:   config.TaskRetryDelay,
		MaxJobsPerWorker: config.MaxJobsPerWorker,
		SoftTimeLimit:    config.TaskSoftTimeLimit,
		HardTimeLimit:    config.TaskTimeLimit,
	}

	group, gctx := errgroup.WithContext(ctx)

	go func() {
		glog.Error(pprof.ListenAndServe(*pprofPort))
	}()

	group.Go(func() error {
		return metrics.ListenAndServe(*metricsAddr)
	})

	group.Go(func() error {
		return pool.Run(gctx)
	})

	waitErr := group.Wait()
	if waitErr != nil {
		log.LogNoRequestID("worker exiting", "reason", waitErr.Error())
	}
	if waitErr == worker.ErrRecycle {
		// Exit so a process supervisor restarts us with a fresh transcriber
		// model process (spec §10.2 "process restart after N completed jobs").
		os.Exit(0)
	}
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
