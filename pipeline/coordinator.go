// Package pipeline implements the Job Coordinator (spec §4.8): the state
// machine that drives one job from VALIDATE through DONE, wiring together
// the Channel Policy Table, Catalog Client, Object Store Client, Media
// Acquirer, Transcriber, and Artifact Assembler.
//
// Grounded on the teacher's pipeline/coordinator.go for its overall shape
// (a single coordinator struct holding every collaborator, one phase method
// per pipeline stage, a job-status cache updated as phases advance) and its
// Handler-interface pattern for how a coordinator reports outcomes back to
// its caller - re-targeted from the teacher's Mist-trigger/VOD-upload domain
// to this system's webhook-fed media-ingestion domain.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/archivekit/vaultline/audit"
	"github.com/archivekit/vaultline/cache"
	"github.com/archivekit/vaultline/catalog"
	"github.com/archivekit/vaultline/chatclient"
	vlerrors "github.com/archivekit/vaultline/errors"
	"github.com/archivekit/vaultline/log"
	"github.com/archivekit/vaultline/media"
	"github.com/archivekit/vaultline/metrics"
	"github.com/archivekit/vaultline/objectstore"
	"github.com/archivekit/vaultline/policy"
	"github.com/archivekit/vaultline/queue"
	"github.com/archivekit/vaultline/transcriber"
)

// Coordinator owns every collaborator a job needs and drives the phase
// ladder of spec §4.8. One Coordinator is shared by every goroutine in a
// worker's pool; all of its fields are read-only after construction; any
// per-job state lives in runState.
type Coordinator struct {
	Policies    *policy.Table
	Catalog     *catalog.Client
	Objects     *objectstore.Client
	Acquirer    *media.Acquirer
	Transcriber *transcriber.Transcriber
	Chat        *chatclient.Client
	Audit       *audit.Store

	StatusTable  *cache.Cache[JobStatus]
	StatusMirror *RedisStatusMirror

	ScratchDir              string
	CompressionEnabled      bool
	CompressionCRF          int
	CompressionPreset       string
	CompressionAudioBitrate string

	jobsInFlight atomic.Int64
}

// JobsInFlight reports how many jobs this Coordinator is currently running,
// consulted by middleware.CapacityMiddleware to gate the intake server. The
// webhook server's Coordinator runs no jobs, so there it is always 0 and
// does not reflect the worker processes' load.
func (c *Coordinator) JobsInFlight() int {
	return int(c.jobsInFlight.Load())
}

// runState is the mutable, job-scoped working set threaded through every
// phase method. Never shared across jobs.
type runState struct {
	job       queue.Job
	requestID string
	policy    policy.ChannelPolicy
	isChat    bool

	scratch []string // every scratch path created this job, removed at CLEANUP

	videoInfo      media.VideoInfo
	chatMsg        chatclient.Message
	folderID       string
	videoPath      string
	audioPath      string
	textPath       string
	srtPath        string
	acc            *transcriber.TranscriptionAccumulator
	processingMode string // "streaming" | "fallback"
	warnings       string

	videoUpload *objectstore.DriveFile
	audioUpload *objectstore.DriveFile
	textUpload  *objectstore.DriveFile
	srtUpload   *objectstore.DriveFile
}

func (s *runState) track(path string) string {
	s.scratch = append(s.scratch, path)
	return path
}

// Run executes one job end to end (spec §4.8). The returned error is nil
// for both a completed job and a dedup skip; a non-nil error tells the
// worker to requeue with backoff (spec §4.2) unless vlerrors.IsUnretriable.
func (c *Coordinator) Run(ctx context.Context, job queue.Job) error {
	state := &runState{job: job, requestID: job.TaskID}
	log.AddContext(state.requestID, "channel", job.ChannelName, "attempt", job.Attempt)

	metrics.Metrics.JobsInFlight.Inc()
	defer metrics.Metrics.JobsInFlight.Dec()
	c.jobsInFlight.Add(1)
	defer c.jobsInFlight.Add(-1)

	c.setStatus(state, StatusRunning, "validate", nil, "")

	outcome, err := c.run(ctx, state)
	c.finish(ctx, state, outcome, err)
	return err
}

// run is the phase ladder itself, factored out of Run so defer-based
// cleanup and audit bookkeeping have a single exit point.
func (c *Coordinator) run(ctx context.Context, state *runState) (string, error) {
	defer c.cleanup(state)

	if err := c.phaseValidate(state); err != nil {
		return "", err
	}

	if !state.isChat {
		skip, err := c.phaseDedupProbe(ctx, state)
		if err != nil {
			return "", err
		}
		if skip {
			metrics.Metrics.DedupSkipCount.Inc()
			return "skipped:already_processed", nil
		}
	}

	c.phaseInitComponents(state)

	if err := c.phaseResolveFolder(ctx, state); err != nil {
		return "", err
	}

	c.updateStatusLadder(ctx, state, "Downloading")
	if err := c.phaseAcquireTranscribe(ctx, state); err != nil {
		return "", err
	}

	c.updateStatusLadder(ctx, state, "Transcribing")
	if err := c.phaseAssembleArtifacts(state); err != nil {
		return "", err
	}

	c.phaseCompress(ctx, state)

	c.updateStatusLadder(ctx, state, "Uploading to Drive")
	if err := c.phaseUploadAtomic(ctx, state); err != nil {
		return "", err
	}

	if err := c.phasePublishCatalog(ctx, state); err != nil {
		return "", err
	}
	c.updateStatusLadder(ctx, state, state.policy.StatusValue)

	return "success", nil
}

// cleanup removes every scratch file this job touched (spec §4.8 CLEANUP,
// §9 "scratch cleanup discipline"), run via defer so every exit path -
// success or error return - releases scratch.
func (c *Coordinator) cleanup(state *runState) {
	for _, p := range state.scratch {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.LogError(state.requestID, "cleanup failed to remove scratch file", err, "path", p)
		}
	}
	_ = os.Remove(c.ScratchDir) // only succeeds if already empty
}

// finish records the terminal outcome: status table, metrics, and the
// best-effort audit row (spec §4.8 AUDIT, §10.6).
func (c *Coordinator) finish(ctx context.Context, state *runState, outcome string, err error) {
	if err != nil {
		if vlerrors.IsUnretriable(err) {
			c.setStatus(state, StatusFailed, "failed", nil, err.Error())
		} else {
			c.setStatus(state, StatusRetrying, "failed", nil, err.Error())
		}
		c.updateStatusError(ctx, state, err)
		metrics.Metrics.JobOutcomes.WithLabelValues("failed").Inc()
		c.Audit.Write(audit.Record{
			TaskID:  state.requestID,
			Channel: state.job.ChannelName,
			Phase:   "failed",
			Outcome: "failed",
			Detail:  firstLine(err.Error()),
		})
		return
	}

	result := map[string]any{"status": outcome, "processing_mode": state.processingMode}
	c.setStatus(state, StatusSucceeded, "done", result, "")
	metrics.Metrics.JobOutcomes.WithLabelValues(outcome).Inc()
	c.Audit.Write(audit.Record{
		TaskID:  state.requestID,
		Channel: state.job.ChannelName,
		Phase:   "done",
		Outcome: outcome,
	})
}

func (c *Coordinator) setStatus(state *runState, status Status, phase string, result map[string]any, errMsg string) {
	js := JobStatus{
		TaskID:    state.requestID,
		Status:    status,
		Phase:     phase,
		Attempt:   state.job.Attempt,
		Result:    result,
		Error:     errMsg,
		UpdatedAt: time.Now(),
	}
	c.StatusTable.Store(state.requestID, js)
	c.StatusMirror.Store(context.Background(), js)
}

func (c *Coordinator) scratchPath(name string) string {
	return filepath.Join(c.ScratchDir, name)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func timePhase(phase string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.Metrics.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	return err
}
