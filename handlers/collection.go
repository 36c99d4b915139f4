// Package handlers implements the Intake Server's HTTP surface (spec §4.1):
// liveness/readiness, the webhook that enqueues a job, and the job-status
// lookup. Grounded on the teacher's CatalystAPIHandlersCollection shape (one
// struct carrying every collaborator a handler needs, one method per route)
// - re-targeted from a VOD-upload collection to a job-queue intake
// collection.
package handlers

import (
	"time"

	"github.com/archivekit/vaultline/cache"
	"github.com/archivekit/vaultline/pipeline"
	"github.com/archivekit/vaultline/policy"
	"github.com/archivekit/vaultline/queue"
)

// Collection is the handler receiver every intake-server route hangs off,
// mirroring the teacher's CatalystAPIHandlersCollection.
type Collection struct {
	Queue        queue.Queue
	Policies     *policy.Table
	StatusTable  *cache.Cache[pipeline.JobStatus]
	StatusMirror *pipeline.RedisStatusMirror

	ServiceName string
	StartedAt   time.Time
}
