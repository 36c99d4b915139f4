// Package queue implements the Job Queue & Worker Pool (spec §4.2): a
// late-ack work queue fed by the webhook intake server and drained by
// worker processes running the Job Coordinator.
//
// Grounded on the teacher-adjacent ProhibitedTV-BitRiver-Live's
// internal/chat/queue.go (Queue/Subscription interface split, in-memory
// fan-out implementation) and internal/chat/redis_queue.go (group/consumer
// naming, ack-after-handle posture), re-expressed against the real
// redis/go-redis/v9 Streams client this module's go.mod already carries
// instead of a hand-rolled RESP client.
package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Job is one unit of work enqueued by the webhook handler (spec §4.1/§4.2).
// VideoURL carries either a video-host URL or a chat-message URL; the
// coordinator classifies it by shape (spec §4.1b) to pick Mode A vs Mode B.
type Job struct {
	TaskID       string `json:"task_id"`
	VideoURL     string `json:"video_url"`
	ChannelName  string `json:"channel_name"`
	NotionPageID string `json:"notion_page_id"`

	// ParentFolderID overrides the resolved channel policy's base folder id
	// when the submitter names one explicitly (spec §4.1b
	// parent_drive_folder_id).
	ParentFolderID string    `json:"parent_drive_folder_id,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	Attempt        int       `json:"attempt"`
}

// Delivery wraps a Job with the ack/nack handle its queue backend needs to
// mark the underlying message handled or requeue it.
type Delivery struct {
	Job  Job
	Ack  func(ctx context.Context) error
	Nack func(ctx context.Context) error
}

// Queue is the producer/consumer surface the webhook handler and the worker
// pool depend on. Both backends ack late (spec §4.2 "late-ack"); a delivery
// is redelivered only when it is Nacked. Neither backend reclaims a delivery
// that is left neither acked nor nacked: the Redis backend leaves it in the
// consumer group's pending-entries list, and the memory backend drops it.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Consume(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

var ErrQueueClosed = errors.New("queue: closed")

func randomID(n int) string {
	b := make([]byte, (n+1)/2)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("job-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)[:n]
}

func marshalJob(job Job) ([]byte, error) {
	return json.Marshal(job)
}

func unmarshalJob(payload []byte) (Job, error) {
	var job Job
	err := json.Unmarshal(payload, &job)
	return job, err
}
