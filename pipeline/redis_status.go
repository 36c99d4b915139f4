package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/archivekit/vaultline/log"
	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "vaultline:status:"

// RedisStatusMirror persists JobStatus updates into Redis so that a
// horizontally-scaled cmd/worker process (spec §9) can report job status
// back to GET /task/{id} on a different webhook-server process, not just to
// its own in-memory cache.Cache. Best-effort: a failed mirror write or read
// never affects the job itself (same posture as the status ladder of
// spec §4.8).
type RedisStatusMirror struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedisStatusMirror builds a mirror from an already-parsed Redis URL,
// reusing the connection string the Job Queue backend already validated.
func NewRedisStatusMirror(redisURL string, ttl time.Duration) (*RedisStatusMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStatusMirror{Client: redis.NewClient(opts), TTL: ttl}, nil
}

func (m *RedisStatusMirror) Store(ctx context.Context, status JobStatus) {
	if m == nil || m.Client == nil {
		return
	}
	payload, err := json.Marshal(status)
	if err != nil {
		log.LogNoRequestID("failed to marshal job status for redis mirror", "task_id", status.TaskID, "err", err.Error())
		return
	}
	if err := m.Client.Set(ctx, statusKeyPrefix+status.TaskID, payload, m.TTL).Err(); err != nil {
		log.LogNoRequestID("failed to mirror job status to redis", "task_id", status.TaskID, "err", err.Error())
	}
}

func (m *RedisStatusMirror) Load(ctx context.Context, taskID string) (JobStatus, bool) {
	if m == nil || m.Client == nil {
		return JobStatus{}, false
	}
	raw, err := m.Client.Get(ctx, statusKeyPrefix+taskID).Bytes()
	if err != nil {
		return JobStatus{}, false
	}
	var status JobStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return JobStatus{}, false
	}
	return status, true
}

func (m *RedisStatusMirror) Close() error {
	if m == nil || m.Client == nil {
		return nil
	}
	return m.Client.Close()
}
