package pipeline

import "time"

// Status is a job's lifecycle state as reported by GET /task/{id} (spec
// §4.1b, §6).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// JobStatus is the value stored in the job-status table behind GET
// /task/{id} (spec §10.8 "in-memory job status table backing GET
// /task/{id}", backed by cache.Cache the way the teacher backs its
// request-id logger cache).
type JobStatus struct {
	TaskID    string         `json:"task_id"`
	Status    Status         `json:"status"`
	Phase     string         `json:"phase,omitempty"`
	Attempt   int            `json:"attempt"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}
