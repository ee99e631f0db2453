package models

import "time"

const (
	TaskStatusInfo    = "info"
	TaskStatusSuccess = "success"
	TaskStatusError   = "error"
)

// TaskLogEntry is one audit record for a single step attempted during a job.
// Entries are append-only; they are only removed when their job is deleted.
type TaskLogEntry struct {
	ID       int64          `db:"id"        json:"id"`
	JobID    int64          `db:"job_id"    json:"job_id"`
	TaskName string         `db:"task_name" json:"task_name"`
	Status   string         `db:"status"    json:"status"`
	Message  string         `db:"message"   json:"message"`
	Details  map[string]any `db:"details"   json:"details,omitempty"`

	Timestamp time.Time `db:"timestamp" json:"timestamp"`

	// JobName is populated only by cross-job log queries.
	JobName string `db:"job_name" json:"job_name,omitempty"`
}
