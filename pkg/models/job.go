package models

import "time"

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is one provisioning run over a single FabricConfig. The API returns a
// job id on POST /api/v1/jobs; the client polls GET /api/v1/jobs/{id} until
// status is completed or failed.
//
// Progress is nil once a job has failed. StartedAt is set exactly once, on
// the first transition into running; CompletedAt exactly once, on the first
// transition into a terminal status. The workflow engine is the only writer
// of status and progress while a job executes.
type Job struct {
	ID          int64        `db:"id"           json:"id"`
	Name        string       `db:"name"         json:"name"`
	TemplateID  *int64       `db:"template_id"  json:"template_id,omitempty"`
	Config      FabricConfig `db:"fabric_config" json:"fabric_config"`
	Status      string       `db:"status"       json:"status"`
	Progress    *int         `db:"progress"     json:"progress,omitempty"`
	StartedAt   *time.Time   `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time    `db:"created_at"   json:"created_at"`
}
