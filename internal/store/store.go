package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tomvergara/fabricd/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// The workflow engine is the sole writer of job status/progress and task logs
// while a job executes; every method is safe for concurrent use across jobs.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobs(ctx context.Context) ([]*models.Job, error)
	UpdateJobStatus(ctx context.Context, id int64, status string, opts ...JobUpdateOption) error
	DeleteJob(ctx context.Context, id int64) error

	AppendTaskLog(ctx context.Context, entry *models.TaskLogEntry) error
	ListTaskLogs(ctx context.Context, jobID int64) ([]*models.TaskLogEntry, error)
	ListRecentTaskLogs(ctx context.Context, limit int) ([]*models.TaskLogEntry, error)

	ListTemplates(ctx context.Context) ([]*models.Template, error)
	GetTemplate(ctx context.Context, id int64) (*models.Template, error)

	JobStats(ctx context.Context) (*JobStats, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// JobStats summarizes the jobs table for the status endpoint.
type JobStats struct {
	ByStatus  map[string]int `json:"by_status"`
	Recent24h int            `json:"recent_24h"`
	TotalLogs int            `json:"total_logs"`
}

type jobUpdateParams struct {
	Progress      *int
	ClearProgress bool
}

// JobUpdateOption adjusts what UpdateJobStatus writes beyond the status and
// its derived timestamps.
type JobUpdateOption func(*jobUpdateParams)

// WithProgress sets the progress column alongside the status.
func WithProgress(pct int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Progress = &pct
	}
}

// ClearProgress nulls the progress column; used when a job fails and its
// progress becomes undefined.
func ClearProgress() JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ClearProgress = true
	}
}

// ResolveJobUpdateOptions folds options into the effective progress write.
// Store implementations and test doubles both need this.
func ResolveJobUpdateOptions(opts ...JobUpdateOption) (progress *int, clear bool) {
	var p jobUpdateParams
	for _, opt := range opts {
		opt(&p)
	}
	return p.Progress, p.ClearProgress
}
