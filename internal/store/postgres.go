package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tomvergara/fabricd/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("marshal fabric config: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO provisioning_jobs (name, template_id, fabric_config, status, progress)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		job.Name, job.TemplateID, cfg, job.Status, job.Progress,
	).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	var j models.Job
	var cfg []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, template_id, fabric_config, status, progress, started_at, completed_at, created_at
		 FROM provisioning_jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Name, &j.TemplateID, &cfg, &j.Status, &j.Progress, &j.StartedAt, &j.CompletedAt, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := json.Unmarshal(cfg, &j.Config); err != nil {
		return nil, fmt.Errorf("decode fabric config: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, template_id, status, progress, started_at, completed_at, created_at
		 FROM provisioning_jobs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.Name, &j.TemplateID, &j.Status, &j.Progress,
			&j.StartedAt, &j.CompletedAt, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus writes the status and, when requested, the progress column.
// started_at is set only on the first transition into running; completed_at
// only on the first transition into a terminal status. Both are single-
// statement updates, so concurrent writers cannot set either twice.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id int64, status string, opts ...JobUpdateOption) error {
	prog, clear := ResolveJobUpdateOptions(opts...)

	hasProgress := prog != nil
	var progress int
	if hasProgress {
		progress = *prog
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE provisioning_jobs
		 SET status = $2,
		     progress = CASE
		         WHEN $3::bool THEN $4::int
		         WHEN $5::bool THEN NULL
		         ELSE progress
		     END,
		     started_at = CASE
		         WHEN started_at IS NULL AND $2 = 'running' THEN NOW()
		         ELSE started_at
		     END,
		     completed_at = CASE
		         WHEN completed_at IS NULL AND $2 IN ('completed', 'failed') THEN NOW()
		         ELSE completed_at
		     END
		 WHERE id = $1`,
		id, status, hasProgress, progress, clear)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id int64) error {
	// task_logs rows go with the job via ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM provisioning_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Task logs ---

func (s *PostgresStore) AppendTaskLog(ctx context.Context, entry *models.TaskLogEntry) error {
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal task log details: %w", err)
		}
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO task_logs (job_id, task_name, status, message, details)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, timestamp`,
		entry.JobID, entry.TaskName, entry.Status, entry.Message, details,
	).Scan(&entry.ID, &entry.Timestamp)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("append task log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTaskLogs(ctx context.Context, jobID int64) ([]*models.TaskLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, task_name, status, message, details, timestamp
		 FROM task_logs WHERE job_id = $1 ORDER BY timestamp ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list task logs: %w", err)
	}
	defer rows.Close()

	return scanTaskLogs(rows, false)
}

func (s *PostgresStore) ListRecentTaskLogs(ctx context.Context, limit int) ([]*models.TaskLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tl.id, tl.job_id, tl.task_name, tl.status, tl.message, tl.details, tl.timestamp, pj.name
		 FROM task_logs tl
		 JOIN provisioning_jobs pj ON tl.job_id = pj.id
		 ORDER BY tl.timestamp DESC, tl.id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent task logs: %w", err)
	}
	defer rows.Close()

	return scanTaskLogs(rows, true)
}

func scanTaskLogs(rows pgx.Rows, withJobName bool) ([]*models.TaskLogEntry, error) {
	var entries []*models.TaskLogEntry
	for rows.Next() {
		var e models.TaskLogEntry
		var details []byte
		dest := []any{&e.ID, &e.JobID, &e.TaskName, &e.Status, &e.Message, &details, &e.Timestamp}
		if withJobName {
			dest = append(dest, &e.JobName)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan task log: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode task log details: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- Templates ---

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, type, description, config, created_at, updated_at
		 FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.Description, &t.Config,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id int64) (*models.Template, error) {
	var t models.Template
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, type, description, config, created_at, updated_at
		 FROM templates WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Type, &t.Description, &t.Config, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

// --- Stats ---

func (s *PostgresStore) JobStats(ctx context.Context) (*JobStats, error) {
	stats := &JobStats{ByStatus: make(map[string]int)}

	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM provisioning_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		stats.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM provisioning_jobs WHERE created_at > NOW() - INTERVAL '24 hours'`,
	).Scan(&stats.Recent24h)
	if err != nil {
		return nil, fmt.Errorf("recent job count: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM task_logs`).Scan(&stats.TotalLogs)
	if err != nil {
		return nil, fmt.Errorf("task log count: %w", err)
	}

	return stats, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes,
	).Scan(&key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- error classification ---

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
