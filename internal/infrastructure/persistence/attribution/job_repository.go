package attribution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/persistence/database"
)

// SQLJobRepository persists recompute jobs. The cursor column is the
// checkpoint that makes jobs resumable across process restarts.
type SQLJobRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLJobRepository creates a new instance of the repository.
func NewSQLJobRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLJobRepository {
	return &SQLJobRepository{db: db, logger: logger}
}

// Store saves a new recompute job.
func (r *SQLJobRepository) Store(ctx context.Context, job *attribution.RecomputeJob) error {
	const query = `
		INSERT INTO recompute_jobs
			(id, model_type, params, window_days, from_date, state, cursor, processed, error, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal job params: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		job.ID, string(job.ModelType), string(params), job.WindowDays,
		formatTime(job.FromDate), string(job.State), job.Cursor,
		job.Processed, nullableString(job.Error),
		formatTime(job.StartedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to store recompute job: %w", err)
	}
	return nil
}

// Update checkpoints a job's cursor, progress, and state.
func (r *SQLJobRepository) Update(ctx context.Context, job *attribution.RecomputeJob) error {
	const query = `
		UPDATE recompute_jobs
		SET state = ?, cursor = ?, processed = ?, error = ?, updated_at = ?
		WHERE id = ?`

	start := time.Now()
	res, err := r.db.ExecContext(ctx, query,
		string(job.State), job.Cursor, job.Processed,
		nullableString(job.Error), formatTime(time.Now()), job.ID)
	if err != nil {
		return fmt.Errorf("failed to update recompute job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: recompute job %s", attribution.ErrNotFound, job.ID)
	}
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// FindByID retrieves a recompute job.
func (r *SQLJobRepository) FindByID(ctx context.Context, id string) (*attribution.RecomputeJob, error) {
	const query = `
		SELECT id, model_type, params, window_days, from_date, state, cursor, processed, error, started_at, updated_at
		FROM recompute_jobs WHERE id = ?`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: recompute job %s", attribution.ErrNotFound, id)
	}
	return job, err
}

// FindRunning returns jobs left in the running state.
func (r *SQLJobRepository) FindRunning(ctx context.Context) ([]*attribution.RecomputeJob, error) {
	const query = `
		SELECT id, model_type, params, window_days, from_date, state, cursor, processed, error, started_at, updated_at
		FROM recompute_jobs WHERE state = ? ORDER BY started_at ASC`

	rows, err := r.db.QueryContext(ctx, query, string(attribution.JobRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to query running jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*attribution.RecomputeJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*attribution.RecomputeJob, error) {
	var (
		job       attribution.RecomputeJob
		modelType string
		params    string
		fromDate  string
		state     string
		cursor    sql.NullString
		jobErr    sql.NullString
		startedAt string
		updatedAt string
	)
	err := row.Scan(&job.ID, &modelType, &params, &job.WindowDays, &fromDate,
		&state, &cursor, &job.Processed, &jobErr, &startedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job row: %w", err)
	}

	job.ModelType = attribution.ModelType(modelType)
	job.State = attribution.JobState(state)
	job.Cursor = scanNullString(cursor)
	job.Error = scanNullString(jobErr)

	if err := json.Unmarshal([]byte(params), &job.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job params: %w", err)
	}
	if job.FromDate, err = parseTime(fromDate); err != nil {
		return nil, err
	}
	if job.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &job, nil
}
