package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shop-sync-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const insertJobQuery = `
	INSERT INTO jobs (
		id, name, description, type, trigger_type, config, status,
		cron_expression, interval_minutes, scheduled_at, created_at, updated_at
	) VALUES (
		:id, :name, :description, :type, :trigger_type, :config, :status,
		:cron_expression, :interval_minutes, :scheduled_at, NOW(), NOW()
	)`

// CreateJob creates a new job
func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	if _, err := s.db.NamedExecContext(ctx, insertJobQuery, job); err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.Name, err)
	}
	return nil
}

// CreateJobs creates every job or none of them
func (s *Store) CreateJobs(ctx context.Context, jobs []*models.Job) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, job := range jobs {
			if _, err := tx.NamedExecContext(ctx, insertJobQuery, job); err != nil {
				return fmt.Errorf("failed to create job %s: %w", job.Name, err)
			}
		}
		return nil
	})
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := s.db.GetContext(ctx, &job, "SELECT * FROM jobs WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

// ListSchedulableJobs retrieves the ACTIVE jobs
func (s *Store) ListSchedulableJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.SelectContext(ctx, &jobs,
		"SELECT * FROM jobs WHERE status = $1 ORDER BY created_at", models.JobStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobStatus updates job status
func (s *Store) UpdateJobStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return expectRows(res, "job "+id)
}

// MarkJobExecuted stamps the last successful execution time of a job
func (s *Store) MarkJobExecuted(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET last_executed_at = $1, updated_at = NOW() WHERE id = $2", at, id)
	if err != nil {
		return fmt.Errorf("failed to mark job executed: %w", err)
	}
	return nil
}

// CreateExecution records the start of an execution
func (s *Store) CreateExecution(ctx context.Context, exec *models.JobExecution) error {
	query := `
		INSERT INTO job_executions (id, job_id, status, triggered_by, started_at)
		VALUES (:id, :job_id, :status, :triggered_by, :started_at)`

	if _, err := s.db.NamedExecContext(ctx, query, exec); err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// FinishExecution stores the outcome of an execution
func (s *Store) FinishExecution(ctx context.Context, exec *models.JobExecution) error {
	query := `
		UPDATE job_executions SET
			status = :status, completed_at = :completed_at, duration_ms = :duration_ms,
			result = :result, error = :error
		WHERE id = :id`

	res, err := s.db.NamedExecContext(ctx, query, exec)
	if err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}
	return expectRows(res, "execution "+exec.ID)
}

// ListExecutions retrieves the latest executions of a job
func (s *Store) ListExecutions(ctx context.Context, jobID string, limit int) ([]models.JobExecution, error) {
	var execs []models.JobExecution
	err := s.db.SelectContext(ctx, &execs,
		"SELECT * FROM job_executions WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2", jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return execs, nil
}

// AppendJobLog appends an audit line
func (s *Store) AppendJobLog(ctx context.Context, log *models.JobLog) error {
	query := `
		INSERT INTO job_logs (id, job_id, execution_id, level, message, data, created_at)
		VALUES (:id, :job_id, :execution_id, :level, :message, :data, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}
	return nil
}

// DeleteExecutionsBefore deletes executions and logs older than before
func (s *Store) DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM job_logs WHERE created_at < $1", before); err != nil {
			return fmt.Errorf("failed to delete job logs: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM job_executions WHERE started_at < $1", before)
		if err != nil {
			return fmt.Errorf("failed to delete executions: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}
