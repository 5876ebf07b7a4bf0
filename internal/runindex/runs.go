package runindex

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveRun saves or updates a run row.
// Uses ON CONFLICT to make saves idempotent, so the row can be written once at
// start and again with final counters at the end.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, job_folder, provider, model, dispatched, completed, errors, stop_reason, exit_code, started_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_folder = excluded.job_folder,
			provider = excluded.provider,
			model = excluded.model,
			dispatched = excluded.dispatched,
			completed = excluded.completed,
			errors = excluded.errors,
			stop_reason = excluded.stop_reason,
			exit_code = excluded.exit_code,
			started_at = excluded.started_at,
			duration_seconds = excluded.duration_seconds
	`, run.ID, run.JobFolder, run.Provider, run.Model, run.Dispatched, run.Completed,
		run.Errors, run.StopReason, run.ExitCode, run.StartedAt.UTC().Format(time.RFC3339Nano), run.DurationS)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	var startedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, job_folder, provider, model, dispatched, completed, errors, stop_reason, exit_code, started_at, duration_seconds
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.JobFolder, &run.Provider, &run.Model, &run.Dispatched,
		&run.Completed, &run.Errors, &run.StopReason, &run.ExitCode, &startedAt, &run.DurationS)

	if err == sql.ErrNoRows {
		return Run{}, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}

	run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("failed to parse started_at: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs ordered by start time.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_folder, provider, model, dispatched, completed, errors, stop_reason, exit_code, started_at, duration_seconds
		FROM runs
		ORDER BY started_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt string
		if err := rows.Scan(&run.ID, &run.JobFolder, &run.Provider, &run.Model, &run.Dispatched,
			&run.Completed, &run.Errors, &run.StopReason, &run.ExitCode, &startedAt, &run.DurationS); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}
