package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fixed-width so lexical order in SQLite matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// runRepository records sync runs in the journal
type runRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) RunRepository {
	return &runRepository{db: db}
}

// StartRun inserts a running entry for source and returns its ID
func (r *runRepository) StartRun(source string, startedAt time.Time) (string, error) {
	id := uuid.New().String()

	_, err := r.db.Exec(`
		INSERT INTO sync_runs (id, source, started_at, status)
		VALUES (?, ?, ?, ?)
	`, id, source, formatTime(startedAt), RunStatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}

	return id, nil
}

// FinishRun stores the outcome of a run
func (r *runRepository) FinishRun(id string, outcome RunOutcome) error {
	result, err := r.db.Exec(`
		UPDATE sync_runs
		SET finished_at = ?, status = ?, existing = ?, candidates = ?, appended = ?, window_size = ?, error = ?
		WHERE id = ?
	`, formatTime(outcome.FinishedAt), outcome.Status, outcome.Existing, outcome.Candidates,
		outcome.Appended, outcome.WindowSize, outcome.Error, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// GetLatestRun returns the most recent run of source, or nil if there is none
func (r *runRepository) GetLatestRun(source string) (*Run, error) {
	row := r.db.QueryRow(`
		SELECT id, source, started_at, finished_at, status, existing, candidates, appended, window_size, error
		FROM sync_runs
		WHERE source = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, source)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return run, nil
}

// GetLatestRuns returns the most recent run of every source, ordered by source
func (r *runRepository) GetLatestRuns() ([]Run, error) {
	rows, err := r.db.Query(`
		SELECT id, source, started_at, finished_at, status, existing, candidates, appended, window_size, error
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY source ORDER BY started_at DESC) AS rn
			FROM sync_runs
		)
		WHERE rn = 1
		ORDER BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

func (r *runRepository) GetRunCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM sync_runs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt sql.NullString

	err := s.Scan(&run.ID, &run.Source, &startedAt, &finishedAt, &run.Status,
		&run.Existing, &run.Candidates, &run.Appended, &run.WindowSize, &run.Error)
	if err != nil {
		return nil, err
	}

	run.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", startedAt, err)
	}

	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid finished_at %q: %w", finishedAt.String, err)
		}
		run.FinishedAt = &t
	}

	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
