package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/runs"
)

var (
	_ RunRepositoryInterface = (*RunRepository)(nil)
	_ runs.Archive           = (*RunRepository)(nil)
)

// RunRepository archives finished runs
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveRun stores a run snapshot and its events, replacing any earlier copy.
func (r *RunRepository) SaveRun(ctx context.Context, snapshot runs.Snapshot) error {
	warnings, err := json.Marshal(snapshot.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}
	statuses, err := json.Marshal(snapshot.Statuses)
	if err != nil {
		return fmt.Errorf("failed to encode statuses: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var finishedAt any
	if snapshot.FinishedAt != nil {
		finishedAt = snapshot.FinishedAt.UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, state, concurrency, total_sources, completed_sources,
			failed_sources, pending_sources, warnings, statuses, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			total_sources = excluded.total_sources,
			completed_sources = excluded.completed_sources,
			failed_sources = excluded.failed_sources,
			pending_sources = excluded.pending_sources,
			warnings = excluded.warnings,
			statuses = excluded.statuses,
			finished_at = excluded.finished_at
	`, snapshot.ID, string(snapshot.State), snapshot.Concurrency,
		snapshot.Progress.Total, snapshot.Progress.Completed, snapshot.Progress.Failed, snapshot.Progress.Pending,
		string(warnings), string(statuses), snapshot.CreatedAt.UTC(), finishedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_events WHERE run_id = ?`, snapshot.ID); err != nil {
		return fmt.Errorf("failed to clear run events: %w", err)
	}

	for i, e := range snapshot.Events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_events (
				run_id, position, title, event_date, location, link,
				analysis, opportunity, domain_relevance
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, snapshot.ID, i, e.Title, e.Date, e.Location, e.Link, e.Analysis, e.Opportunity, e.DomainRelevance)
		if err != nil {
			return fmt.Errorf("failed to insert run event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

// GetRun returns the archived run with its events, or nil if absent.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, runSelect+` WHERE r.id = ? GROUP BY r.id`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	events, err := r.getRunEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Events = events

	return run, nil
}

// ListRuns returns archived runs without events, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, runSelect+` GROUP BY r.id ORDER BY r.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		result = append(result, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return result, nil
}

// DeleteRunsBefore removes runs created before cutoff.
func (r *RunRepository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted runs: %w", err)
	}
	return count, nil
}

func (r *RunRepository) getRunEvents(ctx context.Context, runID string) ([]event.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT title, event_date, location, link, analysis, opportunity, domain_relevance
		FROM run_events
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	defer rows.Close()

	events := []event.Candidate{}
	for rows.Next() {
		var e event.Candidate
		if err := rows.Scan(&e.Title, &e.Date, &e.Location, &e.Link, &e.Analysis, &e.Opportunity, &e.DomainRelevance); err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run events: %w", err)
	}

	return events, nil
}

const runSelect = `
	SELECT r.id, r.state, r.concurrency, r.total_sources, r.completed_sources,
		r.failed_sources, r.pending_sources, r.warnings, r.statuses,
		r.created_at, r.finished_at, COUNT(e.position)
	FROM runs r
	LEFT JOIN run_events e ON e.run_id = r.id`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var warnings, statuses string
	var finishedAt sql.NullTime

	err := s.Scan(&run.ID, &run.State, &run.Concurrency, &run.Total, &run.Completed,
		&run.Failed, &run.Pending, &warnings, &statuses,
		&run.CreatedAt, &finishedAt, &run.EventCount)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		at := finishedAt.Time
		run.FinishedAt = &at
	}

	if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
		return nil, fmt.Errorf("failed to decode warnings: %w", err)
	}
	if err := json.Unmarshal([]byte(statuses), &run.Statuses); err != nil {
		return nil, fmt.Errorf("failed to decode statuses: %w", err)
	}

	return &run, nil
}
