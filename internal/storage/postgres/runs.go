package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/OliWebDevO/clients-scraper/internal/store"
)

const runColumns = `id, kind, started_at, finished_at, status, items_found, errors, error_message`

// StartRun inserts a running run; repeated calls keep the first row.
func (s *Store) StartRun(ctx context.Context, id uuid.UUID, kind store.RunKind, startedAt time.Time) error {
	query := `
		INSERT INTO runs (id, kind, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, id, string(kind), startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// CompleteRun records the outcome of a run.
func (s *Store) CompleteRun(ctx context.Context, id uuid.UUID, outcome store.RunOutcome) error {
	errs, err := json.Marshal(nonNil(outcome.Errors))
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}
	query := `
		UPDATE runs
		SET finished_at = $2, status = $3, items_found = $4, errors = $5, error_message = $6
		WHERE id = $1;
	`
	tag, err := s.pool.Exec(
		ctx,
		query,
		id,
		outcome.FinishedAt,
		string(outcome.Status),
		outcome.ItemsFound,
		errs,
		outcome.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *Store) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	query := `SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		kind   string
		status string
		errs   []byte
	)
	err := row.Scan(
		&run.ID,
		&kind,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.ItemsFound,
		&errs,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.Run{}, err
	}
	run.Kind = store.RunKind(kind)
	run.Status = store.RunStatus(status)
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &run.Errors); err != nil {
			return store.Run{}, fmt.Errorf("decode run errors: %w", err)
		}
	}
	return run, nil
}
