package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/OliWebDevO/clients-scraper/internal/store"
)

// StartRun inserts a running run; repeated calls keep the first row.
func (s *Store) StartRun(ctx context.Context, id uuid.UUID, kind store.RunKind, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, kind, started_at, status) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;`,
		id.String(), string(kind), formatTime(startedAt), string(store.RunRunning),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// CompleteRun records the outcome of a run.
func (s *Store) CompleteRun(ctx context.Context, id uuid.UUID, outcome store.RunOutcome) error {
	errs, err := json.Marshal(nonNil(outcome.Errors))
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET finished_at = ?, status = ?, items_found = ?, errors = ?, error_message = ?
WHERE id = ?;`,
		formatTime(outcome.FinishedAt), string(outcome.Status), outcome.ItemsFound, string(errs),
		outcome.ErrorMessage, id.String(),
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun loads a single run.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, kind, started_at, finished_at, status, items_found, errors, error_message
FROM runs WHERE id = ?;`, id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Run{}, store.ErrNotFound
	}
	if err != nil {
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first, filtered by optional status.
func (s *Store) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	var filter any
	if status != nil {
		filter = string(*status)
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, kind, started_at, finished_at, status, items_found, errors, error_message
FROM runs
WHERE (? IS NULL OR status = ?)
ORDER BY started_at DESC
LIMIT ? OFFSET ?;`, filter, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (store.Run, error) {
	var (
		run                  store.Run
		id, kind, status     string
		startedAt, errs      string
		finishedAt, errorMsg sql.NullString
	)
	if err := row.Scan(&id, &kind, &startedAt, &finishedAt, &status, &run.ItemsFound, &errs, &errorMsg); err != nil {
		return store.Run{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return store.Run{}, fmt.Errorf("parse run id: %w", err)
	}
	run.ID = parsed
	run.Kind = store.RunKind(kind)
	run.Status = store.RunStatus(status)
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return store.Run{}, err
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return store.Run{}, err
		}
		run.FinishedAt = &t
	}
	if errorMsg.Valid {
		msg := errorMsg.String
		run.ErrorMessage = &msg
	}
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return store.Run{}, fmt.Errorf("decode run errors: %w", err)
	}
	if len(run.Errors) == 0 {
		run.Errors = nil
	}
	return run, nil
}
