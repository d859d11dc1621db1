package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RefreshRun is one recorded refresh attempt of an operator
type RefreshRun struct {
	RunID        string
	OperatorCode string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Updated      bool
	Error        string
}

// StartRun records the start of an operator refresh and returns its ID
func (db *DB) StartRun(ctx context.Context, operatorCode string, startedAt time.Time) (string, error) {
	runID := uuid.New().String()
	err := db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO refresh_runs (run_id, operator_code, started_utc) VALUES (?, ?, ?)",
			runID, operatorCode, startedAt.UTC().Format(time.RFC3339),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create refresh run: %w", err)
	}
	return runID, nil
}

// FinishRun stores the outcome of a run started with StartRun
func (db *DB) FinishRun(ctx context.Context, runID string, updated bool, runErr error) error {
	var errText *string
	if runErr != nil {
		s := runErr.Error()
		errText = &s
	}
	err := db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE refresh_runs SET finished_utc = ?, updated = ?, error = ? WHERE run_id = ?",
			time.Now().UTC().Format(time.RFC3339), updated, errText, runID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to finish refresh run %s: %w", runID, err)
	}
	return nil
}

// LastRun returns the most recent run of an operator, or nil when none exists
func (db *DB) LastRun(ctx context.Context, operatorCode string) (*RefreshRun, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT run_id, operator_code, started_utc, finished_utc, updated, COALESCE(error, '')
		FROM refresh_runs
		WHERE operator_code = ?
		ORDER BY started_utc DESC
		LIMIT 1
	`, operatorCode)

	var run RefreshRun
	var started string
	var finished *string
	if err := row.Scan(&run.RunID, &run.OperatorCode, &started, &finished, &run.Updated, &run.Error); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read last run of %s: %w", operatorCode, err)
	}

	if t, err := time.Parse(time.RFC3339, started); err == nil {
		run.StartedAt = t
	}
	if finished != nil {
		if t, err := time.Parse(time.RFC3339, *finished); err == nil {
			run.FinishedAt = &t
		}
	}
	return &run, nil
}
