package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// Cleanup deletes finished refresh runs that started before now-retention.
// Unfinished runs are kept so a stuck refresh stays visible in /health.
func (db *DB) Cleanup(ctx context.Context, retention time.Duration) error {
	if retention < time.Hour {
		retention = time.Hour
	}
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339)

	var deleted int64
	err := db.Write(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM refresh_runs WHERE finished_utc IS NOT NULL AND started_utc < ?", cutoff)
		if err != nil {
			return err
		}
		deleted, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cleanup refresh_runs: %w", err)
	}

	if deleted > 0 {
		log.Printf("Cleanup: deleted %d refresh runs started before %s", deleted, cutoff)
	}
	return nil
}
