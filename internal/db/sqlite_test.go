package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Connect(filepath.Join(t.TempDir(), "transit.db"))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return database
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	if err := database.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
}

func TestRefreshRunLifecycle(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	if run, err := database.LastRun(ctx, "Toei"); err != nil || run != nil {
		t.Fatalf("expected no run, got %+v (err=%v)", run, err)
	}

	runID, err := database.StartRun(ctx, "Toei", time.Now())
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := database.FinishRun(ctx, runID, false, errors.New("status 503")); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	run, err := database.LastRun(ctx, "Toei")
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if run == nil || run.RunID != runID {
		t.Fatalf("LastRun = %+v, want run %s", run, runID)
	}
	if run.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}
	if run.Error != "status 503" {
		t.Errorf("Error = %q", run.Error)
	}
}

func TestCleanupRemovesOldRuns(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	old, err := database.StartRun(ctx, "Toei", time.Now().Add(-72*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if err := database.FinishRun(ctx, old, true, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := database.StartRun(ctx, "Toei", time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	recent, err := database.StartRun(ctx, "Toei", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if err := database.Cleanup(ctx, 24*time.Hour); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	var count int
	if err := database.Conn().QueryRowContext(ctx, "SELECT COUNT(*) FROM refresh_runs").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected the unfinished and the recent run to remain, got %d", count)
	}
	if run, _ := database.LastRun(ctx, "Toei"); run == nil || run.RunID != recent {
		t.Errorf("recent run should survive cleanup, got %+v", run)
	}
}

func TestEnsureSchemaRecordsVersion(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	var version int
	if err := database.Conn().QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != SchemaVersion {
		t.Errorf("user_version = %d, want %d", version, SchemaVersion)
	}

	if _, err := database.Conn().ExecContext(ctx, "PRAGMA user_version = 99"); err != nil {
		t.Fatal(err)
	}
	if err := database.EnsureSchema(ctx); err == nil {
		t.Error("expected a newer schema version to be rejected")
	}
}

func TestWriteRollsBackOnError(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	err := database.Write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO refresh_runs (run_id, operator_code, started_utc) VALUES ('r1', 'Toei', '2025-01-01T00:00:00Z')"); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil || err.Error() != "abort" {
		t.Fatalf("Write error = %v, want abort", err)
	}
	if run, _ := database.LastRun(ctx, "Toei"); run != nil {
		t.Errorf("insert should have been rolled back, got %+v", run)
	}
}
