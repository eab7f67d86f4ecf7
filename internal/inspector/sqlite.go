package inspector

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/anthias-labs/arena/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id       TEXT PRIMARY KEY,
	steps    INTEGER NOT NULL,
	saved_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS steps (
	run_id    TEXT NOT NULL,
	step      INTEGER NOT NULL,
	value     REAL NOT NULL,
	logged_at TEXT NOT NULL,
	PRIMARY KEY (run_id, step)
);`

// SQLiteSink stores runs in a SQLite database file, "arena.db" by default.
// Saving a run again replaces it.
type SQLiteSink struct{}

func (SQLiteSink) Save(ctx context.Context, run domain.RunRecord, target string) error {
	if target == "" {
		target = "arena.db"
	}
	db, err := sql.Open("sqlite3", target)
	if err != nil {
		return fmt.Errorf("sqlite: open %s: %w", target, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, steps, saved_at) VALUES (?, ?, ?)`,
		run.RunID, len(run.Steps), run.SavedAt.Format(timeLayout),
	); err != nil {
		return fmt.Errorf("sqlite: insert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM steps WHERE run_id = ?`, run.RunID); err != nil {
		return fmt.Errorf("sqlite: clear steps: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO steps (run_id, step, value, logged_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()
	for _, s := range run.Steps {
		if _, err := stmt.ExecContext(ctx, run.RunID, s.Step, s.Value, s.LoggedAt.Format(timeLayout)); err != nil {
			return fmt.Errorf("sqlite: insert step %d: %w", s.Step, err)
		}
	}
	return tx.Commit()
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"
