package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anthias-labs/arena/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// SaveRun writes the run and all of its steps in one transaction. Saving the
// same run twice replaces its steps.
func (s *RunStore) SaveRun(ctx context.Context, run domain.RunRecord) error {
	id, err := uuid.Parse(run.RunID)
	if err != nil {
		return fmt.Errorf("postgres: save run: invalid id %q: %w", run.RunID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: save run %s: begin: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO arena_runs (id, steps, saved_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET steps = EXCLUDED.steps, saved_at = EXCLUDED.saved_at`,
		id, len(run.Steps), run.SavedAt,
	); err != nil {
		return fmt.Errorf("postgres: save run %s: %w", id, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM arena_steps WHERE run_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: save run %s: clear steps: %w", id, err)
	}

	if len(run.Steps) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"arena_steps"},
			[]string{"run_id", "step", "value", "logged_at"},
			pgx.CopyFromRows(stepRows(id, run.Steps)),
		)
		if err != nil {
			return fmt.Errorf("postgres: save run %s: copy steps: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: save run %s: commit: %w", id, err)
	}
	return nil
}

// GetRun loads a run and its steps in step order.
func (s *RunStore) GetRun(ctx context.Context, runID string) (domain.RunRecord, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("postgres: get run: invalid id %q: %w", runID, err)
	}

	run := domain.RunRecord{RunID: id.String()}
	err = s.pool.QueryRow(ctx, `SELECT saved_at FROM arena_runs WHERE id = $1`, id).Scan(&run.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RunRecord{}, fmt.Errorf("postgres: get run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("postgres: get run %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT step, value, logged_at FROM arena_steps WHERE run_id = $1 ORDER BY step`, id)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("postgres: get run %s steps: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec domain.StepRecord
		if err := rows.Scan(&rec.Step, &rec.Value, &rec.LoggedAt); err != nil {
			return domain.RunRecord{}, fmt.Errorf("postgres: scan step: %w", err)
		}
		run.Steps = append(run.Steps, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.RunRecord{}, fmt.Errorf("postgres: get run %s steps: %w", id, err)
	}
	return run, nil
}

func stepRows(id uuid.UUID, steps []domain.StepRecord) [][]any {
	rows := make([][]any, len(steps))
	for i, s := range steps {
		rows[i] = []any{id, s.Step, s.Value, s.LoggedAt}
	}
	return rows
}

var _ domain.RunStore = (*RunStore)(nil)
