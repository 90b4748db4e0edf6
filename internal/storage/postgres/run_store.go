package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/filmmeta/internal/store"
)

// DefaultRunsTable holds batch run history when no table is configured.
const DefaultRunsTable = "batch_runs"

// RunStore implements store.RunRepository.
type RunStore struct {
	pool  execCloser
	table string
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStoreWithPool wraps pool. The pool stays owned by the caller.
func NewRunStoreWithPool(pool execCloser, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableNameOr(table, DefaultRunsTable)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: name}, nil
}

// EnsureSchema creates the run table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      UUID PRIMARY KEY,
	status      TEXT NOT NULL,
	total       INTEGER NOT NULL DEFAULT 0,
	degraded    INTEGER NOT NULL DEFAULT 0,
	note        TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create run table: %w", err)
	}
	return nil
}

// StartRun upserts the run row in the running state.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error {
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, status, total, started_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (run_id) DO UPDATE SET
	status = EXCLUDED.status,
	total = EXCLUDED.total,
	started_at = EXCLUDED.started_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, runID.String(), string(store.RunRunning), total, startedAt.UTC()); err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}
	return nil
}

// CompleteRun records the final status of a run.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	degraded int,
	note string,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET status = $2, degraded = $3, note = $4, finished_at = $5
WHERE run_id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, runID.String(), string(status), degraded, note, finishedAt.UTC())
	if err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", runID, store.ErrNotFound)
	}
	return nil
}
