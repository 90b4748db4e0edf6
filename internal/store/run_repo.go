package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the batch_runs status column.
type RunStatus string

// Run statuses persisted in batch_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunRepository persists one row per batch run.
type RunRepository interface {
	// StartRun inserts (or idempotently updates) the run as running.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error
	// CompleteRun marks the run finished. note carries the output URI on
	// success or the failure reason. Unknown runs return ErrNotFound.
	CompleteRun(
		ctx context.Context,
		runID uuid.UUID,
		finishedAt time.Time,
		status RunStatus,
		degraded int,
		note string,
	) error
}
