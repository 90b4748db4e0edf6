package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/filmmeta/internal/progress"
	"github.com/JakeFAU/filmmeta/internal/store"
)

// RunSink records batch start and completion in a run repository. The
// degraded count comes from the completion event, so item events the hub
// dropped do not skew it.
type RunSink struct {
	repo store.RunRepository
}

// NewRunSink wraps repo.
func NewRunSink(repo store.RunRepository) *RunSink {
	return &RunSink{repo: repo}
}

// Consume writes batch boundaries. It keeps going after a failed write and
// returns the joined errors.
func (s *RunSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageBatchStart:
			if err := s.repo.StartRun(ctx, evt.RunUUID(), evt.TS, evt.Total); err != nil {
				errs = append(errs, fmt.Errorf("record run start: %w", err))
			}
		case progress.StageBatchDone, progress.StageBatchError:
			status := store.RunSuccess
			if evt.Stage == progress.StageBatchError {
				status = store.RunError
			}
			if err := s.repo.CompleteRun(ctx, evt.RunUUID(), evt.TS, status, evt.Degraded, evt.Note); err != nil {
				errs = append(errs, fmt.Errorf("record run completion: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close implements progress.Sink.
func (s *RunSink) Close(context.Context) error {
	return nil
}
