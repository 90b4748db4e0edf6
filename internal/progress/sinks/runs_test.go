package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/filmmeta/internal/progress"
	"github.com/JakeFAU/filmmeta/internal/store"
)

type mockRunRepo struct {
	mock.Mock
}

func (m *mockRunRepo) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error {
	args := m.Called(ctx, runID, startedAt, total)
	return args.Error(0)
}

func (m *mockRunRepo) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	degraded int,
	note string,
) error {
	args := m.Called(ctx, runID, finishedAt, status, degraded, note)
	return args.Error(0)
}

func TestRunSinkRecordsBatchBoundaries(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	repo := &mockRunRepo{}
	repo.On("StartRun", mock.Anything, id, start, 3).Return(nil).Once()
	repo.On("CompleteRun", mock.Anything, id, end, store.RunSuccess, 2, "memory://out.json").Return(nil).Once()

	sink := NewRunSink(repo)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: start, Stage: progress.StageBatchStart, Total: 3},
		itemEvent(runID, progress.StageItemDegraded, 1, 3, "Heat"),
		itemEvent(runID, progress.StageItemDone, 2, 3, "Ran"),
	}))
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		itemEvent(runID, progress.StageItemDegraded, 3, 3, "Alien"),
		{RunID: runID, TS: end, Stage: progress.StageBatchDone, Note: "memory://out.json", Degraded: 2},
	}))
	require.NoError(t, sink.Close(context.Background()))
	repo.AssertExpectations(t)
}

func TestRunSinkTakesDegradedFromCompletion(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	repo := &mockRunRepo{}
	repo.On("StartRun", mock.Anything, id, start, 5).Return(nil).Once()
	repo.On("CompleteRun", mock.Anything, id, end, store.RunSuccess, 4, "memory://out.json").Return(nil).Once()

	// Only one of the four degraded item events made it through the hub.
	require.NoError(t, NewRunSink(repo).Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: start, Stage: progress.StageBatchStart, Total: 5},
		itemEvent(runID, progress.StageItemDegraded, 1, 5, "Heat"),
		{RunID: runID, TS: end, Stage: progress.StageBatchDone, Note: "memory://out.json", Degraded: 4},
	}))
	repo.AssertExpectations(t)
}

func TestRunSinkReportsErrorsAndContinues(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	repo := &mockRunRepo{}
	repo.On("StartRun", mock.Anything, id, now, 1).Return(errors.New("db down")).Once()
	repo.On("CompleteRun", mock.Anything, id, now, store.RunError, 0, "disk full").Return(store.ErrNotFound).Once()

	err := NewRunSink(repo).Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageBatchStart, Total: 1},
		{RunID: runID, TS: now, Stage: progress.StageBatchError, Note: "disk full"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.ErrorIs(t, err, store.ErrNotFound)
	repo.AssertExpectations(t)
}
