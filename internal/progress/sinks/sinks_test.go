package sinks

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/filmmeta/internal/progress"
)

func itemEvent(runID [16]byte, stage progress.Stage, step, total int, title string) progress.Event {
	return progress.Event{
		RunID: runID,
		TS:    time.Now().UTC(),
		Stage: stage,
		Step:  step,
		Total: total,
		Title: title,
	}
}

func TestBarSinkRendersFixedWidthLabels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bar := NewBarSink(&buf, 8)
	runID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, bar.Consume(context.Background(), []progress.Event{
		itemEvent(runID, progress.StageItemDone, 1, 12, "Heat"),
		itemEvent(runID, progress.StageItemDegraded, 12, 12, "The Good, the Bad and the Ugly"),
		{RunID: runID, TS: time.Now(), Stage: progress.StageBatchDone},
	}))

	out := buf.String()
	assert.Contains(t, out, "\r[ 1/12]   8% Heat    ")
	assert.Contains(t, out, "\r[12/12] 100%!The Goo…")
	assert.True(t, strings.HasSuffix(out, "\n"))
	require.NoError(t, bar.Close(context.Background()))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestBarSinkCloseEndsOpenLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bar := NewBarSink(&buf, 0)
	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, bar.Consume(context.Background(), []progress.Event{
		itemEvent(runID, progress.StageItemDone, 1, 2, "Heat"),
	}))
	require.NoError(t, bar.Close(context.Background()))
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestStatusSinkTracksLatestRun(t *testing.T) {
	t.Parallel()

	s := NewStatusSink()
	_, ok := s.Latest()
	require.False(t, ok)

	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	require.NoError(t, s.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageBatchStart, Total: 3},
		itemEvent(runID, progress.StageItemDone, 1, 3, "Heat"),
		itemEvent(runID, progress.StageItemDegraded, 2, 3, "Ran"),
	}))

	st, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, id.String(), st.RunID)
	assert.Equal(t, string(progress.StageItemDegraded), st.Stage)
	assert.Equal(t, 2, st.Step)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Degraded)
	assert.Equal(t, "Ran", st.LastTitle)

	got, ok := s.Get(id.String())
	require.True(t, ok)
	assert.Equal(t, st, got)

	_, ok = s.Get(uuid.NewString())
	assert.False(t, ok)

	require.NoError(t, s.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageBatchDone, Note: "memory://out.json", Degraded: 2},
	}))
	st, ok = s.Latest()
	require.True(t, ok)
	assert.Equal(t, string(progress.StageBatchDone), st.Stage)
	assert.Equal(t, 2, st.Degraded)
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	runID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageBatchStart, Total: 1},
		itemEvent(runID, progress.StageItemDone, 1, 1, "Heat"),
		{RunID: runID, TS: time.Now(), Stage: progress.StageBatchError, Note: "write failed"},
	}))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, "write failed", entries[2].ContextMap()["note"])
	require.NoError(t, sink.Close(context.Background()))
}
